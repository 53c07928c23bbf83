package timing

import "time"

const (
	TLSHandshakeTimeout = time.Second * 15
	UpstreamDialTimeout = time.Second * 5
	UpstreamDialDelay   = time.Millisecond * 200
	ReadHeaderTimeout   = time.Second * 5
	ProxyHeaderTimeout  = time.Second * 3

	AcceptRetryMin = time.Millisecond * 5
	AcceptRetryMax = time.Second
)
