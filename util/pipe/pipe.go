//go:build !(windows || unix)

package pipe

import (
	"context"
	"errors"
	"net"
)

var errUnsupported = errors.New("pipe: not supported on this platform")

func DialPipe(ctx context.Context, path string) (net.Conn, error) {
	return nil, errUnsupported
}

func ListenPipe(path string) (net.Listener, error) {
	return nil, errUnsupported
}
