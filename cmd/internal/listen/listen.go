package listen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jdthomas/warp/util/pipe"
	"github.com/jdthomas/warp/util/reuse"
)

type IPVersion int

const (
	IPAny IPVersion = iota
	IPV4
	IPV6
)

const NetworkPipe = "pipe"

type Address struct {
	Address string
	// Host is the IP for tcp addresses and the socket path for pipes.
	Host    string
	Network string
	Version IPVersion
}

var ErrNoAddress = errors.New("no listen address given")

// ParseAddresses normalizes listen addresses, dropping blanks and
// duplicates. "pipe://" addresses become unix socket or named pipe
// listeners; anything else must be an IP:port pair.
func ParseAddresses(proto string, addrs []string) ([]Address, error) {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}

		if strings.HasPrefix(a, pipe.Scheme) {
			path, ok := pipe.ParseAddress(a)
			if !ok {
				return nil, fmt.Errorf("pipe address has no path (got %q)", a)
			}
			out = append(out, Address{
				Address: a,
				Host:    path,
				Network: NetworkPipe,
			})
			continue
		}

		host, _, err := net.SplitHostPort(a)
		if err != nil {
			return nil, err
		}
		if net.ParseIP(host) == nil {
			return nil, fmt.Errorf("listen host must be an IP address (got %q)", host)
		}
		version := ClassifyIPVersion(host)
		out = append(out, Address{
			Address: a,
			Host:    host,
			Version: version,
			Network: NetworkForVersion(proto, version),
		})
	}
	if len(out) == 0 {
		return nil, ErrNoAddress
	}

	return out, nil
}

func ClassifyIPVersion(host string) IPVersion {
	ip := net.ParseIP(host)
	if ip == nil {
		return IPAny
	}
	if ip.To4() != nil {
		return IPV4
	}
	return IPV6
}

func NetworkForVersion(proto string, version IPVersion) string {
	switch version {
	case IPV4:
		return proto + "4"
	case IPV6:
		return proto + "6"
	default:
		return proto
	}
}

// Listen opens a listener for addr. TCP listeners set SO_REUSEPORT where
// the platform has it.
func Listen(ctx context.Context, addr Address) (net.Listener, error) {
	if addr.Network == NetworkPipe {
		return pipe.ListenPipe(addr.Host)
	}
	cfg := &net.ListenConfig{
		Control: reuse.Control,
	}
	return cfg.Listen(ctx, addr.Network, addr.Address)
}
