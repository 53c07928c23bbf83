//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package reuse

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Control sets SO_REUSEPORT so several processes can bind the same listen
// address during a rolling restart.
func Control(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
