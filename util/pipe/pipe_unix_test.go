//go:build unix

package pipe

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListenPipeRoundTrip(t *testing.T) {
	as := require.New(t)

	path := filepath.Join(t.TempDir(), "warp.sock")
	ln, err := ListenPipe(path)
	as.NoError(err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		io.Copy(c, c)
	}()

	c, err := DialPipe(context.Background(), path)
	as.NoError(err)
	defer c.Close()

	_, err = c.Write([]byte("pipe"))
	as.NoError(err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(c, buf)
	as.NoError(err)
	as.Equal("pipe", string(buf))
}

func TestListenPipeReplacesStaleSocket(t *testing.T) {
	as := require.New(t)

	path := filepath.Join(t.TempDir(), "stale.sock")
	stale, err := net.Listen("unix", path)
	as.NoError(err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	as.NoError(stale.Close())

	_, err = os.Stat(path)
	as.NoError(err)

	ln, err := ListenPipe(path)
	as.NoError(err)
	as.NoError(ln.Close())

	_, err = os.Stat(path)
	as.True(os.IsNotExist(err))
}

func TestListenPipeRefusesRegularFile(t *testing.T) {
	as := require.New(t)

	path := filepath.Join(t.TempDir(), "file")
	as.NoError(os.WriteFile(path, []byte("x"), 0o600))

	_, err := ListenPipe(path)
	as.ErrorIs(err, os.ErrExist)
}
