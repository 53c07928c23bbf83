package acceptor

import (
	"net"
	"testing"

	"github.com/jdthomas/warp/spec/mocks"

	"github.com/stretchr/testify/require"
)

func TestHTTPAcceptorHandle(t *testing.T) {
	as := require.New(t)

	h := NewHTTPAcceptor(nil)
	as.Equal("unknown", h.Addr().String())

	c1, c2 := net.Pipe()
	defer c2.Close()

	as.NoError(h.Handle(c1))
	got, err := h.Accept()
	as.NoError(err)
	as.Equal(c1, got)
	c1.Close()
}

func TestHTTPAcceptorClose(t *testing.T) {
	as := require.New(t)

	h := NewHTTPAcceptor(nil)

	c1, c2 := net.Pipe()
	defer c2.Close()
	queued := mocks.NewConn(c1)
	as.NoError(h.Handle(queued))

	as.NoError(h.Close())
	as.NoError(h.Close())
	as.True(queued.Closed())

	_, err := h.Accept()
	as.ErrorIs(err, net.ErrClosed)

	c3, c4 := net.Pipe()
	defer c4.Close()
	late := mocks.NewConn(c3)
	as.ErrorIs(h.Handle(late), net.ErrClosed)
	as.True(late.Closed())
}
