//go:build !no_mocks
// +build !no_mocks

package mocks

import (
	"net"

	"github.com/stretchr/testify/mock"
	"go.uber.org/atomic"
)

// Conn wraps a net.Conn and records calls to Close and Flush.
type Conn struct {
	net.Conn
	closed  *atomic.Bool
	flushed *atomic.Int32
}

func NewConn(c net.Conn) *Conn {
	return &Conn{
		Conn:    c,
		closed:  atomic.NewBool(false),
		flushed: atomic.NewInt32(0),
	}
}

func (c *Conn) Close() error {
	c.closed.Store(true)
	return c.Conn.Close()
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

func (c *Conn) Flush() error {
	c.flushed.Inc()
	return nil
}

func (c *Conn) Flushes() int {
	return int(c.flushed.Load())
}

type Listener struct {
	mock.Mock
}

func (l *Listener) Accept() (net.Conn, error) {
	args := l.Called()
	c := args.Get(0)
	e := args.Error(1)
	if e != nil {
		return nil, e
	}
	return c.(net.Conn), nil
}

func (l *Listener) Close() error {
	args := l.Called()
	return args.Error(0)
}

func (l *Listener) Addr() net.Addr {
	args := l.Called()
	return args.Get(0).(net.Addr)
}

var _ net.Listener = (*Listener)(nil)
