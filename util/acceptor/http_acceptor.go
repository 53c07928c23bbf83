package acceptor

import (
	"net"

	"go.uber.org/atomic"
)

// HTTPAcceptor is a net.Listener fed by Handle, so connections already
// accepted and dispatched elsewhere can be served by an http.Server.
type HTTPAcceptor struct {
	parent  net.Listener
	conn    chan net.Conn
	closeCh chan struct{}
	closed  *atomic.Bool
}

var _ net.Listener = (*HTTPAcceptor)(nil)

func NewHTTPAcceptor(parent net.Listener) *HTTPAcceptor {
	return &HTTPAcceptor{
		parent:  parent,
		conn:    make(chan net.Conn, 128),
		closeCh: make(chan struct{}),
		closed:  atomic.NewBool(false),
	}
}

// Handle queues c for Accept. Once the acceptor is closed, c is closed
// instead and net.ErrClosed is returned.
func (h *HTTPAcceptor) Handle(c net.Conn) error {
	if h.closed.Load() {
		c.Close()
		return net.ErrClosed
	}
	select {
	case <-h.closeCh:
		c.Close()
		return net.ErrClosed
	case h.conn <- c:
		// raced with Close
		if h.closed.Load() {
			h.drain()
		}
		return nil
	}
}

func (h *HTTPAcceptor) Accept() (net.Conn, error) {
	select {
	case <-h.closeCh:
		return nil, net.ErrClosed
	case c := <-h.conn:
		return c, nil
	}
}

// Close unblocks Accept and closes connections still waiting in the queue.
func (h *HTTPAcceptor) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(h.closeCh)
	h.drain()
	return nil
}

func (h *HTTPAcceptor) drain() {
	for {
		select {
		case c := <-h.conn:
			c.Close()
		default:
			return
		}
	}
}

func (h *HTTPAcceptor) Addr() net.Addr {
	if h.parent == nil {
		return unknownAddr{}
	}
	return h.parent.Addr()
}
