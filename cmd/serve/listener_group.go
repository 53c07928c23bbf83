package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	cmdlisten "github.com/jdthomas/warp/cmd/internal/listen"

	"github.com/pires/go-proxyproto"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// multiListener merges several raw sources into one. Accept reports
// net.ErrClosed once every member listener is done, or the first real
// accept error a member hit before it stopped.
type multiListener struct {
	listeners []net.Listener
	stop      chan struct{}
	connCh    chan net.Conn
	closeOnce sync.Once
	wg        sync.WaitGroup
	err       atomic.Error
}

func newMultiListener(listeners []net.Listener) net.Listener {
	if len(listeners) == 1 {
		return listeners[0]
	}

	m := &multiListener{
		listeners: listeners,
		stop:      make(chan struct{}),
		connCh:    make(chan net.Conn, len(listeners)),
	}
	for _, l := range listeners {
		m.wg.Add(1)
		go m.serve(l)
	}
	go func() {
		m.wg.Wait()
		close(m.connCh)
	}()
	return m
}

func (m *multiListener) serve(l net.Listener) {
	defer m.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				m.err.CompareAndSwap(nil, err)
			}
			return
		}
		select {
		case m.connCh <- conn:
		case <-m.stop:
			conn.Close()
			return
		}
	}
}

func (m *multiListener) Accept() (net.Conn, error) {
	select {
	case conn, ok := <-m.connCh:
		if !ok {
			if err := m.err.Load(); err != nil {
				return nil, err
			}
			return nil, net.ErrClosed
		}
		return conn, nil
	case <-m.stop:
		return nil, net.ErrClosed
	}
}

func (m *multiListener) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		for _, l := range m.listeners {
			l.Close()
		}
		m.wg.Wait()
	})
	return m.err.Load()
}

func (m *multiListener) Addr() net.Addr {
	if len(m.listeners) == 0 {
		return nil
	}
	return m.listeners[0].Addr()
}

// headerListener hands out PROXY protocol conns only after their header has
// been read. Each header is read on its own goroutine, so a client that
// never sends one cannot hold up Accept for the others.
type headerListener struct {
	net.Listener
	stop      chan struct{}
	connCh    chan net.Conn
	errCh     chan error
	mu        sync.Mutex
	inflight  map[net.Conn]struct{}
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newHeaderListener(l net.Listener) *headerListener {
	h := &headerListener{
		Listener: l,
		stop:     make(chan struct{}),
		connCh:   make(chan net.Conn),
		errCh:    make(chan error),
		inflight: make(map[net.Conn]struct{}),
	}
	h.wg.Add(1)
	go h.serve()
	return h
}

func (h *headerListener) serve() {
	defer h.wg.Done()
	for {
		conn, err := h.Listener.Accept()
		if err != nil {
			select {
			case h.errCh <- err:
			case <-h.stop:
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.inflight[conn] = struct{}{}
		h.wg.Add(1)
		h.mu.Unlock()
		go h.resolve(conn)
	}
}

func (h *headerListener) resolve(conn net.Conn) {
	defer h.wg.Done()

	// blocks until the header is read or ReadHeaderTimeout passes
	conn.RemoteAddr()

	h.mu.Lock()
	delete(h.inflight, conn)
	h.mu.Unlock()

	select {
	case h.connCh <- conn:
	case <-h.stop:
		conn.Close()
	}
}

func (h *headerListener) Accept() (net.Conn, error) {
	select {
	case conn := <-h.connCh:
		return conn, nil
	case err := <-h.errCh:
		return nil, err
	case <-h.stop:
		return nil, net.ErrClosed
	}
}

func (h *headerListener) Close() error {
	err := net.ErrClosed
	h.closeOnce.Do(func() {
		close(h.stop)
		err = h.Listener.Close()
		h.mu.Lock()
		h.closed = true
		for conn := range h.inflight {
			conn.Close()
		}
		h.mu.Unlock()
		h.wg.Wait()
	})
	return err
}

// listenAll opens every address and merges them into a single raw source.
// With proxyHeader set, each member expects a PROXY protocol header so the
// stream's remote address is the original client rather than the balancer.
func listenAll(ctx context.Context, logger *zap.Logger, addrs []cmdlisten.Address, proxyHeader time.Duration) (net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	closeAll := func() {
		for _, l := range listeners {
			l.Close()
		}
	}
	for _, addr := range addrs {
		l, err := cmdlisten.Listen(ctx, addr)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("error listening on %s: %w", addr.Address, err)
		}
		if proxyHeader > 0 {
			l = newHeaderListener(&proxyproto.Listener{
				Listener:          l,
				ReadHeaderTimeout: proxyHeader,
			})
		}
		logger.Info("Listening for connections",
			zap.String("network", addr.Network),
			zap.String("address", l.Addr().String()),
			zap.Bool("proxyProtocol", proxyHeader > 0),
		)
		listeners = append(listeners, l)
	}
	return newMultiListener(listeners), nil
}
