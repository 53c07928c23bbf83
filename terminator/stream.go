package terminator

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"
)

const (
	// maximum plaintext carried by a single TLS record
	readBufferSize = 16 << 10
)

type flusher interface {
	Flush() error
}

// Stream is a server side TLS connection that handshakes on first use.
//
// A Stream starts in the handshaking state and moves to the streaming state
// once the handshake succeeds; it never moves back. It can be driven either
// through the blocking net.Conn methods, or through PollHandshake, PollRead
// and PollWrite, which never block and report Pending when the caller should
// wait on Wake and try again. Mixing both styles concurrently on the same
// direction is not supported.
type Stream struct {
	raw    net.Conn
	conn   *tls.Conn
	remote net.Addr

	started   *atomic.Bool
	streaming *atomic.Bool
	hsDone    chan struct{}
	hsErr     error

	wake chan struct{}

	readMu  sync.Mutex
	readOp  *op
	readBuf []byte
	pending []byte
	readErr error

	writeMu  sync.Mutex
	writeOp  *op
	writeBuf []byte
	writeErr error

	closeOnce sync.Once
	closeErr  error
}

var _ net.Conn = (*Stream)(nil)

// NewStream binds cfg to raw without performing any I/O. cfg is shared and
// must not be modified afterward.
func NewStream(raw net.Conn, cfg *tls.Config) *Stream {
	return &Stream{
		raw:       raw,
		conn:      tls.Server(raw, cfg),
		remote:    raw.RemoteAddr(),
		started:   atomic.NewBool(false),
		streaming: atomic.NewBool(false),
		hsDone:    make(chan struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// Streaming reports whether the handshake has completed successfully.
func (s *Stream) Streaming() bool {
	return s.streaming.Load()
}

// Wake receives a value whenever a background handshake, read or write
// finishes, or the Stream is closed. Spurious wakeups are possible.
func (s *Stream) Wake() <-chan struct{} {
	return s.wake
}

func (s *Stream) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Stream) handshake(ctx context.Context) {
	err := s.conn.HandshakeContext(ctx)
	s.hsErr = err
	if err == nil {
		s.streaming.Store(true)
	}
	close(s.hsDone)
	s.notify()
}

func (s *Stream) Handshake() error {
	return s.HandshakeContext(context.Background())
}

// HandshakeContext completes the handshake on the calling goroutine, or waits
// for the one already in progress. A failed handshake is permanent.
func (s *Stream) HandshakeContext(ctx context.Context) error {
	if s.started.CompareAndSwap(false, true) {
		s.handshake(ctx)
	}
	select {
	case <-s.hsDone:
		return s.hsErr
	default:
	}
	select {
	case <-s.hsDone:
		return s.hsErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PollHandshake drives the handshake without blocking. The first call
// starts it in the background.
func (s *Stream) PollHandshake() (Poll, error) {
	select {
	case <-s.hsDone:
		return Ready, s.hsErr
	default:
	}
	if s.started.CompareAndSwap(false, true) {
		go s.handshake(context.Background())
	}
	return Pending, nil
}

// PollRead reads into p without blocking. While handshaking it returns
// Pending and leaves p untouched. Once streaming, a read is issued on the
// encrypted channel in the same call, and its bytes are handed out by this
// or a later PollRead.
func (s *Stream) PollRead(p []byte) (Poll, int, error) {
	if !s.streaming.Load() {
		poll, err := s.PollHandshake()
		if poll == Pending {
			return Pending, 0, nil
		}
		if err != nil {
			return Ready, 0, err
		}
	}

	if !s.readMu.TryLock() {
		return Pending, 0, nil
	}
	defer s.readMu.Unlock()

	if !s.collectReadLocked(false) {
		return Pending, 0, nil
	}
	if n, ok, err := s.bufferedLocked(p); ok {
		return Ready, n, err
	}
	if len(p) == 0 {
		return Ready, 0, nil
	}

	if s.readBuf == nil {
		s.readBuf = make([]byte, readBufferSize)
	}
	o := newOp()
	s.readOp = o
	buf := s.readBuf
	go func() {
		o.n, o.err = s.conn.Read(buf)
		close(o.done)
		s.notify()
	}()

	// best effort: give the read a chance to finish when the engine already
	// holds a record. Callers must still handle Pending here.
	runtime.Gosched()
	if !s.collectReadLocked(false) {
		return Pending, 0, nil
	}
	n, _, err := s.bufferedLocked(p)
	return Ready, n, err
}

// PollWrite hands p to the encrypted channel without blocking. Accepted bytes
// are copied and written in the background; a write error is reported by
// the next PollWrite, Write, Flush or Shutdown.
func (s *Stream) PollWrite(p []byte) (Poll, int, error) {
	if !s.streaming.Load() {
		poll, err := s.PollHandshake()
		if poll == Pending {
			return Pending, 0, nil
		}
		if err != nil {
			return Ready, 0, err
		}
	}

	if !s.writeMu.TryLock() {
		return Pending, 0, nil
	}
	defer s.writeMu.Unlock()

	if !s.collectWriteLocked(false) {
		return Pending, 0, nil
	}
	if s.writeErr != nil {
		return Ready, 0, s.writeErr
	}
	if len(p) == 0 {
		return Ready, 0, nil
	}

	s.writeBuf = append(s.writeBuf[:0], p...)
	o := newOp()
	s.writeOp = o
	buf := s.writeBuf
	go func() {
		o.n, o.err = s.conn.Write(buf)
		close(o.done)
		s.notify()
	}()

	return Ready, len(p), nil
}

func (s *Stream) collectReadLocked(wait bool) bool {
	o := s.readOp
	if o == nil {
		return true
	}
	if wait {
		<-o.done
	} else if !o.finished() {
		return false
	}
	s.readOp = nil
	s.pending = s.readBuf[:o.n]
	s.readErr = o.err
	return true
}

func (s *Stream) bufferedLocked(p []byte) (int, bool, error) {
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		return n, true, nil
	}
	if err := s.readErr; err != nil {
		// deadline errors are reported once, the engine recovers from them
		if isTimeout(err) {
			s.readErr = nil
		}
		return 0, true, err
	}
	return 0, false, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *Stream) collectWriteLocked(wait bool) bool {
	o := s.writeOp
	if o == nil {
		return true
	}
	if wait {
		<-o.done
	} else if !o.finished() {
		return false
	}
	s.writeOp = nil
	if o.err != nil && s.writeErr == nil {
		s.writeErr = o.err
	}
	return true
}

// Read completes the handshake if needed, then reads from the encrypted
// channel in the same call.
func (s *Stream) Read(b []byte) (int, error) {
	if err := s.Handshake(); err != nil {
		return 0, err
	}

	s.readMu.Lock()
	defer s.readMu.Unlock()

	s.collectReadLocked(true)
	if n, ok, err := s.bufferedLocked(b); ok {
		return n, err
	}
	return s.conn.Read(b)
}

// Write completes the handshake if needed, then writes to the encrypted
// channel in the same call.
func (s *Stream) Write(b []byte) (int, error) {
	if err := s.Handshake(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.collectWriteLocked(true)
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.conn.Write(b)
}

// Flush is a no-op while handshaking. Once streaming it waits for background
// writes, then flushes the raw connection if it buffers.
func (s *Stream) Flush() error {
	if !s.streaming.Load() {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.collectWriteLocked(true)
	if s.writeErr != nil {
		return s.writeErr
	}
	if f, ok := s.raw.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Shutdown sends close_notify once streaming, leaving the read side open.
// It is a no-op while handshaking.
func (s *Stream) Shutdown() error {
	if !s.streaming.Load() {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.collectWriteLocked(true)
	return s.conn.CloseWrite()
}

// Close releases the connection in any state. Mid-handshake the raw
// connection is closed without any alert.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.streaming.Load() {
			s.closeErr = s.conn.Close()
		} else {
			s.closeErr = s.raw.Close()
		}
		s.notify()
	})
	return s.closeErr
}

// RemoteAddr returns the peer address captured when the Stream was created.
func (s *Stream) RemoteAddr() net.Addr {
	return s.remote
}

func (s *Stream) LocalAddr() net.Addr {
	return s.raw.LocalAddr()
}

func (s *Stream) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// ConnectionState returns the zero value until the Stream is streaming.
func (s *Stream) ConnectionState() tls.ConnectionState {
	if !s.streaming.Load() {
		return tls.ConnectionState{}
	}
	return s.conn.ConnectionState()
}

// NetConn returns the raw connection. Reading or writing it directly
// corrupts the session.
func (s *Stream) NetConn() net.Conn {
	return s.raw
}
