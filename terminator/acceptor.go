package terminator

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// ErrSourceExhausted is returned once the raw connection source is closed.
// It matches net.ErrClosed with errors.Is, so an Acceptor can be handed
// to http.Server.Serve as is.
var ErrSourceExhausted = fmt.Errorf("terminator: connection source exhausted: %w", net.ErrClosed)

type AcceptorOption func(*Acceptor)

func WithLogger(logger *zap.Logger) AcceptorOption {
	return func(a *Acceptor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Acceptor turns raw connections from a net.Listener into Streams sharing
// one TLS configuration.
type Acceptor struct {
	logger *zap.Logger
	source net.Listener
	config *tls.Config
}

var _ net.Listener = (*Acceptor)(nil)

func NewAcceptor(cfg *tls.Config, source net.Listener, opts ...AcceptorOption) *Acceptor {
	a := &Acceptor{
		logger: zap.NewNop(),
		source: source,
		config: cfg,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AcceptStream waits for the next raw connection and returns it as a Stream.
// The handshake has not run yet. Errors from the source are returned as is
// and the Acceptor stays usable, except once the source is closed.
func (a *Acceptor) AcceptStream() (*Stream, error) {
	raw, err := a.source.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrSourceExhausted
		}
		return nil, err
	}
	a.logger.Debug("Accepted raw connection",
		zap.String("remote", raw.RemoteAddr().String()),
		zap.String("local", raw.LocalAddr().String()),
	)
	return NewStream(raw, a.config), nil
}

func (a *Acceptor) Accept() (net.Conn, error) {
	s, err := a.AcceptStream()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *Acceptor) Close() error {
	return a.source.Close()
}

func (a *Acceptor) Addr() net.Addr {
	return a.source.Addr()
}

// Config returns the shared configuration. It must not be modified.
func (a *Acceptor) Config() *tls.Config {
	return a.config
}
