package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/jdthomas/warp/metrics"
	"github.com/jdthomas/warp/terminator"
	"github.com/jdthomas/warp/timing"
	"github.com/jdthomas/warp/util"
	"github.com/jdthomas/warp/util/acceptor"

	"github.com/google/uuid"
	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	DefaultBufferSize   = 1024 * 8
	MinBufferSize       = 512
	DefaultDialAttempts = 3
)

type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type Config struct {
	Logger   *zap.Logger
	Acceptor *terminator.Acceptor
	// Handler serves HTTP on streams when Upstream is empty. Defaults to the
	// status router.
	Handler http.Handler
	// Upstream switches the gateway to forwarding mode: decrypted bytes of
	// every stream are piped to this address. "pipe://" addresses dial a
	// unix socket or a Windows named pipe.
	Upstream string
	Dial     DialFunc
	// Resolver is used by the default Dial for upstream hostnames.
	Resolver         *net.Resolver
	DialAttempts     uint
	BufferSize       int
	HandshakeTimeout time.Duration
}

type session struct {
	id      string
	stream  *terminator.Stream
	started time.Time
}

type Gateway struct {
	Config
	sessions     *skipmap.StringMap[*session]
	httpAcceptor *acceptor.HTTPAcceptor
	httpServer   *http.Server
	h2Server     *http2.Server
	handler      http.Handler
	bufPool      *util.BufferPool
	closed       *atomic.Bool
}

func New(conf Config) *Gateway {
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	if conf.Dial == nil {
		conf.Dial = upstreamDialer(conf.Resolver)
	}
	if conf.DialAttempts == 0 {
		conf.DialAttempts = DefaultDialAttempts
	}
	if conf.BufferSize <= 0 {
		conf.BufferSize = DefaultBufferSize
	}
	conf.BufferSize = max(conf.BufferSize, MinBufferSize)
	if conf.HandshakeTimeout <= 0 {
		conf.HandshakeTimeout = timing.TLSHandshakeTimeout
	}

	g := &Gateway{
		Config:       conf,
		sessions:     skipmap.NewString[*session](),
		httpAcceptor: acceptor.NewHTTPAcceptor(conf.Acceptor),
		h2Server:     &http2.Server{},
		bufPool:      util.NewBufferPool(conf.BufferSize),
		closed:       atomic.NewBool(false),
	}

	handler := conf.Handler
	if handler == nil {
		handler = g.StatusHandler()
	}
	g.handler = withConnectionState(withServerHeader(handler))

	g.httpServer = &http.Server{
		ReadHeaderTimeout: timing.ReadHeaderTimeout,
		Handler:           g.handler,
		// filter out unproductive messages
		ErrorLog: util.GetStdLogger(g.Logger, "httpServer",
			"http: URL query contains semicolon",
			"connection reset by peer",
		),
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			if sc, ok := c.(*sessionConn); ok {
				return withSession(ctx, sc.session)
			}
			return ctx
		},
	}

	return g
}

// Serve accepts streams until the acceptor is closed. Each stream handshakes
// and is served on its own goroutine.
func (g *Gateway) Serve(ctx context.Context) error {
	g.httpServer.BaseContext = func(l net.Listener) context.Context { return ctx }
	go g.httpServer.Serve(g.httpAcceptor)

	if g.Upstream != "" {
		g.Logger.Info("Forwarding decrypted streams", zap.String("upstream", g.Upstream))
	}
	g.Logger.Info("Gateway started", zap.String("listen", g.Acceptor.Addr().String()))

	backoff := &util.Backoff{
		Min: timing.AcceptRetryMin,
		Max: timing.AcceptRetryMax,
	}
	for {
		stream, err := g.Acceptor.AcceptStream()
		if err != nil {
			if errors.Is(err, terminator.ErrSourceExhausted) || g.closed.Load() {
				return nil
			}
			delay := backoff.Next()
			g.Logger.Error("Failed to accept connection, retrying", zap.Error(err), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		backoff.Reset()
		go g.handleStream(ctx, stream)
	}
}

func (g *Gateway) Close() {
	if !g.closed.CompareAndSwap(false, true) {
		return
	}
	g.Acceptor.Close()
	g.httpAcceptor.Close()
	g.httpServer.Close()
	g.sessions.Range(func(_ string, s *session) bool {
		s.stream.Close()
		return true
	})
}

// ActiveStreams returns the number of streams currently registered.
func (g *Gateway) ActiveStreams() int {
	return g.sessions.Len()
}

func (g *Gateway) register(stream *terminator.Stream) *session {
	s := &session{
		id:      uuid.NewString(),
		stream:  stream,
		started: time.Now(),
	}
	g.sessions.Store(s.id, s)
	metrics.ActiveStreams.Inc()
	return s
}

func (g *Gateway) release(s *session) {
	if _, ok := g.sessions.LoadAndDelete(s.id); ok {
		metrics.ActiveStreams.Dec()
	}
}

func (g *Gateway) handleStream(ctx context.Context, stream *terminator.Stream) {
	sess := g.register(stream)
	logger := g.Logger.With(
		zap.String("session", sess.id),
		zap.String("remote", stream.RemoteAddr().String()),
	)

	// Close raced with the registration
	if g.closed.Load() {
		stream.Close()
		g.release(sess)
		return
	}

	hsCtx, cancel := context.WithTimeout(ctx, g.HandshakeTimeout)
	err := stream.HandshakeContext(hsCtx)
	cancel()
	metrics.HandshakeDuration.UpdateDuration(sess.started)
	if err != nil {
		metrics.HandshakeFailure.Inc()
		logger.Debug("TLS handshake failed", zap.Error(err))
		stream.Close()
		g.release(sess)
		return
	}
	metrics.HandshakeSuccess.Inc()

	cs := stream.ConnectionState()
	metrics.NegotiatedProtocol(cs.NegotiatedProtocol).Inc()
	logger = logger.With(
		zap.String("proto", cs.NegotiatedProtocol),
		zap.String("tls.ServerName", cs.ServerName),
	)

	switch {
	case g.Upstream != "":
		defer g.release(sess)
		logger.Debug("Forwarding stream to upstream")
		g.forward(ctx, logger, stream)
	case cs.NegotiatedProtocol == http2.NextProtoTLS:
		defer g.release(sess)
		logger.Debug("Serving http2 stream")
		g.h2Server.ServeConn(stream, &http2.ServeConnOpts{
			Context:    withSession(ctx, sess),
			BaseConfig: g.httpServer,
			Handler:    g.handler,
		})
		stream.Close()
	default:
		logger.Debug("Serving http1 stream")
		if err := g.httpAcceptor.Handle(&sessionConn{
			Stream:  stream,
			session: sess,
			release: g.release,
		}); err != nil {
			g.release(sess)
		}
	}
}
