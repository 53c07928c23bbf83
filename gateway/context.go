package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/jdthomas/warp/terminator"
)

type sessionContextKey struct{}

func withSession(ctx context.Context, s *session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

func sessionFromContext(ctx context.Context) (*session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session)
	return s, ok
}

// SessionID returns the id of the stream serving the request, if any.
func SessionID(ctx context.Context) string {
	if s, ok := sessionFromContext(ctx); ok {
		return s.id
	}
	return ""
}

// net/http only populates Request.TLS for *tls.Conn
func withConnectionState(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			if s, ok := sessionFromContext(r.Context()); ok {
				cs := s.stream.ConnectionState()
				r.TLS = &cs
			}
		}
		h.ServeHTTP(w, r)
	})
}

// sessionConn hands a stream to the http.Server and releases its session
// once the server closes it.
type sessionConn struct {
	*terminator.Stream
	session *session
	release func(*session)
	once    sync.Once
}

func (c *sessionConn) Close() error {
	err := c.Stream.Close()
	c.once.Do(func() {
		c.release(c.session)
	})
	return err
}
