package gateway

import (
	"crypto/tls"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jdthomas/warp/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"kon.nect.sh/httprate"
)

type Status struct {
	Session       string `json:"session,omitempty"`
	RemoteAddr    string `json:"remoteAddr"`
	Proto         string `json:"proto"`
	ALPN          string `json:"alpn,omitempty"`
	ServerName    string `json:"serverName,omitempty"`
	TLSVersion    string `json:"tlsVersion,omitempty"`
	CipherSuite   string `json:"cipherSuite,omitempty"`
	ClientSubject string `json:"clientSubject,omitempty"`
	ActiveStreams int    `json:"activeStreams"`
}

// StatusHandler is the default handler: it reports the connection state of
// the calling stream and exposes metrics.
func (g *Gateway) StatusHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(httprate.LimitAll(10, time.Second))
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("warp\n"))
	})
	r.Get("/_status", g.handleStatus)
	r.Get("/_metrics", metrics.MetricsHandler)
	return r
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Session:       SessionID(r.Context()),
		RemoteAddr:    r.RemoteAddr,
		Proto:         r.Proto,
		ActiveStreams: g.ActiveStreams(),
	}
	if cs := r.TLS; cs != nil {
		st.ALPN = cs.NegotiatedProtocol
		st.ServerName = cs.ServerName
		st.TLSVersion = tls.VersionName(cs.Version)
		st.CipherSuite = tls.CipherSuiteName(cs.CipherSuite)
		if len(cs.PeerCertificates) > 0 {
			st.ClientSubject = cs.PeerCertificates[0].Subject.String()
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}
