package metrics

import (
	"fmt"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
)

var (
	metricSet = metrics.NewSet()

	HandshakeSuccess  = metricSet.NewCounter(`warp_handshakes_total{result="success"}`)
	HandshakeFailure  = metricSet.NewCounter(`warp_handshakes_total{result="failure"}`)
	HandshakeDuration = metricSet.NewHistogram(`warp_handshake_duration_seconds`)

	ActiveStreams = metricSet.NewCounter(`warp_active_streams`)

	UpstreamDialFailure = metricSet.NewCounter(`warp_upstream_dial_failures_total`)
)

// NegotiatedProtocol counts streams by their ALPN protocol. An empty proto
// is reported as "none".
func NegotiatedProtocol(proto string) *metrics.Counter {
	if proto == "" {
		proto = "none"
	}
	return metricSet.GetOrCreateCounter(fmt.Sprintf(`warp_streams_total{proto=%q}`, proto))
}

func MetricsHandler(w http.ResponseWriter, _ *http.Request) {
	metricSet.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}
