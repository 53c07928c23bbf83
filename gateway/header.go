package gateway

import (
	"net/http"
)

func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("server", "warp")
		h.ServeHTTP(w, r)
	})
}
