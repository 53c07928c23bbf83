package util

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetStdLogger(t *testing.T) {
	as := require.New(t)

	core, logs := observer.New(zap.DebugLevel)
	std := GetStdLogger(zap.New(core), "httpServer", "connection reset by peer")

	std.Print("http: TLS handshake error from 10.0.0.1:5000: EOF")
	std.Print("read tcp 10.0.0.1:443: connection reset by peer")

	as.Equal(1, logs.Len())
	entry := logs.All()[0]
	as.Equal(zap.WarnLevel, entry.Level)
	as.Contains(entry.Message, "TLS handshake error")
	as.Equal("httpServer", entry.ContextMap()["subsystem"])
}
