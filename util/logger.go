package util

import (
	"fmt"
	"log"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

// GetStdLogger bridges a *log.Logger, such as http.Server.ErrorLog, into
// parent at warn level. Messages containing any of the drop substrings are
// discarded.
func GetStdLogger(parent *zap.Logger, sub string, drop ...string) *log.Logger {
	if len(drop) > 0 {
		parent = zap.New(zapfilter.NewFilteringCore(
			parent.Core(),
			func(e zapcore.Entry, _ []zapcore.Field) bool {
				for _, d := range drop {
					if strings.Contains(e.Message, d) {
						return false
					}
				}
				return true
			}),
		)
	}
	logger, err := zap.NewStdLogAt(parent.With(zap.String("subsystem", sub)), zapcore.WarnLevel)
	if err != nil {
		panic(fmt.Errorf("error getting logger: %w", err))
	}
	return logger
}
