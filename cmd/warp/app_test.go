package warp

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func TestConfigLogger(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		app := &cli.App{
			Metadata: map[string]interface{}{},
		}
		set := flag.NewFlagSet("warp", flag.ContinueOnError)
		set.Bool("verbose", verbose, "")
		ctx := cli.NewContext(app, set, nil)

		require.NoError(t, ConfigLogger(ctx))

		logger, ok := app.Metadata["logger"].(*zap.Logger)
		require.True(t, ok)
		require.Equal(t, verbose, logger.Core().Enabled(zap.DebugLevel))
	}
}

func TestAppCommands(t *testing.T) {
	as := require.New(t)

	names := make([]string, 0, len(App.Commands))
	for _, c := range App.Commands {
		names = append(names, c.Name)
	}
	as.Equal([]string{"serve"}, names)
	as.Equal(Build, App.Version)
}
