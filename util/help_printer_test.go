package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestWrapText(t *testing.T) {
	as := require.New(t)

	as.Equal([]string{"one two", "three"}, wrapText("one two three", 8))
	as.Equal([]string{"first", "", "second"}, wrapText("first\n\nsecond", 40))
	as.Equal([]string{""}, wrapText("   ", 40))
}

func TestPrettierHelpPrinter(t *testing.T) {
	as := require.New(t)

	prevPrinter, prevColor := cli.HelpPrinter, color.NoColor
	defer func() {
		cli.HelpPrinter, color.NoColor = prevPrinter, prevColor
	}()
	color.NoColor = true
	PrettierHelpPrinter()

	var out bytes.Buffer
	app := &cli.App{
		Name:      "warp",
		HelpName:  "warp",
		Usage:     "test",
		Writer:    &out,
		ErrWriter: &out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "upstream", Usage: "where bytes go", Category: "Upstream Options"},
			&cli.BoolFlag{Name: "verbose", Usage: "louder"},
			&cli.BoolFlag{Name: "secret", Hidden: true},
		},
	}
	as.NoError(app.Run([]string{"warp", "--help"}))

	help := out.String()
	as.Contains(help, "NAME:")
	as.Contains(help, "Global Options")
	as.Contains(help, "Upstream Options")
	as.Contains(help, "--upstream value")
	as.NotContains(help, "--secret")
	as.NotContains(help, "--help")
	as.Less(strings.Index(help, "Global Options"), strings.Index(help, "Upstream Options"))
}
