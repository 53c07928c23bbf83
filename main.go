package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jdthomas/warp/cmd/warp"
	"github.com/jdthomas/warp/util"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	util.PrettierHelpPrinter()

	if err := warp.App.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
