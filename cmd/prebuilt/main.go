// cmd/prebuilt/main.go
//
// Publishes host or board binary packages to Google Cloud Storage and
// keeps a version file pointing at the latest upload.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingrea/cbuildbot/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	env := cli.DefaultEnv()
	root := cli.NewPrebuiltCommand(env)
	root.SetContext(ctx)
	code := cli.Execute(root, os.Args[1:], env.Stderr)
	stop()
	os.Exit(code)
}
