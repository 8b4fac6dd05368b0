// cmd/cbuildbot/main.go
//
// Entry point for the build bot. A run checks out (or syncs) the buildroot,
// provisions the chroot and board when missing, optionally uprevs, builds,
// and pushes the uprev. Exit codes: 0 success, 1 usage or setup error,
// 2 stage failure.

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
	root := cli.NewCbuildbotCommand(env)
	root.SetContext(ctx)
	code := cli.Execute(root, os.Args[1:], env.Stderr)
	stop()
	os.Exit(code)
}
