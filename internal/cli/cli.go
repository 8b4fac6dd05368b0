// Package cli holds the cobra command trees behind the cbuildbot and
// prebuilt binaries. main packages only translate the returned error into
// an exit code with ExitCode.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/cbuildbot/internal/command"
	"github.com/kingrea/cbuildbot/internal/pipeline"
	"github.com/kingrea/cbuildbot/internal/prebuilt"
)

const (
	ExitOK          = 0
	ExitUsage       = 1
	ExitStageFailed = 2
	ExitFailure     = 1
)

// UsageError marks bad invocations. Nothing has been started when one is
// returned, so no cleanup is needed.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// Env is what the commands read and write outside their flags.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	// Runner overrides the external process runner.
	Runner command.Runner
	// Store overrides the GCS object store used by prebuilt upload.
	Store prebuilt.ObjectStore
	// Clock stamps prebuilt versions.
	Clock func() time.Time
}

// DefaultEnv wires the process's own streams.
func DefaultEnv() Env {
	return Env{Stdout: os.Stdout, Stderr: os.Stderr, Stdin: os.Stdin}
}

func (e Env) withDefaults() Env {
	if e.Stdout == nil {
		e.Stdout = io.Discard
	}
	if e.Stderr == nil {
		e.Stderr = io.Discard
	}
	if e.Clock == nil {
		e.Clock = time.Now
	}
	return e
}

// ExitCode maps an error returned by a command tree to a process exit
// code and reports it on stderr. Usage errors also print the usage text
// of cmd.
func ExitCode(cmd *cobra.Command, err error, stderr io.Writer) int {
	if err == nil {
		return ExitOK
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "Error: %s\n", usage.Msg)
		if cmd != nil {
			fmt.Fprint(stderr, cmd.UsageString())
		}
		return ExitUsage
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return ExitStageFailed
	}
	return ExitFailure
}

// Execute runs cmd with args and returns the exit code.
func Execute(cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)
	executed, err := cmd.ExecuteC()
	if executed == nil {
		executed = cmd
	}
	return ExitCode(executed, err, stderr)
}

// flagErrors turns pflag parse failures into usage errors.
func flagErrors(_ *cobra.Command, err error) error {
	return &UsageError{Msg: err.Error()}
}
