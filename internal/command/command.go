// internal/command/command.go
//
// Every stage of the build is an external program. This package is the one
// place that starts them, echoes what is about to run, and turns a non-zero
// exit status into an error the pipeline can attach a stage name to.

package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// EchoPrefix is written in front of every command line echoed to stderr.
const EchoPrefix = "CBUILDBOT -- RunCommand:"

// Cmd describes a single external invocation.
type Cmd struct {
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Input is piped to stdin when non-empty.
	Input string
	// RedirectStdout captures stdout into Result.Stdout instead of passing it through.
	RedirectStdout bool
	// RedirectStderr captures stderr into Result.Stderr instead of passing it through.
	RedirectStderr bool
	// ErrorOK tolerates a non-zero exit status.
	ErrorOK bool
	// ExitCodeOnly reports the exit status and never fails on it.
	ExitCodeOnly bool
	// Quiet suppresses the command echo.
	Quiet bool
	// ErrorMessage replaces captured output in the failure message.
	ErrorMessage string
}

// String renders the argv the same way it is echoed.
func (c Cmd) String() string {
	return strings.Join(c.Args, " ")
}

// Result is what came back from a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Error is returned when a command exits non-zero and the caller did not
// mark it as tolerated.
type Error struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("Command %q failed.", strings.Join(e.Args, " "))
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

// Runner starts external programs.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Stdout and Stderr receive pass-through output. Nil means the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns a runner wired to the process's own streams.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes cmd and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, cmd Cmd) (Result, error) {
	if len(cmd.Args) == 0 {
		return Result{}, fmt.Errorf("command: empty argv")
	}
	stderr := r.stderr()
	if !cmd.Quiet {
		fmt.Fprintln(stderr, EchoPrefix, cmd.String())
	}

	proc := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	proc.Dir = cmd.Dir
	if cmd.Input != "" {
		proc.Stdin = strings.NewReader(cmd.Input)
	}
	var outBuf, errBuf bytes.Buffer
	if cmd.RedirectStdout {
		proc.Stdout = &outBuf
	} else {
		proc.Stdout = r.stdout()
	}
	if cmd.RedirectStderr {
		proc.Stderr = &errBuf
	} else {
		proc.Stderr = stderr
	}

	runErr := proc.Run()
	res := Result{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The process never started.
			return res, fmt.Errorf("command: start %q: %w", cmd.String(), runErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, Check(cmd, res)
}

// Check applies the failure rules of cmd to a finished result. Runners other
// than ExecRunner use it so they agree on when a command counts as failed.
func Check(cmd Cmd, res Result) error {
	if cmd.ExitCodeOnly || cmd.ErrorOK || res.ExitCode == 0 {
		return nil
	}
	output := cmd.ErrorMessage
	if output == "" {
		output = res.Stderr
	}
	if output == "" {
		output = res.Stdout
	}
	return &Error{Args: append([]string(nil), cmd.Args...), ExitCode: res.ExitCode, Output: output}
}

func (r *ExecRunner) stdout() io.Writer {
	if r == nil || r.Stdout == nil {
		return os.Stdout
	}
	return r.Stdout
}

func (r *ExecRunner) stderr() io.Writer {
	if r == nil || r.Stderr == nil {
		return os.Stderr
	}
	return r.Stderr
}
