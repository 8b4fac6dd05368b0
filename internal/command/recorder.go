package command

import (
	"context"
	"strings"
	"sync"
)

// Handler scripts the outcome of a matched command.
type Handler func(cmd Cmd) (Result, error)

// Recorder is a Runner that never starts processes. It records each call and
// answers from handlers registered with On. Unmatched commands succeed.
type Recorder struct {
	mu       sync.Mutex
	calls    []Cmd
	handlers []recordedHandler
}

type recordedHandler struct {
	match string
	fn    Handler
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// On registers fn for every command whose argv, joined by spaces, contains
// match. The first registered match wins.
func (r *Recorder) On(match string, fn Handler) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, recordedHandler{match: match, fn: fn})
	return r
}

// Fail makes commands containing match exit with the given status.
func (r *Recorder) Fail(match string, exitCode int, stderr string) *Recorder {
	return r.On(match, func(Cmd) (Result, error) {
		return Result{ExitCode: exitCode, Stderr: stderr}, nil
	})
}

// Run records cmd and returns the scripted outcome.
func (r *Recorder) Run(_ context.Context, cmd Cmd) (Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cloneCmd(cmd))
	var fn Handler
	line := cmd.String()
	for _, h := range r.handlers {
		if strings.Contains(line, h.match) {
			fn = h.fn
			break
		}
	}
	r.mu.Unlock()

	if fn == nil {
		return Result{}, nil
	}
	res, err := fn(cmd)
	if err != nil {
		return res, err
	}
	return res, Check(cmd, res)
}

// Calls returns a copy of every recorded command in order.
func (r *Recorder) Calls() []Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Cmd, len(r.calls))
	copy(out, r.calls)
	return out
}

// Lines returns the recorded argv strings in order.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

// Count reports how many recorded commands contain match.
func (r *Recorder) Count(match string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.Contains(line, match) {
			n++
		}
	}
	return n
}

func cloneCmd(cmd Cmd) Cmd {
	cmd.Args = append([]string(nil), cmd.Args...)
	return cmd
}
