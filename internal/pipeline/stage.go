package pipeline

import (
	"fmt"
	"time"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageCheckout     Stage = "checkout"
	StageMakeChroot   Stage = "make-chroot"
	StageSetupBoard   Stage = "setup-board"
	StageUprev        Stage = "uprev"
	StageBuild        Stage = "build"
	StageUprevPush    Stage = "uprev-push"
	StageUprevCleanup Stage = "uprev-cleanup"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageCheckout,
	StageMakeChroot,
	StageSetupBoard,
	StageUprev,
	StageBuild,
	StageUprevPush,
	StageUprevCleanup,
}

// StageError carries the stage that aborted the run and the underlying cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Listener observes stage transitions. Calls arrive on the goroutine running
// the pipeline, one at a time and in stage order.
type Listener interface {
	StageStarted(stage Stage)
	StageSkipped(stage Stage, reason string)
	StageFinished(stage Stage, elapsed time.Duration, err error)
	// SyncAttemptFailed reports a failed source sync attempt. remaining is
	// zero when the retry budget is exhausted.
	SyncAttemptFailed(attempt int, err error, remaining int)
}

// NopListener ignores every event. Embed it to implement part of Listener.
type NopListener struct{}

func (NopListener) StageStarted(Stage)                        {}
func (NopListener) StageSkipped(Stage, string)                {}
func (NopListener) StageFinished(Stage, time.Duration, error) {}
func (NopListener) SyncAttemptFailed(int, error, int)         {}

// MultiListener fans each event out to every listener in order.
type MultiListener []Listener

func (m MultiListener) StageStarted(stage Stage) {
	for _, l := range m {
		l.StageStarted(stage)
	}
}

func (m MultiListener) StageSkipped(stage Stage, reason string) {
	for _, l := range m {
		l.StageSkipped(stage, reason)
	}
}

func (m MultiListener) StageFinished(stage Stage, elapsed time.Duration, err error) {
	for _, l := range m {
		l.StageFinished(stage, elapsed, err)
	}
}

func (m MultiListener) SyncAttemptFailed(attempt int, err error, remaining int) {
	for _, l := range m {
		l.SyncAttemptFailed(attempt, err, remaining)
	}
}

// Journal is the subset of a run logbook the pipeline writes to.
type Journal interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// JournalListener records stage transitions in a Journal.
type JournalListener struct {
	Journal Journal
}

func (j JournalListener) StageStarted(stage Stage) {
	j.Journal.Info("%s started", stage)
}

func (j JournalListener) StageSkipped(stage Stage, reason string) {
	j.Journal.Info("%s skipped: %s", stage, reason)
}

func (j JournalListener) StageFinished(stage Stage, elapsed time.Duration, err error) {
	if err != nil {
		j.Journal.Error("%s failed after %s: %v", stage, elapsed.Round(time.Millisecond), err)
		return
	}
	j.Journal.Info("%s finished in %s", stage, elapsed.Round(time.Millisecond))
}

func (j JournalListener) SyncAttemptFailed(attempt int, err error, remaining int) {
	j.Journal.Warn("sync attempt %d failed (%d left): %v", attempt, remaining, err)
}
