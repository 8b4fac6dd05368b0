package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/cbuildbot/internal/pipeline"
)

type stageStartedMsg struct{ stage pipeline.Stage }

type stageSkippedMsg struct {
	stage  pipeline.Stage
	reason string
}

type stageFinishedMsg struct {
	stage   pipeline.Stage
	elapsed time.Duration
	err     error
}

type syncFailedMsg struct {
	attempt   int
	err       error
	remaining int
}

// Listener forwards pipeline events to the model over a channel. Sends
// give up once ctx is done so a pipeline never blocks on a closed view.
type Listener struct {
	ctx    context.Context
	events chan<- tea.Msg
}

var _ pipeline.Listener = Listener{}

func newListener(ctx context.Context, events chan<- tea.Msg) Listener {
	return Listener{ctx: ctx, events: events}
}

func (l Listener) send(msg tea.Msg) {
	select {
	case l.events <- msg:
	case <-l.ctx.Done():
	}
}

func (l Listener) StageStarted(stage pipeline.Stage) {
	l.send(stageStartedMsg{stage: stage})
}

func (l Listener) StageSkipped(stage pipeline.Stage, reason string) {
	l.send(stageSkippedMsg{stage: stage, reason: reason})
}

func (l Listener) StageFinished(stage pipeline.Stage, elapsed time.Duration, err error) {
	l.send(stageFinishedMsg{stage: stage, elapsed: elapsed, err: err})
}

func (l Listener) SyncAttemptFailed(attempt int, err error, remaining int) {
	l.send(syncFailedMsg{attempt: attempt, err: err, remaining: remaining})
}
