package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/cbuildbot/internal/pipeline"
)

type fakeTail struct {
	lines []string
}

func (f fakeTail) Tail(n int) ([]string, int) {
	if len(f.lines) <= n {
		return f.lines, len(f.lines)
	}
	return f.lines[len(f.lines)-n:], len(f.lines)
}

func newTestModel(t *testing.T, run RunFunc) *Model {
	t.Helper()
	m := NewModel(context.Background(), "x86-generic-pre-flight-queue", fakeTail{lines: []string{"checkout started"}}, run)
	m.clock = func() time.Time { return time.Unix(0, 0) }
	t.Cleanup(m.cancel)
	return m
}

func update(t *testing.T, m *Model, msg tea.Msg) tea.Cmd {
	t.Helper()
	next, cmd := m.Update(msg)
	if next != m {
		t.Fatalf("update must return the same model")
	}
	return cmd
}

func TestStageEventsUpdateRows(t *testing.T) {
	m := newTestModel(t, nil)
	update(t, m, stageStartedMsg{stage: pipeline.StageCheckout})
	if got := m.row(pipeline.StageCheckout).state; got != stateRunning {
		t.Fatalf("checkout state = %s, want running", got)
	}
	update(t, m, syncFailedMsg{attempt: 1, err: errors.New("flaky"), remaining: 2})
	update(t, m, stageFinishedMsg{stage: pipeline.StageCheckout, elapsed: time.Second})
	update(t, m, stageSkippedMsg{stage: pipeline.StageUprev, reason: "uprev disabled"})
	update(t, m, stageFinishedMsg{stage: pipeline.StageBuild, err: errors.New("emerge failed\nmore detail")})

	if got := m.row(pipeline.StageCheckout).state; got != stateOK {
		t.Fatalf("checkout state = %s, want ok", got)
	}
	if got := m.row(pipeline.StageUprev); got.state != stateSkipped || got.detail != "uprev disabled" {
		t.Fatalf("uprev row = %+v", got)
	}
	build := m.row(pipeline.StageBuild)
	if build.state != stateFailed || build.detail != "emerge failed" {
		t.Fatalf("build row = %+v", build)
	}
	if m.retries != 1 {
		t.Fatalf("retries = %d, want 1", m.retries)
	}
}

func TestStageEventRequeuesWait(t *testing.T) {
	m := newTestModel(t, nil)
	if cmd := update(t, m, stageStartedMsg{stage: pipeline.StageCheckout}); cmd == nil {
		t.Fatalf("expected a command waiting for the next event")
	}
}

func TestRunFinishedQuitsWithError(t *testing.T) {
	wantErr := &pipeline.StageError{Stage: pipeline.StageBuild, Err: errors.New("boom")}
	m := newTestModel(t, func(ctx context.Context, l pipeline.Listener) error {
		l.StageStarted(pipeline.StageBuild)
		l.StageFinished(pipeline.StageBuild, time.Second, errors.New("boom"))
		return wantErr
	})

	msg := m.startRun()()
	cmd := update(t, m, msg)
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if !m.Done() || !errors.Is(m.Err(), wantErr) {
		t.Fatalf("done=%v err=%v", m.Done(), m.Err())
	}
	// Buffered events are applied before the run is marked finished.
	if got := m.row(pipeline.StageBuild).state; got != stateFailed {
		t.Fatalf("build state = %s, want failed", got)
	}
	view := m.View()
	if !strings.Contains(view, "Run failed: stage build: boom") {
		t.Fatalf("view missing failure footer:\n%s", view)
	}
	if !strings.Contains(view, "checkout started") {
		t.Fatalf("view missing journal tail:\n%s", view)
	}
}

func TestCancelKeyCancelsContextOnce(t *testing.T) {
	var seen context.Context
	m := newTestModel(t, func(ctx context.Context, l pipeline.Listener) error {
		seen = ctx
		return ctx.Err()
	})
	if cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC}); cmd != nil {
		t.Fatalf("first cancel should wait for the run")
	}
	msg := m.startRun()()
	if !errors.Is(seen.Err(), context.Canceled) {
		t.Fatalf("run context was not cancelled")
	}
	update(t, m, msg)
	if !errors.Is(m.Err(), context.Canceled) {
		t.Fatalf("err = %v", m.Err())
	}

	if cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); cmd == nil {
		t.Fatalf("a key after the run finished should quit")
	}
}

func TestRepeatedCancelWaitsForRun(t *testing.T) {
	release := make(chan struct{})
	wantErr := &pipeline.StageError{Stage: pipeline.StageBuild, Err: context.Canceled}
	m := newTestModel(t, func(ctx context.Context, l pipeline.Listener) error {
		<-release
		return wantErr
	})
	msgs := make(chan tea.Msg, 1)
	go func() { msgs <- m.startRun()() }()

	for i := 0; i < 3; i++ {
		if cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); cmd != nil {
			t.Fatalf("cancel %d quit before the run returned", i+1)
		}
	}
	if m.Done() {
		t.Fatalf("model done before the run returned")
	}
	close(release)
	update(t, m, <-msgs)
	if !m.Done() || !errors.Is(m.Err(), wantErr) {
		t.Fatalf("done=%v err=%v", m.Done(), m.Err())
	}
}

func TestAwaitRunReturnsPipelineResult(t *testing.T) {
	wantErr := &pipeline.StageError{Stage: pipeline.StageUprevPush, Err: errors.New("push rejected")}
	entered := make(chan struct{})
	m := newTestModel(t, func(ctx context.Context, l pipeline.Listener) error {
		close(entered)
		<-ctx.Done()
		return wantErr
	})
	go m.startRun()()
	<-entered

	started, err := m.awaitRun()
	if !started || !errors.Is(err, wantErr) {
		t.Fatalf("started=%v err=%v", started, err)
	}
}

func TestAwaitRunBeforeStartPreventsRun(t *testing.T) {
	ran := false
	m := newTestModel(t, func(ctx context.Context, l pipeline.Listener) error {
		ran = true
		return nil
	})
	if started, _ := m.awaitRun(); started {
		t.Fatalf("run reported as started")
	}
	if msg := m.startRun()(); msg != nil {
		t.Fatalf("abandoned run produced %#v", msg)
	}
	if ran {
		t.Fatalf("abandoned run must not execute")
	}
}

func TestListenerDropsEventsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan tea.Msg)
	l := newListener(ctx, events)
	cancel()
	done := make(chan struct{})
	go func() {
		l.StageStarted(pipeline.StageCheckout)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("listener blocked after cancel")
	}
}

func TestViewListsEveryStage(t *testing.T) {
	m := newTestModel(t, nil)
	view := m.View()
	for _, stage := range pipeline.Stages {
		if !strings.Contains(view, string(stage)) {
			t.Fatalf("view missing stage %s", stage)
		}
	}
	if !strings.Contains(view, "q: cancel run") {
		t.Fatalf("view missing footer:\n%s", view)
	}
}

func TestMissingRunFunc(t *testing.T) {
	m := newTestModel(t, nil)
	msg, ok := m.startRun()().(runFinishedMsg)
	if !ok || msg.err == nil {
		t.Fatalf("expected error for nil run func, got %#v", msg)
	}
}
