package history

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/cbuildbot/internal/config"
	"github.com/kingrea/cbuildbot/internal/pipeline"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndGet(t *testing.T) {
	store := openMemory(t)
	run := Run{
		ID:         "abc",
		ConfigName: "x86_agz_bin",
		Board:      "x86-agz",
		StartedAt:  time.Date(2010, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:     StatusSucceeded,
		Stages:     []StageRecord{{Stage: "checkout", Outcome: "ok", Duration: time.Second}},
	}
	require.NoError(t, store.Save(run))

	got, err := store.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, run.ConfigName, got.ConfigName)
	assert.Equal(t, run.Stages, got.Stages)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
}

func TestSaveReplacesByID(t *testing.T) {
	store := openMemory(t)
	run := Run{ID: "abc", StartedAt: time.Unix(100, 0), Status: StatusRunning}
	require.NoError(t, store.Save(run))
	run.Status = StatusFailed
	require.NoError(t, store.Save(run))

	runs, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
}

func TestGetUnknown(t *testing.T) {
	store := openMemory(t)
	_, err := store.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveRequiresID(t *testing.T) {
	store := openMemory(t)
	assert.Error(t, store.Save(Run{}))
}

func TestRecentNewestFirst(t *testing.T) {
	store := openMemory(t)
	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.Save(Run{ID: id, StartedAt: time.Unix(int64(1000+i), 0)}))
	}

	runs, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].ID)
	assert.Equal(t, "second", runs[1].ID)

	none, err := store.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(Run{ID: "kept", StartedAt: time.Unix(5, 0)}))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get("kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.ID)
}

func TestRecorderCapturesRun(t *testing.T) {
	store := openMemory(t)
	now := time.Date(2010, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	req := pipeline.Request{
		Buildroot:   "/b",
		BuildNumber: 7,
		Clobber:     true,
		Config:      config.BuildConfig{Name: "x86_agz_bin", Board: "x86-agz"},
	}
	rec := newRecorder(store, req, clock)
	require.NotEmpty(t, rec.ID())

	rec.StageStarted(pipeline.StageCheckout)
	rec.SyncAttemptFailed(1, errors.New("flaky"), 2)
	rec.StageFinished(pipeline.StageCheckout, 2*time.Second, nil)
	rec.StageSkipped(pipeline.StageUprev, "uprev disabled")
	rec.StageFinished(pipeline.StageBuild, time.Second, errors.New("boom"))

	now = now.Add(time.Minute)
	runErr := &pipeline.StageError{Stage: pipeline.StageBuild, Err: errors.New("boom")}
	require.NoError(t, rec.Finish(runErr))

	got, err := store.Get(rec.ID())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "x86-agz", got.Board)
	assert.Equal(t, 7, got.BuildNumber)
	assert.Equal(t, 1, got.SyncRetries)
	assert.Contains(t, got.Error, "boom")
	assert.Equal(t, time.Minute, got.FinishedAt.Sub(got.StartedAt))
	require.Len(t, got.Stages, 3)
	assert.Equal(t, "ok", got.Stages[0].Outcome)
	assert.Equal(t, "skipped", got.Stages[1].Outcome)
	assert.Equal(t, "uprev disabled", got.Stages[1].Reason)
	assert.Equal(t, "failed", got.Stages[2].Outcome)
}

func TestRecorderSuccess(t *testing.T) {
	store := openMemory(t)
	rec := NewRecorder(store, pipeline.Request{Config: config.BuildConfig{Name: "default", Board: "x86-generic"}})
	require.NoError(t, rec.Finish(nil))
	got, err := store.Get(rec.ID())
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Empty(t, got.Error)
}
