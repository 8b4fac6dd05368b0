package history

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/cbuildbot/internal/pipeline"
)

// Recorder is a pipeline.Listener that builds up a Run and saves it to a
// Store when the run finishes.
type Recorder struct {
	mu    sync.Mutex
	store *Store
	run   Run
	clock func() time.Time
}

var _ pipeline.Listener = (*Recorder)(nil)

// NewRecorder starts a run record for req.
func NewRecorder(store *Store, req pipeline.Request) *Recorder {
	return newRecorder(store, req, time.Now)
}

func newRecorder(store *Store, req pipeline.Request, clock func() time.Time) *Recorder {
	return &Recorder{
		store: store,
		clock: clock,
		run: Run{
			ID:          uuid.NewString(),
			ConfigName:  req.Config.Name,
			Board:       req.Config.Board,
			Buildroot:   req.Buildroot,
			BuildNumber: req.BuildNumber,
			Clobber:     req.Clobber,
			StartedAt:   clock().UTC(),
			Status:      StatusRunning,
		},
	}
}

// ID returns the run ID.
func (r *Recorder) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run.ID
}

// Snapshot returns a copy of the run as recorded so far.
func (r *Recorder) Snapshot() Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := r.run
	run.Stages = append([]StageRecord(nil), r.run.Stages...)
	return run
}

func (r *Recorder) StageStarted(pipeline.Stage) {}

func (r *Recorder) StageSkipped(stage pipeline.Stage, reason string) {
	r.append(StageRecord{Stage: string(stage), Outcome: "skipped", Reason: reason})
}

func (r *Recorder) StageFinished(stage pipeline.Stage, elapsed time.Duration, err error) {
	rec := StageRecord{Stage: string(stage), Outcome: "ok", Duration: elapsed}
	if err != nil {
		rec.Outcome = "failed"
		rec.Error = err.Error()
	}
	r.append(rec)
}

func (r *Recorder) SyncAttemptFailed(int, error, int) {
	r.mu.Lock()
	r.run.SyncRetries++
	r.mu.Unlock()
}

func (r *Recorder) append(rec StageRecord) {
	r.mu.Lock()
	r.run.Stages = append(r.run.Stages, rec)
	r.mu.Unlock()
}

// Finish stamps the outcome of the run and saves it.
func (r *Recorder) Finish(runErr error) error {
	r.mu.Lock()
	r.run.FinishedAt = r.clock().UTC()
	r.run.Status = StatusSucceeded
	if runErr != nil {
		r.run.Status = StatusFailed
		r.run.Error = runErr.Error()
	}
	run := r.run
	r.mu.Unlock()
	if r.store == nil {
		return errors.New("history: no store to save run to")
	}
	return r.store.Save(run)
}
