package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/franksops/reflash/store"
)

// ErrJobFinished is returned when a journaled job has already reached a
// terminal state.
var ErrJobFinished = errors.New("job already finished")

// CheckpointConfig defines when progress is written to the journal.
type CheckpointConfig struct {
	// PercentInterval triggers a save after progress advanced this many points.
	PercentInterval int
	// TimeInterval triggers a save after this much time has passed.
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	PercentInterval: 5,
	TimeInterval:    5 * time.Second,
}

// JobTracker journals job transitions and checkpoints progress.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig
	now    func() time.Time

	mu    sync.Mutex
	marks map[string]checkpoint
}

type checkpoint struct {
	percent int
	at      time.Time
}

// NewJobTracker creates a new JobTracker
func NewJobTracker(s store.Store, config CheckpointConfig) *JobTracker {
	return &JobTracker{
		store:  s,
		config: config,
		now:    time.Now,
		marks:  make(map[string]checkpoint),
	}
}

// InitJob records a new Pending job.
func (jt *JobTracker) InitJob(job *TransferJob) error {
	now := jt.now()
	record := &store.JobRecord{
		ID:         job.ID,
		Direction:  job.Direction.String(),
		Medium:     job.Medium.String(),
		SourcePath: job.SourcePath,
		TargetPath: job.TargetPath,
		State:      store.StatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	jt.mu.Lock()
	jt.marks[job.ID] = checkpoint{percent: 0, at: now}
	jt.mu.Unlock()

	return jt.store.SaveJob(record)
}

// MarkRunning moves a job to Running.
func (jt *JobTracker) MarkRunning(jobID string) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateRunning
	})
}

// RecordProgress saves percent when enough progress or time has passed
// since the last checkpoint. It reports whether a save happened.
func (jt *JobTracker) RecordProgress(jobID string, percent int) (bool, error) {
	now := jt.now()

	jt.mu.Lock()
	last := jt.marks[jobID]
	due := percent >= 100 ||
		percent-last.percent >= jt.config.PercentInterval ||
		now.Sub(last.at) >= jt.config.TimeInterval
	if due {
		jt.marks[jobID] = checkpoint{percent: percent, at: now}
	}
	jt.mu.Unlock()

	if !due {
		return false, nil
	}
	err := jt.update(jobID, func(r *store.JobRecord) {
		r.Percent = percent
	})
	return err == nil, err
}

// MarkSucceeded moves a job to Succeeded at 100 percent.
func (jt *JobTracker) MarkSucceeded(jobID string) error {
	defer jt.forget(jobID)
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateSucceeded
		r.Percent = 100
		r.Error = ""
	})
}

// MarkFailed moves a job to Failed with an error message.
func (jt *JobTracker) MarkFailed(jobID string, percent int, err error) error {
	defer jt.forget(jobID)
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateFailed
		r.Percent = percent
		if err != nil {
			r.Error = err.Error()
		}
	})
}

// MarkCancelled moves a job to Cancelled.
func (jt *JobTracker) MarkCancelled(jobID string, percent int) error {
	defer jt.forget(jobID)
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateCancelled
		r.Percent = percent
	})
}

// Finish journals the terminal state held in res.
func (jt *JobTracker) Finish(jobID string, res Result) error {
	if !res.State.Terminal() {
		return fmt.Errorf("finish job %s: state %s is not terminal", jobID, res.State)
	}
	switch res.State {
	case Succeeded:
		return jt.MarkSucceeded(jobID)
	case Cancelled:
		return jt.MarkCancelled(jobID, res.Percent)
	default:
		return jt.MarkFailed(jobID, res.Percent, res.Err)
	}
}

func (jt *JobTracker) update(jobID string, mutate func(*store.JobRecord)) error {
	record, err := jt.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if record.State.Terminal() {
		return fmt.Errorf("job %s is %s: %w", jobID, record.State, ErrJobFinished)
	}
	mutate(record)
	record.UpdatedAt = jt.now()
	return jt.store.SaveJob(record)
}

func (jt *JobTracker) forget(jobID string) {
	jt.mu.Lock()
	delete(jt.marks, jobID)
	jt.mu.Unlock()
}
