package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/franksops/reflash/logging"
	"github.com/franksops/reflash/probe"
	"github.com/franksops/reflash/provider"
)

// Executor runs one TransferJob at a time against the device.
type Executor struct {
	caps     probe.Capabilities
	launcher Launcher
	provider provider.Provider
	tracker  *JobTracker
	settle   time.Duration
	grace    time.Duration
	log      zerolog.Logger

	mu sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithTracker journals every job transition through t.
func WithTracker(t *JobTracker) Option {
	return func(e *Executor) { e.tracker = t }
}

// WithTimeouts sets how long a finished pipeline may linger after reporting
// 100 percent, and how long a terminated one has before it is killed.
func WithTimeouts(settle, grace time.Duration) Option {
	return func(e *Executor) {
		e.settle = settle
		e.grace = grace
	}
}

// NewExecutor creates an executor bound to the capabilities of one probe.
func NewExecutor(caps probe.Capabilities, launcher Launcher, p provider.Provider, opts ...Option) *Executor {
	e := &Executor{
		caps:     caps,
		launcher: launcher,
		provider: p,
		settle:   30 * time.Second,
		grace:    5 * time.Second,
		log:      logging.WithComponent("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes job to a terminal state and returns it. Progress is
// reported to sink in non-decreasing order. Cancelling ctx terminates
// the pipeline and yields Cancelled. Calls are serialized.
func (e *Executor) Run(ctx context.Context, job *TransferJob, sink ProgressSink) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sink == nil {
		sink = ProgressFunc(func(int) {})
	}
	log := e.log.With().
		Str(logging.FieldJobID, job.ID).
		Str(logging.FieldDirection, job.Direction.String()).
		Str(logging.FieldMedium, job.Medium.String()).
		Str(logging.FieldSource, job.SourcePath).
		Str(logging.FieldTarget, job.TargetPath).
		Logger()

	if e.tracker != nil {
		if err := e.tracker.InitJob(job); err != nil {
			log.Warn().Err(err).Msg("journal init failed")
		}
	}

	res := e.run(ctx, job, sink, log)
	job.State, job.Err, job.Percent = res.State, res.Err, res.Percent

	if e.tracker != nil {
		if err := e.tracker.Finish(job.ID, res); err != nil {
			log.Warn().Err(err).Msg("journal finish failed")
		}
	}

	ev := log.Info()
	if res.State != Succeeded {
		ev = log.Error().Err(res.Err)
	}
	ev.Str(logging.FieldState, res.State.String()).
		Int(logging.FieldPercent, res.Percent).
		Msg("transfer finished")
	return res
}

type outcome int

const (
	outcomeExhausted outcome = iota
	outcomeComplete
	outcomeFatal
)

func (e *Executor) run(ctx context.Context, job *TransferJob, sink ProgressSink, log zerolog.Logger) (result Result) {
	if required := job.Medium.Required(); !e.caps.Has(required) {
		return failed(job, fmt.Errorf("%w: %s transfer needs %s, have %s",
			ErrCapabilityUnavailable, job.Medium, required, e.caps))
	}
	if ctx.Err() != nil {
		return Result{State: Cancelled, Err: context.Cause(ctx)}
	}

	res, err := e.open(ctx, job)
	if err != nil {
		return failed(job, fmt.Errorf("%w: %w", ErrCannotOpenResource, err))
	}
	defer func() { result = e.publish(job, res, result, log) }()
	defer res.close(log)

	pipe, err := e.launcher.Launch(ctx, res.spec)
	if err != nil {
		return failed(job, fmt.Errorf("%w: %w", ErrCannotOpenResource, err))
	}
	defer pipe.Close()

	job.State = Running
	if e.tracker != nil {
		if err := e.tracker.MarkRunning(job.ID); err != nil {
			log.Warn().Err(err).Msg("journal update failed")
		}
	}
	log.Info().Msg("transfer started")

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(interrupted)
		log.Info().Msg("interrupting pipeline")
		done := make(chan error, 1)
		go func() { done <- pipe.Wait() }()
		_ = terminate(pipe, done, e.grace)
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
	}()

	dec := NewDecoder(pipe.Progress())
	oc, fatalLine := e.consume(dec, job, sink, log)

	switch oc {
	case outcomeComplete:
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			_, _ = io.Copy(io.Discard, pipe.Progress())
		}()
		if err := e.reap(pipe, e.settle); err != nil {
			log.Debug().Err(err).Msg("pipeline exit after completion")
		}
		_ = pipe.Close()
		<-drained
		if job.Direction == Load {
			if err := res.target.Sync(); err != nil {
				log.Warn().Err(err).Msg("flush device")
			}
		}
		return Result{State: Succeeded, Percent: 100}

	case outcomeFatal:
		if err := e.reap(pipe, 0); err != nil {
			log.Debug().Err(err).Msg("pipeline exit after fatal report")
		}
		return failed(job, fmt.Errorf("%w: %s", ErrSourceNotFound, fatalLine))
	}

	if err := dec.Err(); err != nil {
		log.Warn().Err(err).Msg("progress channel read")
	}
	if ctx.Err() != nil {
		_ = e.reap(pipe, 0)
		return Result{State: Cancelled, Err: context.Cause(ctx), Percent: job.Percent}
	}
	waitErr := e.reap(pipe, e.settle)
	if waitErr != nil {
		return failed(job, fmt.Errorf("%w at %d%%: %w", ErrIncompleteTransfer, job.Percent, waitErr))
	}
	return failed(job, fmt.Errorf("%w at %d%%", ErrIncompleteTransfer, job.Percent))
}

// consume reads events until completion, a fatal report or the end of the
// stream.
func (e *Executor) consume(dec *Decoder, job *TransferJob, sink ProgressSink, log zerolog.Logger) (outcome, string) {
	highest := -1
	for ev := range dec.Events() {
		switch ev.Kind {
		case EventFatal:
			return outcomeFatal, ev.Line
		case EventPercent:
			if ev.Percent <= highest {
				continue
			}
			highest = ev.Percent
			job.Percent = ev.Percent
			sink.Progress(ev.Percent)
			if e.tracker != nil {
				if _, err := e.tracker.RecordProgress(job.ID, ev.Percent); err != nil {
					log.Warn().Err(err).Msg("journal checkpoint failed")
				}
			}
			if ev.Percent == 100 {
				return outcomeComplete, ""
			}
		default:
			if ev.Line != "" {
				log.Debug().Str("line", ev.Line).Msg("progress noise")
			}
		}
	}
	return outcomeExhausted, ""
}

// reap waits patience for the pipeline to exit on its own, then
// terminates it.
func (e *Executor) reap(p Pipeline, patience time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	if patience > 0 {
		timer := time.NewTimer(patience)
		defer timer.Stop()
		select {
		case err := <-done:
			return err
		case <-timer.C:
		}
	}
	return terminate(p, done, e.grace)
}

// terminate sends SIGTERM, then SIGKILL once grace expires, and waits for
// the exit to be observed.
func terminate(p Pipeline, done <-chan error, grace time.Duration) error {
	_ = p.Signal(syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
	}

	_ = p.Signal(syscall.SIGKILL)
	return <-done
}

type resources struct {
	spec    PipelineSpec
	target  provider.File
	closers []io.Closer

	// partial is the file an archive is written to before it replaces
	// the requested target.
	partial string
}

func (r *resources) close(log zerolog.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("close resource")
		}
	}
}

// open acquires the files a job's pipeline reads from and writes to.
func (e *Executor) open(ctx context.Context, job *TransferJob) (*resources, error) {
	res := &resources{spec: PipelineSpec{Direction: job.Direction, SourcePath: job.SourcePath}}

	switch job.Direction {
	case Load:
		target, err := e.provider.OpenDevice(ctx, job.TargetPath)
		if err != nil {
			return nil, fmt.Errorf("open device: %w", err)
		}
		res.target = target
		res.closers = append(res.closers, target)
		res.spec.Target = target

	case Archive:
		source, err := e.provider.OpenRead(ctx, job.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("open device: %w", err)
		}
		size, err := provider.Size(source)
		if err != nil {
			source.Close()
			return nil, fmt.Errorf("size device: %w", err)
		}
		res.partial = provider.PartialPath(job.TargetPath)
		target, err := e.provider.OpenWrite(ctx, res.partial)
		if err != nil {
			source.Close()
			return nil, fmt.Errorf("open image: %w", err)
		}
		res.target = target
		res.closers = append(res.closers, source, target)
		res.spec.Source = source
		res.spec.Target = target
		res.spec.Size = size

	default:
		return nil, fmt.Errorf("unknown direction %s", job.Direction)
	}
	return res, nil
}

// publish moves a completed archive over its target, or discards an
// unfinished one so the previous image at the target survives. It runs
// after the resources are closed.
func (e *Executor) publish(job *TransferJob, res *resources, result Result, log zerolog.Logger) Result {
	if res.partial == "" {
		return result
	}
	if result.State == Succeeded {
		err := e.provider.Rename(res.partial, job.TargetPath)
		if err == nil {
			return result
		}
		result = Result{State: Failed, Percent: result.Percent,
			Err: fmt.Errorf("%w: publish %s: %w", ErrIncompleteTransfer, job.TargetPath, err)}
	}
	if err := e.provider.Remove(res.partial); err != nil {
		log.Warn().Err(err).Str(logging.FieldPath, res.partial).Msg("remove unfinished archive")
	}
	return result
}

func failed(job *TransferJob, err error) Result {
	return Result{State: Failed, Err: err, Percent: job.Percent}
}
