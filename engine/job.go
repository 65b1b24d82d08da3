package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/franksops/reflash/probe"
)

// Failure reasons carried by a Failed job. Classify with errors.Is.
var (
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrCannotOpenResource    = errors.New("cannot open resource")
	ErrSourceNotFound        = errors.New("source not found")
	ErrIncompleteTransfer    = errors.New("incomplete transfer")
)

// Direction says which way bytes flow between an image file and the device.
type Direction int

const (
	// Load writes an image file onto the block device.
	Load Direction = iota + 1
	// Archive reads the block device into an image file.
	Archive
)

func (d Direction) String() string {
	switch d {
	case Load:
		return "load"
	case Archive:
		return "archive"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Medium is where the image file lives.
type Medium int

const (
	Depot Medium = iota + 1
	Local
)

func (m Medium) String() string {
	switch m {
	case Depot:
		return "depot"
	case Local:
		return "local"
	}
	return fmt.Sprintf("medium(%d)", int(m))
}

// Required is the capability that must be present before touching m.
// An unknown medium requires a flag that can never be set.
func (m Medium) Required() probe.Capabilities {
	switch m {
	case Depot:
		return probe.DepotMounted
	case Local:
		return probe.LocalMediaMounted
	}
	return ^probe.Capabilities(0)
}

// State is the lifecycle state of a TransferJob.
type State int

const (
	Pending State = iota
	Running
	Succeeded
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s ends a job's lifecycle.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// TransferJob represents a single copy between an image file and the device.
type TransferJob struct {
	ID        string
	Direction Direction
	Medium    Medium

	// SourcePath is the image file (Load) or the device (Archive).
	SourcePath string
	// TargetPath is the device (Load) or the image file (Archive).
	TargetPath string

	State State
	// Err is the failure reason once State is Failed or Cancelled.
	Err error
	// Percent is the highest progress reported so far.
	Percent int
}

// NewTransferJob creates a Pending job with a fresh ID.
func NewTransferJob(direction Direction, medium Medium, source, target string) *TransferJob {
	return &TransferJob{
		ID:         uuid.NewString(),
		Direction:  direction,
		Medium:     medium,
		SourcePath: source,
		TargetPath: target,
		State:      Pending,
	}
}

// Result is the terminal outcome of Executor.Run.
type Result struct {
	State   State
	Err     error
	Percent int
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s(%v)", r.State, r.Err)
	}
	return r.State.String()
}

// ProgressSink receives percent updates while a job runs.
type ProgressSink interface {
	Progress(percent int)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(percent int)

func (f ProgressFunc) Progress(percent int) { f(percent) }
