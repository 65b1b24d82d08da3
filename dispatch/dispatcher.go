package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/franksops/reflash/config"
	"github.com/franksops/reflash/engine"
	"github.com/franksops/reflash/logging"
	"github.com/franksops/reflash/probe"
	"github.com/franksops/reflash/provider"
)

// ErrCancelled is returned by a Presenter when the operator backs out of a
// prompt.
var ErrCancelled = errors.New("cancelled by operator")

// ErrOutsideMedium rejects a path that leaves the directory of the chosen medium.
var ErrOutsideMedium = errors.New("outside the selected medium")

// Presenter renders prompts and transfer progress.
type Presenter interface {
	// ChooseAction shows the menu.
	ChooseAction(ctx context.Context, actions []Action) (Action, error)
	// ChooseFile picks one of files, given relative to root.
	ChooseFile(ctx context.Context, title, root string, files []string) (string, error)
	// EnterPath asks for a file name, relative to dir or absolute.
	EnterPath(ctx context.Context, title, dir, suggestion string) (string, error)
	Confirm(ctx context.Context, question string) (bool, error)
	Notify(ctx context.Context, title, message string) error
	// Transfer shows progress while run executes and returns its result.
	Transfer(ctx context.Context, title string, run func(engine.ProgressSink) engine.Result) engine.Result
}

// Runner executes transfer jobs.
type Runner interface {
	Run(ctx context.Context, job *engine.TransferJob, sink engine.ProgressSink) engine.Result
}

// Files validates and lists the paths an operator picks.
type Files interface {
	Catalog(ctx context.Context, root string) ([]string, error)
	CheckReadable(path string) error
	CheckWritableTarget(path string) (exists bool, err error)
	EnsureDir(dir string) error
}

// Rebooter restarts the machine.
type Rebooter interface {
	Reboot() error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDeviceDescriber replaces the hardware lookup used in the erase prompt.
func WithDeviceDescriber(fn func(path string) (provider.DeviceInfo, error)) Option {
	return func(d *Dispatcher) { d.describe = fn }
}

// WithClock sets the time source for suggested archive names.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher loops the operator menu.
type Dispatcher struct {
	cfg       config.Config
	caps      probe.Capabilities
	runner    Runner
	files     Files
	presenter Presenter
	rebooter  Rebooter
	describe  func(path string) (provider.DeviceInfo, error)
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a Dispatcher for one probe result.
func New(cfg config.Config, caps probe.Capabilities, runner Runner, files Files, presenter Presenter, rebooter Rebooter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:       cfg,
		caps:      caps,
		runner:    runner,
		files:     files,
		presenter: presenter,
		rebooter:  rebooter,
		describe:  provider.DescribeDevice,
		now:       time.Now,
		log:       logging.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run presents the menu until the operator exits, which returns nil.
// A cancelled ctx returns its error; so does a broken presenter.
func (d *Dispatcher) Run(ctx context.Context) error {
	actions := Offered(d.caps)
	d.log.Info().
		Str(logging.FieldCaps, d.caps.String()).
		Int("actions", len(actions)).
		Msg("menu ready")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		action, err := d.presenter.ChooseAction(ctx, actions)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrCancelled) {
				d.log.Info().Msg("menu cancelled")
				return nil
			}
			return fmt.Errorf("menu: %w", err)
		}
		if action == Exit {
			d.log.Info().Msg("operator exit")
			return nil
		}

		if err := d.perform(ctx, action); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrCancelled) {
				d.log.Debug().Stringer("action", action).Msg("action cancelled")
				continue
			}
			return err
		}
	}
}

// perform runs one menu action. ErrCancelled means back to the menu.
func (d *Dispatcher) perform(ctx context.Context, action Action) error {
	log := d.log.With().Stringer("action", action).Logger()
	if !d.caps.Has(action.Required()) {
		log.Warn().Str(logging.FieldCaps, d.caps.String()).Msg("action not available")
		return d.presenter.Notify(ctx, "Unavailable", fmt.Sprintf("%s is not available on this terminal.", action))
	}

	var job *engine.TransferJob
	switch action.Direction() {
	case engine.Load:
		src, err := d.selectFileForRead(ctx, d.loadDir(action))
		if err != nil {
			return err
		}
		ok, err := d.presenter.Confirm(ctx, d.eraseQuestion(src))
		if err != nil {
			return err
		}
		if !ok {
			return ErrCancelled
		}
		job = engine.NewTransferJob(engine.Load, action.Medium(), src, d.cfg.TargetDevice)

	case engine.Archive:
		dir := d.archiveDir(action)
		if err := d.files.EnsureDir(dir); err != nil {
			log.Error().Err(err).Str(logging.FieldPath, dir).Msg("prepare archive directory")
			return d.presenter.Notify(ctx, "Archive failed", fmt.Sprintf("Cannot use %s: %v", dir, err))
		}
		dst, err := d.selectFileForWrite(ctx, dir)
		if err != nil {
			return err
		}
		job = engine.NewTransferJob(engine.Archive, action.Medium(), d.cfg.TargetDevice, dst)

	default:
		return fmt.Errorf("action %s has no transfer", action)
	}

	log.Info().
		Str(logging.FieldJobID, job.ID).
		Str(logging.FieldSource, job.SourcePath).
		Str(logging.FieldTarget, job.TargetPath).
		Msg("job confirmed")

	res := d.presenter.Transfer(ctx, transferTitle(job), func(sink engine.ProgressSink) engine.Result {
		return d.runner.Run(ctx, job, sink)
	})
	return d.report(ctx, job, res)
}

func (d *Dispatcher) report(ctx context.Context, job *engine.TransferJob, res engine.Result) error {
	switch res.State {
	case engine.Succeeded:
		ok, err := d.presenter.Confirm(ctx, fmt.Sprintf("%s\n\nReboot now?", successMessage(job)))
		if err != nil || !ok {
			return err
		}
		d.log.Info().Str(logging.FieldJobID, job.ID).Msg("rebooting")
		if err := d.rebooter.Reboot(); err != nil {
			d.log.Error().Err(err).Msg("reboot failed")
			return d.presenter.Notify(ctx, "Reboot failed", err.Error())
		}
		return nil

	case engine.Cancelled:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return d.presenter.Notify(ctx, "Transfer cancelled", failureMessage(res.Err))

	default:
		return d.presenter.Notify(ctx, "Transfer failed", failureMessage(res.Err))
	}
}

// selectFileForRead offers the images under dir until the operator picks a
// readable regular file or cancels.
func (d *Dispatcher) selectFileForRead(ctx context.Context, dir string) (string, error) {
	for {
		files, err := d.files.Catalog(ctx, dir)
		if err != nil {
			d.log.Error().Err(err).Str(logging.FieldPath, dir).Msg("list images")
			if err := d.presenter.Notify(ctx, "No images", fmt.Sprintf("Cannot list %s: %v", dir, err)); err != nil {
				return "", err
			}
			return "", ErrCancelled
		}
		if len(files) == 0 {
			if err := d.presenter.Notify(ctx, "No images", fmt.Sprintf("There are no images in %s.", dir)); err != nil {
				return "", err
			}
			return "", ErrCancelled
		}

		pick, err := d.presenter.ChooseFile(ctx, "Select image to load", dir, files)
		if err != nil {
			return "", err
		}
		path, err := resolve(dir, pick)
		if err == nil {
			err = d.files.CheckReadable(path)
		}
		if err != nil {
			d.log.Warn().Err(err).Str(logging.FieldPath, path).Msg("rejected image")
			if err := d.presenter.Notify(ctx, "Invalid selection", fmt.Sprintf("%s cannot be loaded: %v", path, err)); err != nil {
				return "", err
			}
			continue
		}
		return path, nil
	}
}

// selectFileForWrite asks for an archive path until the operator gives one
// that can be written, confirming before an existing file is replaced.
func (d *Dispatcher) selectFileForWrite(ctx context.Context, dir string) (string, error) {
	suggestion := d.suggestName()
	for {
		entered, err := d.presenter.EnterPath(ctx, "Save device image as", dir, suggestion)
		if err != nil {
			return "", err
		}
		entered = strings.TrimSpace(entered)
		if entered == "" {
			if err := d.presenter.Notify(ctx, "Invalid name", "Enter a file name."); err != nil {
				return "", err
			}
			continue
		}
		suggestion = entered

		path, err := resolve(dir, entered)
		var exists bool
		if err == nil {
			exists, err = d.files.CheckWritableTarget(path)
		}
		if err != nil {
			d.log.Warn().Err(err).Str(logging.FieldPath, path).Msg("rejected archive target")
			if err := d.presenter.Notify(ctx, "Invalid selection", fmt.Sprintf("Cannot write %s: %v", path, err)); err != nil {
				return "", err
			}
			continue
		}
		if exists {
			ok, err := d.presenter.Confirm(ctx, fmt.Sprintf("%s already exists.\n\nOverwrite it?", path))
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
		}
		return path, nil
	}
}

func (d *Dispatcher) loadDir(action Action) string {
	if action.Medium() == engine.Depot {
		return d.cfg.NetworkMountPoint
	}
	return d.cfg.LocalMountPoint
}

func (d *Dispatcher) archiveDir(action Action) string {
	if action.Medium() == engine.Depot {
		return d.cfg.ArchiveDir()
	}
	return d.cfg.LocalMountPoint
}

func (d *Dispatcher) eraseQuestion(src string) string {
	device := d.cfg.TargetDevice
	if info, err := d.describe(device); err == nil {
		device = info.String()
	} else {
		d.log.Debug().Err(err).Str(logging.FieldDevice, device).Msg("describe device")
	}
	return fmt.Sprintf("Write %s to %s?\n\nEverything on the device will be erased.", filepath.Base(src), device)
}

func (d *Dispatcher) suggestName() string {
	return "image-" + d.now().Format("20060102-150405") + ".img"
}

// resolve turns an operator entry into a path beneath dir. Absolute
// entries are accepted only when they stay under dir.
func resolve(dir, name string) (string, error) {
	path := filepath.Clean(name)
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, filepath.FromSlash(name))
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path, fmt.Errorf("%w %s", ErrOutsideMedium, dir)
	}
	return path, nil
}

func transferTitle(job *engine.TransferJob) string {
	if job.Direction == engine.Load {
		return fmt.Sprintf("Loading %s onto %s", filepath.Base(job.SourcePath), job.TargetPath)
	}
	return fmt.Sprintf("Archiving %s to %s", job.SourcePath, filepath.Base(job.TargetPath))
}

func successMessage(job *engine.TransferJob) string {
	if job.Direction == engine.Load {
		return fmt.Sprintf("%s was written to %s.", filepath.Base(job.SourcePath), job.TargetPath)
	}
	return fmt.Sprintf("%s was saved to %s.", job.SourcePath, job.TargetPath)
}

// failureMessage explains a failed job in operator terms.
func failureMessage(err error) string {
	var reason string
	switch {
	case errors.Is(err, engine.ErrSourceNotFound):
		reason = "The image file could not be found."
	case errors.Is(err, engine.ErrCannotOpenResource):
		reason = "The device or file could not be opened."
	case errors.Is(err, engine.ErrIncompleteTransfer):
		reason = "The copy stopped before it finished."
	case errors.Is(err, engine.ErrCapabilityUnavailable):
		reason = "This action is not available on this terminal."
	case errors.Is(err, context.Canceled):
		reason = "The copy was interrupted."
	default:
		reason = "The copy failed."
	}
	if err == nil {
		return reason
	}
	return reason + "\n\n" + err.Error()
}
