package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/franksops/reflash/config"
	"github.com/franksops/reflash/logging"
	"github.com/franksops/reflash/procgroup"
)

// PipelineSpec describes the copy a Launcher should start.
type PipelineSpec struct {
	Direction Direction

	// SourcePath is handed to the progress tool on Load so that it can
	// report a missing image on its own progress channel.
	SourcePath string
	// Source is the opened device on Archive.
	Source io.Reader
	// Target receives the copied bytes.
	Target io.Writer
	// Size is the number of bytes expected on Archive.
	Size int64
}

// Pipeline is a running copy. All its processes share one process group.
type Pipeline interface {
	// Progress is the stream of progress lines. It reaches EOF once every
	// writer has exited.
	Progress() io.Reader
	// Wait blocks until every stage has exited. It may be called more than
	// once and from several goroutines.
	Wait() error
	// Signal delivers sig to the whole group.
	Signal(sig syscall.Signal) error
	// Close releases the parent's end of the progress channel.
	Close() error
}

// Launcher starts pipelines.
type Launcher interface {
	Launch(ctx context.Context, spec PipelineSpec) (Pipeline, error)
}

// stderrTail is how many lines of copier diagnostics are kept per run.
const stderrTail = 20

// CommandLauncher runs the copy as external processes:
//
//	load:    pv -n <image>              > device
//	archive: dd bs=<n> < device | pv -n -s <size> > image
//
// pv's stderr is the progress channel.
type CommandLauncher struct {
	PVPath    string
	DDPath    string
	BlockSize string

	log zerolog.Logger
}

// NewCommandLauncher builds a launcher from the configured tool paths.
func NewCommandLauncher(cfg config.Config) *CommandLauncher {
	return &CommandLauncher{
		PVPath:    cfg.PVPath,
		DDPath:    cfg.DDPath,
		BlockSize: cfg.BlockSize,
		log:       logging.WithComponent("pipeline"),
	}
}

// Launch starts the stages described by spec.
func (l *CommandLauncher) Launch(ctx context.Context, spec PipelineSpec) (Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Target == nil {
		return nil, errors.New("pipeline has no target")
	}

	progressR, progressW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("progress channel: %w", err)
	}

	var p *commandPipeline
	switch spec.Direction {
	case Load:
		p, err = l.startLoad(spec, progressW)
	case Archive:
		p, err = l.startArchive(spec, progressW)
	default:
		err = fmt.Errorf("unknown direction %s", spec.Direction)
	}
	// The children hold their own copies of the write end; the parent's
	// copy must go or the channel never reaches EOF.
	progressW.Close()
	if err != nil {
		progressR.Close()
		return nil, err
	}

	p.progress = progressR
	l.log.Debug().
		Str(logging.FieldDirection, spec.Direction.String()).
		Int("pgid", p.pgid).
		Strs("argv", p.argv()).
		Msg("pipeline started")
	return p, nil
}

// LoadArgs is the argv of the single Load stage.
func (l *CommandLauncher) LoadArgs(source string) []string {
	return []string{l.PVPath, "-n", source}
}

// ArchiveArgs is the argv of the reader and meter stages of an Archive.
func (l *CommandLauncher) ArchiveArgs(size int64) (reader, meter []string) {
	reader = []string{l.DDPath, "bs=" + l.BlockSize}
	meter = []string{l.PVPath, "-n", "-s", strconv.FormatInt(size, 10)}
	return reader, meter
}

func (l *CommandLauncher) startLoad(spec PipelineSpec, progress *os.File) (*commandPipeline, error) {
	if spec.SourcePath == "" {
		return nil, errors.New("load pipeline has no source path")
	}
	argv := l.LoadArgs(spec.SourcePath)
	pv := exec.Command(argv[0], argv[1:]...)
	pv.Stdout = spec.Target
	pv.Stderr = progress
	procgroup.Set(pv)

	if err := pv.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	return &commandPipeline{stages: []*exec.Cmd{pv}, pgid: pv.Process.Pid}, nil
}

func (l *CommandLauncher) startArchive(spec PipelineSpec, progress *os.File) (*commandPipeline, error) {
	if spec.Source == nil {
		return nil, errors.New("archive pipeline has no source")
	}
	readerArgv, meterArgv := l.ArchiveArgs(spec.Size)

	linkR, linkW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stage link: %w", err)
	}
	defer linkR.Close()
	defer linkW.Close()

	diag := newLineTail(stderrTail)
	dd := exec.Command(readerArgv[0], readerArgv[1:]...)
	dd.Stdin = spec.Source
	dd.Stdout = linkW
	dd.Stderr = diag
	procgroup.Set(dd)
	if err := dd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", readerArgv[0], err)
	}
	pgid := dd.Process.Pid

	pv := exec.Command(meterArgv[0], meterArgv[1:]...)
	pv.Stdin = linkR
	pv.Stdout = spec.Target
	pv.Stderr = progress
	procgroup.Join(pv, pgid)
	if err := pv.Start(); err != nil {
		_ = procgroup.Kill(pgid, syscall.SIGKILL)
		_ = dd.Wait()
		return nil, fmt.Errorf("start %s: %w", meterArgv[0], err)
	}

	return &commandPipeline{stages: []*exec.Cmd{dd, pv}, pgid: pgid, diag: diag}, nil
}

type commandPipeline struct {
	stages   []*exec.Cmd
	pgid     int
	progress *os.File
	diag     *lineTail

	waitOnce sync.Once
	waitErr  error
}

func (p *commandPipeline) Progress() io.Reader { return p.progress }

func (p *commandPipeline) Wait() error {
	p.waitOnce.Do(func() {
		var errs []error
		for _, cmd := range p.stages {
			if err := cmd.Wait(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", cmd.Path, err))
			}
		}
		if len(errs) > 0 && p.diag != nil {
			if tail := p.diag.Lines(); len(tail) > 0 {
				errs = append(errs, fmt.Errorf("stderr: %s", strings.Join(tail, " | ")))
			}
		}
		p.waitErr = errors.Join(errs...)
	})
	return p.waitErr
}

func (p *commandPipeline) Signal(sig syscall.Signal) error {
	return procgroup.Kill(p.pgid, sig)
}

func (p *commandPipeline) Close() error {
	return p.progress.Close()
}

func (p *commandPipeline) argv() []string {
	out := make([]string, 0, len(p.stages))
	for _, cmd := range p.stages {
		out = append(out, strings.Join(cmd.Args, " "))
	}
	return out
}

// lineTail keeps the last lines written to it.
type lineTail struct {
	mu      sync.Mutex
	lines   []string
	next    int
	full    bool
	partial strings.Builder
}

func newLineTail(capacity int) *lineTail {
	if capacity < 1 {
		capacity = 1
	}
	return &lineTail{lines: make([]string, capacity)}
}

func (t *lineTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range p {
		if b != '\n' && b != '\r' {
			t.partial.WriteByte(b)
			continue
		}
		t.push()
	}
	return len(p), nil
}

func (t *lineTail) push() {
	line := strings.TrimSpace(t.partial.String())
	t.partial.Reset()
	if line == "" {
		return
	}
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

// Lines returns the retained lines, oldest first, including an
// unterminated last line.
func (t *lineTail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	if t.full {
		out = append(out, t.lines[t.next:]...)
	}
	out = append(out, t.lines[:t.next]...)
	if rest := strings.TrimSpace(t.partial.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}
