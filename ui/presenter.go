// Package ui renders the operator dialogs as short-lived terminal programs.
package ui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/franksops/reflash/dispatch"
	"github.com/franksops/reflash/engine"
	"github.com/franksops/reflash/logging"
)

// Presenter implements dispatch.Presenter on bubbletea.
type Presenter struct {
	banner string
	opts   []tea.ProgramOption
	st     styles
	now    func() time.Time
	log    zerolog.Logger
}

var _ dispatch.Presenter = (*Presenter)(nil)

// NewPresenter creates a presenter whose menu shows banner. Program options
// are passed to every dialog; the alternate screen is used by default.
func NewPresenter(banner string, opts ...tea.ProgramOption) *Presenter {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &Presenter{
		banner: banner,
		opts:   opts,
		st:     newStyles(),
		now:    time.Now,
		log:    logging.WithComponent("ui"),
	}
}

func (p *Presenter) ChooseAction(ctx context.Context, actions []dispatch.Action) (dispatch.Action, error) {
	items := make([]string, len(actions))
	for i, a := range actions {
		items[i] = a.String()
	}
	final, err := p.run(ctx, newMenuModel("reflash", p.banner, items, p.st))
	if err != nil {
		return 0, err
	}
	m := final.(menuModel)
	if m.cancelled || m.chosen < 0 {
		return 0, dispatch.ErrCancelled
	}
	return actions[m.chosen], nil
}

func (p *Presenter) ChooseFile(ctx context.Context, title, root string, files []string) (string, error) {
	final, err := p.run(ctx, newPickerModel(fmt.Sprintf("%s (%s)", title, root), files))
	if err != nil {
		return "", err
	}
	m := final.(pickerModel)
	if m.cancelled || m.chosen == "" {
		return "", dispatch.ErrCancelled
	}
	return m.chosen, nil
}

func (p *Presenter) EnterPath(ctx context.Context, title, dir, suggestion string) (string, error) {
	final, err := p.run(ctx, newInputModel(title, dir, suggestion, p.st))
	if err != nil {
		return "", err
	}
	m := final.(inputModel)
	if m.cancelled || !m.done {
		return "", dispatch.ErrCancelled
	}
	return m.input.Value(), nil
}

func (p *Presenter) Confirm(ctx context.Context, question string) (bool, error) {
	final, err := p.run(ctx, newConfirmModel(question, p.st))
	if err != nil {
		return false, err
	}
	m := final.(confirmModel)
	if m.cancelled || !m.done {
		return false, dispatch.ErrCancelled
	}
	return m.yes, nil
}

func (p *Presenter) Notify(ctx context.Context, title, message string) error {
	_, err := p.run(ctx, newMessageModel(title, message, p.st))
	return err
}

// Transfer runs the job in the background and renders its progress until
// the result arrives. The job is always waited for, even if the terminal
// program fails.
func (p *Presenter) Transfer(ctx context.Context, title string, run func(engine.ProgressSink) engine.Result) engine.Result {
	prog := tea.NewProgram(newTransferModel(title, p.now, p.st), p.programOptions(ctx)...)

	done := make(chan engine.Result, 1)
	go func() {
		res := run(engine.ProgressFunc(func(percent int) {
			prog.Send(progressMsg(percent))
		}))
		prog.Send(resultMsg{result: res})
		done <- res
	}()

	if _, err := prog.Run(); err != nil && ctx.Err() == nil {
		p.log.Error().Err(err).Msg("progress view failed")
	}
	return <-done
}

func (p *Presenter) run(ctx context.Context, m tea.Model) (tea.Model, error) {
	final, err := tea.NewProgram(m, p.programOptions(ctx)...).Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ui: %w", err)
	}
	return final, nil
}

func (p *Presenter) programOptions(ctx context.Context) []tea.ProgramOption {
	return append([]tea.ProgramOption{tea.WithContext(ctx)}, p.opts...)
}
