package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/franksops/reflash/engine"
)

type styles struct {
	title    lipgloss.Style
	info     lipgloss.Style
	help     lipgloss.Style
	selected lipgloss.Style
	errorMsg lipgloss.Style
	success  lipgloss.Style
	dialog   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		info:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		help:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color("78")).Bold(true),
		errorMsg: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		dialog:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2),
	}
}

// menuModel is a cursor list of fixed entries.
type menuModel struct {
	title  string
	banner string
	items  []string
	cursor int

	chosen    int
	cancelled bool
	st        styles
}

func newMenuModel(title, banner string, items []string, st styles) menuModel {
	return menuModel{title: title, banner: banner, items: items, chosen: -1, st: st}
}

func (m menuModel) Init() tea.Cmd { return nil }

func (m menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch s := key.String(); s {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "enter":
		m.chosen = m.cursor
		return m, tea.Quit
	case "esc", "ctrl+c", "q":
		m.cancelled = true
		return m, tea.Quit
	default:
		if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			if idx := int(s[0] - '1'); idx < len(m.items) {
				m.cursor = idx
				m.chosen = idx
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m menuModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.st.title.Render(m.title) + "\n")
	if m.banner != "" {
		sb.WriteString(m.st.info.Render(m.banner) + "\n")
	}
	sb.WriteString("\n")
	for i, item := range m.items {
		line := fmt.Sprintf("%d. %s", i+1, item)
		if i == m.cursor {
			sb.WriteString(m.st.selected.Render("> "+line) + "\n")
			continue
		}
		sb.WriteString("  " + line + "\n")
	}
	sb.WriteString(m.st.help.Render("↑/↓: move • enter: select • esc: quit"))
	return sb.String()
}

type fileItem string

func (f fileItem) FilterValue() string { return string(f) }
func (f fileItem) Title() string       { return string(f) }
func (f fileItem) Description() string { return "" }

// pickerModel is a filterable file list.
type pickerModel struct {
	list      list.Model
	chosen    string
	cancelled bool
}

func newPickerModel(title string, files []string) pickerModel {
	items := make([]list.Item, len(files))
	for i, f := range files {
		items[i] = fileItem(f)
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false

	l := list.New(items, delegate, 72, 20)
	l.Title = title
	l.SetShowStatusBar(true)
	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-1)
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(fileItem); ok {
				m.chosen = string(item)
				return m, tea.Quit
			}
		case "esc":
			if m.list.FilterState() == list.FilterApplied {
				break
			}
			m.cancelled = true
			return m, tea.Quit
		case "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	return m.list.View()
}

// inputModel asks for one line of text.
type inputModel struct {
	title string
	dir   string
	input textinput.Model

	done      bool
	cancelled bool
	st        styles
}

func newInputModel(title, dir, suggestion string, st styles) inputModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 255
	ti.Width = 60
	ti.SetValue(suggestion)
	ti.Focus()
	return inputModel{title: title, dir: dir, input: ti, st: st}
}

func (m inputModel) Init() tea.Cmd { return textinput.Blink }

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.done = true
			return m, tea.Quit
		case "esc", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.st.title.Render(m.title) + "\n")
	sb.WriteString(m.st.info.Render("in "+m.dir) + "\n\n")
	sb.WriteString(m.input.View() + "\n")
	sb.WriteString(m.st.help.Render("enter: accept • esc: back"))
	return sb.String()
}

// confirmModel is a yes/no question defaulting to no.
type confirmModel struct {
	question string
	yes      bool

	done      bool
	cancelled bool
	st        styles
}

func newConfirmModel(question string, st styles) confirmModel {
	return confirmModel{question: question, st: st}
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.yes, m.done = true, true
		return m, tea.Quit
	case "n", "N":
		m.yes, m.done = false, true
		return m, tea.Quit
	case "left", "right", "tab", "h", "l":
		m.yes = !m.yes
	case "enter":
		m.done = true
		return m, tea.Quit
	case "esc", "ctrl+c":
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	yes, no := "  Yes  ", "  No  "
	if m.yes {
		yes = m.st.selected.Render("[ Yes ]")
	} else {
		no = m.st.selected.Render("[ No ]")
	}
	body := m.question + "\n\n" + yes + "   " + no
	return m.st.dialog.Render(body) + "\n" + m.st.help.Render("y/n • ←/→: toggle • enter: accept")
}

// messageModel shows text until any dismiss key.
type messageModel struct {
	title   string
	message string
	st      styles
}

func newMessageModel(title, message string, st styles) messageModel {
	return messageModel{title: title, message: message, st: st}
}

func (m messageModel) Init() tea.Cmd { return nil }

func (m messageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter", "esc", " ", "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m messageModel) View() string {
	return m.st.dialog.Render(m.st.title.Render(m.title)+"\n\n"+m.message) + "\n" +
		m.st.help.Render("enter: continue")
}

// progressMsg carries a percent update from the executor.
type progressMsg int

// resultMsg carries the terminal result of a transfer.
type resultMsg struct {
	result engine.Result
}

// transferModel renders a running transfer. It ignores keys: a started
// copy runs to its end.
type transferModel struct {
	title   string
	percent int
	started time.Time
	now     func() time.Time
	result  *engine.Result

	spinner  spinner.Model
	progress progress.Model
	st       styles
}

func newTransferModel(title string, now func() time.Time, st styles) transferModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return transferModel{
		title:    title,
		percent:  -1,
		started:  now(),
		now:      now,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
		st:       st,
	}
}

func (m transferModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		if int(msg) > m.percent {
			m.percent = int(msg)
		}

	case resultMsg:
		res := msg.result
		m.result = &res
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.progress.Width = max(msg.Width-14, 10)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		model, cmd := m.progress.Update(msg)
		m.progress = model.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m transferModel) View() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s\n\n", m.spinner.View(), m.st.title.Render(m.title)))

	if m.percent < 0 {
		sb.WriteString(m.st.info.Render("Starting copy...") + "\n")
	} else {
		sb.WriteString(m.progress.ViewAs(float64(m.percent)/100) + "\n")
		elapsed := m.now().Sub(m.started)
		sb.WriteString(m.st.info.Render(fmt.Sprintf("Elapsed: %s | ETA: %s",
			formatElapsed(elapsed), formatETA(m.percent, elapsed))) + "\n")
	}

	if m.result != nil {
		if m.result.State == engine.Succeeded {
			sb.WriteString(m.st.success.Render("Transfer complete!"))
		} else {
			sb.WriteString(m.st.errorMsg.Render("Transfer " + m.result.State.String()))
		}
		return sb.String()
	}
	sb.WriteString(m.st.help.Render("Do not power off or remove media until the copy finishes."))
	return sb.String()
}

func formatElapsed(d time.Duration) string {
	return d.Round(time.Second).String()
}

// formatETA extrapolates the remaining time from the rate so far.
func formatETA(percent int, elapsed time.Duration) string {
	if percent <= 0 || elapsed <= 0 {
		return "Calculating..."
	}
	if percent >= 100 {
		return "0s"
	}

	remaining := time.Duration(float64(elapsed) * float64(100-percent) / float64(percent))
	if remaining.Hours() > 24 {
		return "> 1d"
	}
	return remaining.Round(time.Second).String()
}
