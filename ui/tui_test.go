package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/franksops/reflash/engine"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		percent  int
		elapsed  time.Duration
		expected string
	}{
		{0, 10 * time.Second, "Calculating..."},
		{50, 0, "Calculating..."},
		{50, 5 * time.Second, "5s"},
		{25, time.Minute, "3m0s"},
		{100, time.Minute, "0s"},
		{1, 20 * time.Minute, "> 1d"},
	}

	for _, tt := range tests {
		result := formatETA(tt.percent, tt.elapsed)
		if result != tt.expected {
			t.Errorf("formatETA(%v, %v) = %v; want %v", tt.percent, tt.elapsed, result, tt.expected)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsed(61*time.Second + 400*time.Millisecond); got != "1m1s" {
		t.Errorf("formatElapsed = %q; want 1m1s", got)
	}
}

func TestMenuModel(t *testing.T) {
	m := newMenuModel("reflash", "target /dev/sda", []string{"Load image from depot", "Exit"}, newStyles())

	view := m.View()
	if !strings.Contains(view, "1. Load image from depot") || !strings.Contains(view, "target /dev/sda") {
		t.Errorf("unexpected menu view:\n%s", view)
	}

	next, _ := m.Update(key("up"))
	m = next.(menuModel)
	if m.cursor != 0 {
		t.Errorf("cursor moved above the first entry: %d", m.cursor)
	}

	next, _ = m.Update(key("down"))
	next, _ = next.Update(key("down"))
	m = next.(menuModel)
	if m.cursor != 1 {
		t.Errorf("cursor moved past the last entry: %d", m.cursor)
	}

	next, cmd := m.Update(key("enter"))
	m = next.(menuModel)
	if m.chosen != 1 || cmd == nil {
		t.Errorf("enter should choose the cursor entry and quit, got chosen=%d", m.chosen)
	}
}

func TestMenuModel_Shortcuts(t *testing.T) {
	m := newMenuModel("reflash", "", []string{"a", "b", "c"}, newStyles())

	next, _ := m.Update(key("3"))
	if got := next.(menuModel).chosen; got != 2 {
		t.Errorf("digit shortcut chose %d; want 2", got)
	}

	next, _ = m.Update(key("9"))
	if got := next.(menuModel).chosen; got != -1 {
		t.Errorf("out of range digit chose %d", got)
	}

	next, _ = m.Update(key("esc"))
	if !next.(menuModel).cancelled {
		t.Error("esc should cancel")
	}
}

func TestConfirmModel(t *testing.T) {
	m := newConfirmModel("Overwrite?", newStyles())

	next, _ := m.Update(key("enter"))
	c := next.(confirmModel)
	if !c.done || c.yes {
		t.Errorf("enter on a fresh prompt must answer no, got done=%v yes=%v", c.done, c.yes)
	}

	next, _ = m.Update(key("right"))
	next, _ = next.Update(key("enter"))
	c = next.(confirmModel)
	if !c.yes {
		t.Error("toggle then enter should answer yes")
	}

	next, _ = m.Update(key("y"))
	if !next.(confirmModel).yes {
		t.Error("y should answer yes")
	}

	next, _ = m.Update(key("esc"))
	if !next.(confirmModel).cancelled {
		t.Error("esc should cancel")
	}
}

func TestInputModel(t *testing.T) {
	m := newInputModel("Save device image as", "/mnt/usb", "image-20260301-120000.img", newStyles())
	if m.input.Value() != "image-20260301-120000.img" {
		t.Errorf("suggestion not prefilled: %q", m.input.Value())
	}

	next, _ := m.Update(key("enter"))
	in := next.(inputModel)
	if !in.done || in.cancelled {
		t.Errorf("enter should accept, got done=%v cancelled=%v", in.done, in.cancelled)
	}

	next, _ = m.Update(key("esc"))
	if !next.(inputModel).cancelled {
		t.Error("esc should cancel")
	}
}

func TestPickerModel(t *testing.T) {
	m := newPickerModel("Select image", []string{"golden.img", "sub/field.img"})

	next, _ := m.Update(key("down"))
	next, cmd := next.Update(key("enter"))
	p := next.(pickerModel)
	if p.chosen != "sub/field.img" || cmd == nil {
		t.Errorf("expected sub/field.img to be chosen, got %q", p.chosen)
	}

	next, _ = m.Update(key("esc"))
	if !next.(pickerModel).cancelled {
		t.Error("esc should cancel")
	}
}

func TestTransferModel(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	m := newTransferModel("Loading golden.img onto /dev/sda", now, newStyles())

	if !strings.Contains(m.View(), "Starting copy") {
		t.Errorf("expected a starting view, got:\n%s", m.View())
	}

	next, _ := m.Update(progressMsg(40))
	next, _ = next.Update(progressMsg(30))
	tm := next.(transferModel)
	if tm.percent != 40 {
		t.Errorf("percent went backwards: %d", tm.percent)
	}

	clock = clock.Add(40 * time.Second)
	if view := tm.View(); !strings.Contains(view, "ETA: 1m0s") {
		t.Errorf("expected ETA in view, got:\n%s", view)
	}

	next, _ = tm.Update(key("q"))
	if next.(transferModel).result != nil {
		t.Error("keys must not end a transfer")
	}

	next, cmd := tm.Update(resultMsg{result: engine.Result{State: engine.Failed, Err: errors.New("boom")}})
	tm = next.(transferModel)
	if tm.result == nil || cmd == nil {
		t.Fatal("result should be recorded and quit the program")
	}
	if !strings.Contains(tm.View(), "Transfer Failed") {
		t.Errorf("expected failure line, got:\n%s", tm.View())
	}
}
