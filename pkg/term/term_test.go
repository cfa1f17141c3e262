package term

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/stanza/pkg/display"
)

func TestRendererEmitsTextAndNotices(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Emit(display.Text{Body: "plain line"})
	r.Emit(display.ErrorNotice{Header: "Access denied", Reason: "sign-in required", Hint: "authenticate and try again"})

	out := buf.String()
	for _, want := range []string{"plain line", "Access denied", "sign-in required", "authenticate and try again"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRendererMenuListsOptions(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Emit(display.Menu{
		Title:   "Main",
		Crumb:   "Main > Browse",
		Options: []display.Option{{Key: "Browse"}, {Key: "Quit"}},
	})

	out := buf.String()
	for _, want := range []string{"Main", "Browse", "Quit", "1.", "2."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMenuModelSelection(t *testing.T) {
	m := menuModel{menu: display.Menu{
		Title:     "Main",
		Options:   []display.Option{{Key: "Browse"}, {Key: "Account"}, {Key: "Quit"}},
		AllowBack: true,
	}}

	next, _ := m.Update(keyMsg("down"))
	next, _ = next.(menuModel).Update(keyMsg("enter"))
	got := next.(menuModel)
	if !got.chosen || got.cursor != 1 {
		t.Errorf("chosen=%v cursor=%d, want chosen at 1", got.chosen, got.cursor)
	}
}

func TestMenuModelQuickSelect(t *testing.T) {
	m := menuModel{menu: display.Menu{
		Options: []display.Option{{Key: "A"}, {Key: "B"}, {Key: "C"}},
	}}
	next, _ := m.Update(keyMsg("3"))
	got := next.(menuModel)
	if !got.chosen || got.cursor != 2 {
		t.Errorf("chosen=%v cursor=%d, want quick select of 3rd", got.chosen, got.cursor)
	}
}

func TestMenuModelBackRespectsAnchor(t *testing.T) {
	anchored := menuModel{menu: display.Menu{
		Options:   []display.Option{{Key: "A"}},
		AllowBack: false,
	}}
	next, _ := anchored.Update(keyMsg("esc"))
	if next.(menuModel).back {
		t.Error("anchored menu honored esc")
	}

	free := menuModel{menu: display.Menu{
		Options:   []display.Option{{Key: "A"}},
		AllowBack: true,
	}}
	next, _ = free.Update(keyMsg("esc"))
	if !next.(menuModel).back {
		t.Error("free menu ignored esc")
	}
}
