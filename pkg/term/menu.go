package term

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/stanza/pkg/dispatch"
	"github.com/ormasoftchile/stanza/pkg/display"
	"github.com/ormasoftchile/stanza/pkg/engine"
)

// menuKeys holds the menu navigator key bindings.
type menuKeys struct {
	Up     key.Binding
	Down   key.Binding
	Choose key.Binding
	Back   key.Binding
	Quit   key.Binding
}

var keys = menuKeys{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Choose: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "choose"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("^c", "abort"),
	),
}

// menuModel renders one menu as a selection list.
type menuModel struct {
	menu    display.Menu
	cursor  int
	chosen  bool
	back    bool
	aborted bool
	width   int
	height  int
}

func (m menuModel) Init() tea.Cmd { return nil }

func (m menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.menu.Options)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Choose):
			m.chosen = true
			return m, tea.Quit
		case key.Matches(msg, keys.Back):
			if m.menu.AllowBack {
				m.back = true
				return m, tea.Quit
			}
			// Anchored menu: back is disabled, stay put.
		case key.Matches(msg, keys.Quit):
			m.aborted = true
			return m, tea.Quit
		default:
			// Quick select by number.
			s := msg.String()
			if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
				idx := int(s[0] - '1')
				if idx < len(m.menu.Options) {
					m.cursor = idx
					m.chosen = true
					return m, tea.Quit
				}
			}
		}
	}
	return m, nil
}

func (m menuModel) View() string {
	var b strings.Builder

	if m.menu.Crumb != "" {
		b.WriteString(crumbStyle.Render(m.menu.Crumb))
		b.WriteString("\n")
	}
	b.WriteString(headerStyle.Render(m.menu.Title))
	b.WriteString("\n\n")

	for i, opt := range m.menu.Options {
		label := opt.Label
		if label == "" {
			label = opt.Key
		}
		num := fmt.Sprintf("%d.", i+1)
		line := fmt.Sprintf("  %s %s", keyStyle.Render(num), label)
		if i == m.cursor {
			line = optionCurrent.Render("> " + strings.TrimPrefix(line, "  "))
		} else {
			line = optionNormal.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	hints := keyStyle.Render("↑↓") + keyDescStyle.Render(":select") + "  " +
		keyStyle.Render("Enter") + keyDescStyle.Render(":choose") + "  " +
		keyStyle.Render("1-9") + keyDescStyle.Render(":quick")
	if m.menu.AllowBack {
		hints += "  " + keyStyle.Render("Esc") + keyDescStyle.Render(":back")
	}
	b.WriteString(hints)

	box := menuBorder.Render(b.String())
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}
	return box
}

// MenuNavigator presents menus as interactive Bubble Tea lists.
type MenuNavigator struct {
	out io.Writer
}

// NewMenuNavigator returns a navigator rendering to out.
func NewMenuNavigator(out io.Writer) *MenuNavigator {
	return &MenuNavigator{out: out}
}

// Present implements engine.Navigator.
func (n *MenuNavigator) Present(ctx context.Context, menu display.Menu) (string, error) {
	if len(menu.Options) == 0 {
		return "", errors.New("menu has no options")
	}
	p := tea.NewProgram(menuModel{menu: menu},
		tea.WithContext(ctx),
		tea.WithOutput(n.out))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("run menu: %w", err)
	}
	m, ok := final.(menuModel)
	if !ok {
		return "", errors.New("unexpected menu model")
	}
	switch {
	case m.back:
		return "", engine.ErrMenuBack
	case m.aborted:
		return "", dispatch.ErrAborted
	case m.chosen:
		return menu.Options[m.cursor].Key, nil
	}
	return "", dispatch.ErrAborted
}
