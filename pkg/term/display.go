package term

import (
	"fmt"
	"io"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/stanza/pkg/display"
)

// Renderer writes display events to a terminal with lipgloss styling.
// Menus are rendered statically here; the interactive selection lives
// in MenuNavigator.
type Renderer struct {
	out io.Writer
}

// NewRenderer returns a renderer writing to out.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Emit implements display.Display.
func (r *Renderer) Emit(e display.Event) {
	switch ev := e.(type) {
	case display.Text:
		body := ev.Body
		if ev.Markdown {
			body = renderMarkdown(body)
		}
		fmt.Fprintln(r.out, body)

	case display.Header:
		fmt.Fprintln(r.out, headerStyle.Render(ev.Title))

	case display.ErrorNotice:
		fmt.Fprintln(r.out, errHeaderStyle.Render(ev.Header))
		if ev.Reason != "" {
			fmt.Fprintln(r.out, "  "+ev.Reason)
		}
		if ev.Hint != "" {
			fmt.Fprintln(r.out, "  "+errHintStyle.Render(ev.Hint))
		}

	case display.Menu:
		if ev.Crumb != "" {
			fmt.Fprintln(r.out, crumbStyle.Render(ev.Crumb))
		}
		fmt.Fprintln(r.out, headerStyle.Render(ev.Title))
		keyW := 0
		for _, opt := range ev.Options {
			if w := runewidth.StringWidth(opt.Key); w > keyW {
				keyW = w
			}
		}
		for i, opt := range ev.Options {
			label := opt.Label
			if label == "" {
				label = opt.Key
			}
			fmt.Fprintf(r.out, "  %s %s\n",
				keyStyle.Render(fmt.Sprintf("%d.", i+1)),
				runewidth.FillRight(label, keyW))
		}

	case display.Dialog:
		if ev.Prompt != "" {
			fmt.Fprintln(r.out, promptStyle.Render(ev.Prompt))
		}
	}
}
