package term

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/stanza/pkg/dispatch"
)

// ReadLiner is a readline-backed dispatch.Input. Ctrl+C and EOF map to
// the distinguished abort input.
type ReadLiner struct {
	rl *readline.Instance
}

// NewReadLiner opens the terminal for line input.
func NewReadLiner() (*ReadLiner, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "abort",
	})
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	return &ReadLiner{rl: rl}, nil
}

// ReadLine implements dispatch.Input.
func (l *ReadLiner) ReadLine(ctx context.Context, prompt string, secret bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	styled := promptStyle.Render(prompt) + " "
	if secret {
		b, err := l.rl.ReadPassword(styled)
		if err != nil {
			return "", mapReadErr(err)
		}
		return string(b), nil
	}
	l.rl.SetPrompt(styled)
	line, err := l.rl.Readline()
	if err != nil {
		return "", mapReadErr(err)
	}
	return strings.TrimSpace(line), nil
}

// Close releases the terminal.
func (l *ReadLiner) Close() error {
	return l.rl.Close()
}

func mapReadErr(err error) error {
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return dispatch.ErrAborted
	}
	return err
}
