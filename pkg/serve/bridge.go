package serve

import (
	"context"

	"github.com/ormasoftchile/stanza/pkg/dispatch"
	"github.com/ormasoftchile/stanza/pkg/display"
	"github.com/ormasoftchile/stanza/pkg/engine"
)

// clientAnswer is one reply to a dialog prompt.
type clientAnswer struct {
	value string
	abort bool
}

// clientSelection is one reply to a presented menu.
type clientSelection struct {
	key   string
	back  bool
	abort bool
}

// sessionInput parks the engine goroutine until the client answers the
// pending dialog. The dialog itself already went out through the
// display, so nothing is emitted here.
type sessionInput struct {
	s *Session
}

func (i sessionInput) ReadLine(ctx context.Context, _ string, _ bool) (string, error) {
	select {
	case a, ok := <-i.s.answers:
		if !ok || a.abort {
			return "", dispatch.ErrAborted
		}
		return a.value, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// sessionNavigator sends the menu frame and parks until the client
// selects.
type sessionNavigator struct {
	s *Session
}

func (n sessionNavigator) Present(ctx context.Context, menu display.Menu) (string, error) {
	n.s.emit(menu)
	select {
	case sel, ok := <-n.s.selections:
		if !ok || sel.abort {
			return "", dispatch.ErrAborted
		}
		if sel.back {
			return "", engine.ErrMenuBack
		}
		return sel.key, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// frameDisplay serializes events into frames on the session's outbound
// queue. Emit never blocks the engine: when the client cannot keep up
// the frame is dropped and the drop is logged.
type frameDisplay struct {
	s *Session
}

func (d frameDisplay) Emit(e display.Event) {
	d.s.emit(e)
}
