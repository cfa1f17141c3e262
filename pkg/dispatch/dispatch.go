// Package dispatch routes action directives to their handlers. The
// directive kind set is closed: each kind has a registered handler
// with strongly-typed behavior, and unknown kinds are rejected at
// parse time, so no reflection is needed anywhere on this path.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ormasoftchile/stanza/pkg/data"
	"github.com/ormasoftchile/stanza/pkg/display"
	"github.com/ormasoftchile/stanza/pkg/schema"
)

// Status classifies how an action ended.
type Status int

const (
	// Success is a completed action.
	Success Status = iota
	// Failure is a completed action that reported a negative result.
	// Distinct from an error: the action ran and answered "no".
	Failure
	// Cancelled is an action the user aborted (the distinguished
	// abort input). Not a success and not an error.
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Signal is a flow request an action can attach to its result.
type Signal int

const (
	// SignalNone continues normally.
	SignalNone Signal = iota
	// SignalBack requests a return to the previous menu.
	SignalBack
	// SignalStop requests an explicit end of the run.
	SignalStop
	// SignalNavigate requests a jump to Result.Target.
	SignalNavigate
)

// Result is the uniform envelope for one executed action.
type Result struct {
	Status Status
	Value  any
	Signal Signal
	Target string // navigation target when Signal == SignalNavigate

	// Deferred, when non-nil, means the action's real result arrives
	// later; the scheduler resolves it through its await primitive.
	Deferred *Deferred
}

// Input reads interactive input from the active surface.
// Implementations return ErrAborted when the user gives the
// distinguished abort input.
type Input interface {
	ReadLine(ctx context.Context, prompt string, secret bool) (string, error)
}

// ErrAborted is returned by Input when the user aborts instead of
// answering.
var ErrAborted = errors.New("input aborted")

// Func is a resolved plugin function.
type Func func(ctx context.Context, hc *Context, args map[string]string) (*Result, error)

// FuncResolver looks plugin functions up by name.
type FuncResolver interface {
	Resolve(name string) (Func, error)
}

// Context carries the collaborators a handler may use. One Context
// serves one run; the engine rebuilds the per-step fields before each
// dispatch.
type Context struct {
	RunID   string
	Vars    map[string]string
	Display display.Display
	Input   Input
	Store   data.Store
	Funcs   FuncResolver

	// TxAlias is the transaction alias open for the current step, or
	// "" when the step runs outside a transaction.
	TxAlias string

	// Render expands var and result templates in a string. Supplied
	// by the engine.
	Render func(string) (string, error)

	// RunBlock re-enters the step loop for a nested block path.
	// Supplied by the engine; handlers use it for recursive dispatch.
	RunBlock func(ctx context.Context, target string) (*Result, error)
}

// RenderAll renders every arg value through hc.Render.
func (hc *Context) RenderAll(args map[string]string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		r, err := hc.Render(v)
		if err != nil {
			return nil, fmt.Errorf("arg %q: %w", k, err)
		}
		out[k] = r
	}
	return out, nil
}

// Handler executes one directive kind.
type Handler interface {
	// Validate checks kind-specific fields without side effects.
	Validate(d *schema.Directive) error
	// Execute runs the directive and always returns a result unless
	// it errors.
	Execute(ctx context.Context, hc *Context, d *schema.Directive) (*Result, error)
}

// Registry maps directive kinds to handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns a registry with every built-in kind registered.
func NewRegistry() *Registry {
	r := &Registry{handlers: map[string]Handler{}}
	r.Register(schema.KindText, textHandler{})
	r.Register(schema.KindInput, inputHandler{})
	r.Register(schema.KindFunc, funcHandler{})
	r.Register(schema.KindData, dataHandler{})
	r.Register(schema.KindNav, navHandler{})
	return r
}

// Register installs (or replaces) the handler for kind.
func (r *Registry) Register(kind string, h Handler) {
	r.handlers[kind] = h
}

// Execute routes the directive to its kind's handler.
func (r *Registry) Execute(ctx context.Context, hc *Context, d *schema.Directive) (*Result, error) {
	h, ok := r.handlers[d.Do]
	if !ok {
		return nil, fmt.Errorf("no handler for directive kind %q", d.Do)
	}
	if err := h.Validate(d); err != nil {
		return nil, fmt.Errorf("directive %q: %w", d.Do, err)
	}
	return h.Execute(ctx, hc, d)
}
