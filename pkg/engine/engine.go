// Package engine is the step dispatcher: it walks a block's ordered
// steps, authorizes each one, interprets key modifiers, coordinates
// the run's transaction handle, hands action directives to their
// handlers, and accumulates results. One engine serves one logical
// session and is not safe for concurrent use; the suspending scheduler
// runs it on a dedicated goroutine fed by the surface's message loop.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ormasoftchile/stanza/pkg/access"
	"github.com/ormasoftchile/stanza/pkg/data"
	"github.com/ormasoftchile/stanza/pkg/dispatch"
	"github.com/ormasoftchile/stanza/pkg/display"
	"github.com/ormasoftchile/stanza/pkg/nav"
	"github.com/ormasoftchile/stanza/pkg/schema"
)

// Navigator materializes a menu and returns the selected clean key.
// Implementations return ErrMenuBack when the user takes the back
// affordance.
type Navigator interface {
	Present(ctx context.Context, menu display.Menu) (string, error)
}

// ErrMenuBack is returned by Navigator when the back affordance is
// taken.
var ErrMenuBack = errors.New("menu back selected")

// Config assembles an engine from its collaborators.
type Config struct {
	Document  *schema.Document
	Auth      access.Auth
	Display   display.Display
	Input     dispatch.Input
	Navigator Navigator
	Store     data.Store
	Funcs     dispatch.FuncResolver
	Registry  *dispatch.Registry
	Scheduler SchedulerKind

	// Transactions gates the coordinator; without a store it is
	// forced off.
	Transactions bool

	// WaitTimeout bounds deferred-result waits (default 300s).
	WaitTimeout time.Duration

	// Vars are seed variables layered over the document's own.
	Vars map[string]string

	// History is the session-scoped navigation log; one is created
	// when absent.
	History *nav.History

	// Trace, when set, receives per-step JSONL results.
	Trace *TraceWriter

	Logger *slog.Logger
}

// Engine drives runs over one document for one session.
type Engine struct {
	doc       *schema.Document
	auth      access.Auth
	gate      *access.Gate
	display   display.Display
	input     dispatch.Input
	navigator Navigator
	store     data.Store
	funcs     dispatch.FuncResolver
	registry  *dispatch.Registry
	scheduler SchedulerKind
	txEnabled bool
	waitFor   time.Duration
	history   *nav.History
	trace     *TraceWriter
	log       *slog.Logger
	baseVars  map[string]string

	run *runState
}

// runState is the per-run mutable state, created by newRun and torn
// down by endRun. Nothing in here outlives the run.
type runState struct {
	ID        string
	StartedAt time.Time
	Vars      map[string]string
	Results   *WizardHat
	Crumbs    *nav.BreadcrumbTrail
	Txn       *txnCoordinator

	// bounce holds the raw result a suspend-mode bounce-back step
	// produced, surfaced on the run outcome.
	bounce *dispatch.Result
}

// OutcomeState is the terminal state of a run.
type OutcomeState int

const (
	// Stopped is a clean end: explicit stop or block exhaustion.
	Stopped OutcomeState = iota
	// Errored is a run terminated by an uncaught error, after
	// transactional cleanup.
	Errored
)

func (s OutcomeState) String() string {
	if s == Errored {
		return "errored"
	}
	return "stopped"
}

// Outcome is the result of one run.
type Outcome struct {
	State OutcomeState
	Err   error
	RunID string

	// Result carries a suspend-mode bounce-back step's raw result:
	// that surface expects a direct response, not a UI transition.
	Result *dispatch.Result
}

// New builds an engine. Auth defaults to a guest identity, Display to
// the null sink, the registry to the built-in handler set.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = access.Guest()
	}
	disp := cfg.Display
	if disp == nil {
		disp = display.Null{}
	}
	registry := cfg.Registry
	if registry == nil {
		registry = dispatch.NewRegistry()
	}
	history := cfg.History
	if history == nil {
		history = nav.NewHistory(0)
	}
	waitFor := cfg.WaitTimeout
	if waitFor <= 0 {
		waitFor = DefaultWaitTimeout
	}
	return &Engine{
		doc:       cfg.Document,
		auth:      auth,
		gate:      access.NewGate(auth, disp, log),
		display:   disp,
		input:     cfg.Input,
		navigator: cfg.Navigator,
		store:     cfg.Store,
		funcs:     cfg.Funcs,
		registry:  registry,
		scheduler: cfg.Scheduler,
		txEnabled: cfg.Transactions && cfg.Store != nil,
		waitFor:   waitFor,
		history:   history,
		trace:     cfg.Trace,
		log:       log,
		baseVars:  cfg.Vars,
	}
}

// Run executes the block named by entry — either a bare block path
// ("main" or "main.settings") or a full dotted scope — and returns the
// run's terminal outcome. Errors never escape as panics or raw error
// returns: everything folds into the outcome after cleanup.
func (e *Engine) Run(ctx context.Context, entry string) Outcome {
	scope, blk, err := e.resolveEntry(entry)
	if err != nil {
		e.surfaceError(err)
		return Outcome{State: Errored, Err: err}
	}

	e.newRun(scope)
	res, err := e.runBlock(ctx, scope, blk, "")
	return e.endRun(ctx, res, err)
}

// newRun initializes per-run state: result container, breadcrumb
// trail rooted at scope, transaction coordinator.
func (e *Engine) newRun(scope nav.Scope) {
	vars := map[string]string{}
	for k, v := range e.doc.Vars {
		vars[k] = v
	}
	for k, v := range e.baseVars {
		vars[k] = v
	}
	e.run = &runState{
		ID:        GenerateRunID(),
		StartedAt: time.Now(),
		Vars:      vars,
		Results:   NewWizardHat(),
		Crumbs:    nav.NewBreadcrumbTrail(scope),
		Txn:       newTxnCoordinator(e.store, e.txEnabled, e.log),
	}
	e.log.Info("run started", "run_id", e.run.ID, "scope", scope.String(), "scheduler", e.scheduler.String())
}

// endRun is the run's error boundary: it closes the transaction
// handle (commit on success, rollback on error), logs the outcome,
// and folds everything into an Outcome.
func (e *Engine) endRun(ctx context.Context, res *dispatch.Result, err error) Outcome {
	run := e.run
	out := Outcome{State: Stopped, RunID: run.ID}

	if err != nil {
		run.Txn.rollback(ctx, err)
		e.log.Error("run errored",
			"run_id", run.ID,
			"error", err,
			"steps", run.Results.Len())
		e.surfaceError(err)
		out.State = Errored
		out.Err = err
		return out
	}

	if cerr := run.Txn.commit(ctx); cerr != nil {
		e.log.Error("run commit failed", "run_id", run.ID, "error", cerr)
		e.surfaceError(cerr)
		out.State = Errored
		out.Err = cerr
		return out
	}

	if run.bounce != nil {
		out.Result = run.bounce
	} else if res != nil && res.Signal == dispatch.SignalNone {
		out.Result = res
	}
	e.log.Info("run stopped", "run_id", run.ID, "steps", run.Results.Len())
	return out
}

// surfaceError renders the user-visible side of an error. Structural
// errors show their detail; anything else gets a generic notice while
// the diagnostics stay in the log.
func (e *Engine) surfaceError(err error) {
	var se *StructuralError
	if errors.As(err, &se) {
		e.display.Emit(display.ErrorNotice{
			Header: "Document error",
			Reason: se.Detail,
			Hint:   "fix the document and retry",
		})
		return
	}
	e.display.Emit(display.ErrorNotice{
		Header: "Something went wrong",
		Reason: "the action could not be completed",
		Hint:   "see the log for details",
	})
}

// resolveEntry maps an entry reference onto a scope and its block.
func (e *Engine) resolveEntry(entry string) (nav.Scope, *schema.Block, error) {
	path := entry
	if strings.Count(entry, ".") >= 2 {
		scope, err := nav.ParseScope(entry)
		if err == nil && scope.Base == e.doc.Base && scope.File == e.doc.File {
			path = scope.Block
		}
	}
	blk, err := e.doc.Lookup(path)
	if err != nil {
		return nav.Scope{}, nil, structuralf("entry %q: %v", entry, err)
	}
	return nav.Scope{Base: e.doc.Base, File: e.doc.File, Block: path}, blk, nil
}

// runBlock executes blk's steps in document order from resumeKey (""
// = first key). The returned result, when non-nil, carries a flow
// signal for the caller; block exhaustion returns (nil, nil) — an
// implicit stop unless a parent context resumes.
func (e *Engine) runBlock(ctx context.Context, scope nav.Scope, blk *schema.Block, resumeKey string) (*dispatch.Result, error) {
	i := 0
	if resumeKey != "" {
		for j := range blk.Steps {
			if clean, _ := schema.ParseKey(blk.Steps[j].Key); clean == resumeKey {
				i = j
				break
			}
		}
	}

	for i < len(blk.Steps) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := blk.Steps[i]

		res, err := e.execStep(ctx, scope, step)
		if err != nil {
			return nil, err
		}
		if res != nil {
			switch res.Signal {
			case dispatch.SignalStop:
				return res, nil
			case dispatch.SignalBack:
				return res, nil
			case dispatch.SignalNavigate:
				nres, err := e.navigate(ctx, scope, res.Target)
				if err != nil {
					return nil, err
				}
				if nres != nil && nres.Signal == dispatch.SignalStop {
					return nres, nil
				}
			}
		}
		i++
	}
	return nil, nil
}

// navigate jumps to another block, recording the move in the session
// history. When the target block finishes (or bounces back), control
// resumes after the navigating step.
func (e *Engine) navigate(ctx context.Context, from nav.Scope, target string) (*dispatch.Result, error) {
	tscope, tblk, err := e.resolveEntry(target)
	if err != nil {
		return nil, err
	}
	e.history.Visit(target, from.String())
	e.log.Debug("navigating", "from", from.String(), "to", tscope.String())
	return e.runBlock(ctx, tscope, tblk, "")
}

// execStep runs one step through the full pipeline: modifier
// detection, when-guard, authorization, execution shape, transaction
// begin, dispatch, result append, breadcrumb push.
func (e *Engine) execStep(ctx context.Context, scope nav.Scope, step schema.Step) (*dispatch.Result, error) {
	clean, mods := schema.ParseKey(step.Key)
	if mods.BounceBack && mods.Required {
		return nil, structuralf("step %q: bounce-back combined with required is not supported", step.Key)
	}

	d := step.Value.Directive
	if d != nil && d.When != "" {
		ok, err := e.evalCondition(d.When)
		if err != nil {
			return nil, structuralf("step %q when: %v", step.Key, err)
		}
		if !ok {
			e.log.Debug("step skipped", "step", clean, "when", d.When)
			return nil, nil
		}
	}

	// Authorization is re-evaluated on every pass: a denial keeps the
	// run on this key, and identity may have changed before a retry.
	for {
		dec := e.gate.Authorize(clean, e.policyOf(step))
		if dec.Verdict == access.Granted {
			break
		}
		retry, err := e.denialGate(ctx)
		if err != nil {
			return nil, err
		}
		if !retry {
			return &dispatch.Result{Status: dispatch.Cancelled, Signal: dispatch.SignalBack}, nil
		}
	}

	res, err := e.execShape(ctx, scope, clean, mods, step)
	if err != nil {
		return nil, err
	}

	switch step.Value.Kind {
	case schema.ScalarValue, schema.DirectiveValue:
		status := dispatch.Success
		var value any
		if res != nil {
			status = res.Status
			value = res.Value
		}
		e.run.Results.Append(step.Key, status, value)
		if e.trace != nil {
			if entry, ok := e.run.Results.ByIndex(e.run.Results.Len() - 1); ok {
				if err := e.trace.Write(entry); err != nil {
					e.log.Warn("trace write failed", "step", clean, "error", err)
				}
			}
		}
	}

	e.run.Crumbs.Push(scope, clean)

	if res != nil && mods.BounceBack && res.Status == dispatch.Success {
		if e.scheduler == Blocking {
			// Blocking surface: signal a return to the caller's
			// previous menu.
			bounced := *res
			bounced.Signal = dispatch.SignalBack
			return &bounced, nil
		}
		// Suspending surface: the caller wants the raw result, not a
		// navigation. Surface it on the run outcome.
		raw := *res
		raw.Signal = dispatch.SignalNone
		e.run.bounce = &raw
		return &raw, nil
	}
	return res, nil
}

// execShape runs the step body according to its value kind and menu
// modifier, applying the required-retry loop where asked.
func (e *Engine) execShape(ctx context.Context, scope nav.Scope, clean string, mods schema.Modifiers, step schema.Step) (*dispatch.Result, error) {
	exec := func() (*dispatch.Result, error) {
		switch step.Value.Kind {
		case schema.ScalarValue:
			body, err := e.render(step.Value.Scalar)
			if err != nil {
				return nil, &ActionError{StepKey: clean, Err: err}
			}
			e.display.Emit(display.Text{Body: body, Markdown: true})
			return &dispatch.Result{Status: dispatch.Success, Value: body}, nil

		case schema.BlockValue:
			if mods.Menu {
				return e.runMenu(ctx, scope, clean, mods, step.Value.Block)
			}
			childScope := scope.Child(clean)
			res, err := e.runBlock(ctx, childScope, step.Value.Block, "")
			if err != nil {
				return nil, err
			}
			// A back signal from the child is consumed here: the
			// caller is the previous menu level.
			if res != nil && res.Signal == dispatch.SignalBack {
				consumed := *res
				consumed.Signal = dispatch.SignalNone
				return &consumed, nil
			}
			if res == nil {
				res = &dispatch.Result{Status: dispatch.Success}
			}
			return res, nil

		case schema.DirectiveValue:
			return e.execDirective(ctx, clean, step.Value.Directive)
		}
		return nil, structuralf("step %q: unknown value kind", clean)
	}

	if !mods.Required {
		return exec()
	}

	// Required: repeat until the action succeeds. The distinguished
	// abort input breaks the loop as a cancellation, never a success.
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++
		res, err := exec()
		if err != nil {
			return nil, err
		}
		if res == nil || res.Status == dispatch.Success {
			return res, nil
		}
		if res.Status == dispatch.Cancelled {
			e.log.Info("required step aborted", "step", clean, "attempts", attempts)
			return res, nil
		}
		e.log.Debug("required step retrying", "step", clean, "attempts", attempts)
	}
}

// execDirective opens the transaction when the directive references a
// transactional alias, dispatches through the registry, and resolves
// any deferred result within the wait budget.
func (e *Engine) execDirective(ctx context.Context, clean string, d *schema.Directive) (*dispatch.Result, error) {
	alias, err := e.run.Txn.maybeBegin(ctx, d)
	if err != nil {
		return nil, err
	}

	hc := &dispatch.Context{
		RunID:   e.run.ID,
		Vars:    e.run.Vars,
		Display: e.display,
		Input:   e.input,
		Store:   e.store,
		Funcs:   e.funcs,
		TxAlias: alias,
		Render:  e.render,
		RunBlock: func(ctx context.Context, target string) (*dispatch.Result, error) {
			return e.navigate(ctx, e.run.Crumbs.Active(), target)
		},
	}

	res, err := e.registry.Execute(ctx, hc, d)
	if err != nil {
		return nil, &ActionError{StepKey: clean, Err: err}
	}
	if res.Deferred != nil {
		resolved, err := res.Deferred.Wait(ctx, e.waitFor)
		if err != nil {
			return nil, &ActionError{StepKey: clean, Err: err}
		}
		res = resolved
	}
	return res, nil
}

// runMenu materializes a nested block as a selectable menu and loops:
// present, run the selection, re-present — until the back affordance
// is taken or a selection signals stop/back/navigate.
func (e *Engine) runMenu(ctx context.Context, scope nav.Scope, clean string, mods schema.Modifiers, blk *schema.Block) (*dispatch.Result, error) {
	if e.navigator == nil {
		return nil, structuralf("step %q: menu modifier with no navigator", clean)
	}
	childScope := scope.Child(clean)
	allowBack := !mods.Anchor

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		options := make([]display.Option, 0, len(blk.Steps))
		for _, s := range blk.Steps {
			k, _ := schema.ParseKey(s.Key)
			options = append(options, display.Option{Key: k, Label: k})
		}
		menu := display.Menu{
			Title:     clean,
			Crumb:     e.run.Crumbs.Banner(childScope),
			Options:   options,
			AllowBack: allowBack,
		}

		sel, err := e.navigator.Present(ctx, menu)
		if errors.Is(err, ErrMenuBack) || errors.Is(err, dispatch.ErrAborted) {
			if !allowBack {
				// Anchored menu: the back affordance is disabled.
				continue
			}
			resume, _ := e.run.Crumbs.PopBack()
			e.log.Debug("menu closed", "menu", clean, "resume", resume)
			return &dispatch.Result{Status: dispatch.Success}, nil
		}
		if err != nil {
			return nil, &ActionError{StepKey: clean, Err: err}
		}

		selStep := blk.Step(sel)
		if selStep == nil {
			e.display.Emit(display.ErrorNotice{
				Header: "Unknown option",
				Reason: "that choice is not on this menu",
				Hint:   "pick one of the listed options",
			})
			continue
		}

		res, err := e.execStep(ctx, childScope, *selStep)
		if err != nil {
			return nil, err
		}
		if res != nil {
			switch res.Signal {
			case dispatch.SignalStop:
				return res, nil
			case dispatch.SignalBack:
				// The selection asked to return to the previous menu:
				// close this one and hand the request upward resolved.
				done := *res
				done.Signal = dispatch.SignalNone
				return &done, nil
			case dispatch.SignalNavigate:
				nres, err := e.navigate(ctx, childScope, res.Target)
				if err != nil {
					return nil, err
				}
				if nres != nil && nres.Signal == dispatch.SignalStop {
					return nres, nil
				}
			}
		}
	}
}

// policyOf extracts the step's access policy. Only directive values
// carry one; scalars and inline nested blocks are always public (gate
// a submenu by moving it to its own block behind a nav directive).
func (e *Engine) policyOf(step schema.Step) *access.Policy {
	if step.Value.Kind == schema.DirectiveValue {
		return step.Value.Directive.Access
	}
	return nil
}

// denialGate holds the run on a denied key. The surface is asked for
// one more input: anything retries the same key, the abort input
// leaves the key via a back signal. With no input collaborator the
// key is abandoned immediately — spinning on a denial would hang a
// headless run.
func (e *Engine) denialGate(ctx context.Context) (retry bool, err error) {
	if e.input == nil {
		return false, nil
	}
	_, rerr := e.input.ReadLine(ctx, "retry, or abort to go back", false)
	if errors.Is(rerr, dispatch.ErrAborted) {
		return false, nil
	}
	if rerr != nil {
		return false, rerr
	}
	return true, nil
}

// Results exposes the current run's result container (nil before the
// first run).
func (e *Engine) Results() *WizardHat {
	if e.run == nil {
		return nil
	}
	return e.run.Results
}

// RunID returns the current run's ID ("" before the first run).
func (e *Engine) RunID() string {
	if e.run == nil {
		return ""
	}
	return e.run.ID
}

// Banner returns the flattened breadcrumb banner for the active
// scope.
func (e *Engine) Banner() string {
	if e.run == nil {
		return ""
	}
	return e.run.Crumbs.Banner(e.run.Crumbs.Active())
}

// History exposes the session navigation history.
func (e *Engine) History() *nav.History {
	return e.history
}
