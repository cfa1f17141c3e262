package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ormasoftchile/stanza/pkg/display"
	"github.com/ormasoftchile/stanza/pkg/schema"
)

// textHandler renders a body and emits it as display text.
type textHandler struct{}

func (textHandler) Validate(d *schema.Directive) error {
	if d.Body == "" {
		return errors.New("text directive needs a body")
	}
	return nil
}

func (textHandler) Execute(_ context.Context, hc *Context, d *schema.Directive) (*Result, error) {
	body, err := hc.Render(d.Body)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	hc.Display.Emit(display.Text{Body: body, Markdown: true})
	return &Result{Status: Success, Value: body}, nil
}

// inputHandler prompts for one value and stores it under the target
// var name.
type inputHandler struct{}

func (inputHandler) Validate(d *schema.Directive) error {
	if d.Target == "" {
		return errors.New("input directive needs a target variable")
	}
	return nil
}

func (inputHandler) Execute(ctx context.Context, hc *Context, d *schema.Directive) (*Result, error) {
	prompt := d.Args["prompt"]
	if prompt == "" {
		prompt = d.Target
	}
	prompt, err := hc.Render(prompt)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}
	secret := d.Args["secret"] == "true"

	hc.Display.Emit(display.Dialog{
		Prompt: prompt,
		Fields: []display.Field{{
			Name:    d.Target,
			Prompt:  prompt,
			Default: d.Args["default"],
			Secret:  secret,
		}},
	})

	val, err := hc.Input.ReadLine(ctx, prompt, secret)
	if errors.Is(err, ErrAborted) {
		return &Result{Status: Cancelled}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", d.Target, err)
	}
	if val == "" {
		val = d.Args["default"]
	}
	hc.Vars[d.Target] = val
	return &Result{Status: Success, Value: val}, nil
}

// funcHandler calls a resolved plugin function.
type funcHandler struct{}

func (funcHandler) Validate(d *schema.Directive) error {
	if d.Target == "" {
		return errors.New("func directive needs a target")
	}
	return nil
}

func (funcHandler) Execute(ctx context.Context, hc *Context, d *schema.Directive) (*Result, error) {
	if hc.Funcs == nil {
		return nil, fmt.Errorf("no function resolver configured (func %q)", d.Target)
	}
	fn, err := hc.Funcs.Resolve(d.Target)
	if err != nil {
		return nil, fmt.Errorf("resolve func %q: %w", d.Target, err)
	}
	args, err := hc.RenderAll(d.Args)
	if err != nil {
		return nil, err
	}
	res, err := fn(ctx, hc, args)
	if err != nil {
		return nil, fmt.Errorf("func %q: %w", d.Target, err)
	}
	if res == nil {
		res = &Result{Status: Success}
	}
	return res, nil
}

// dataHandler runs a named statement through the store, inside the
// step's open transaction when one exists. Args bind as statement
// parameters; the reserved "mode" arg selects query vs exec.
type dataHandler struct{}

func (dataHandler) Validate(d *schema.Directive) error {
	if d.Target == "" {
		return errors.New("data directive needs a target")
	}
	if strings.HasPrefix(d.Target, string(schema.TxSigil)) {
		if _, _, ok := d.TxAlias(); !ok {
			return fmt.Errorf("malformed transactional target %q", d.Target)
		}
	}
	return nil
}

func (dataHandler) Execute(ctx context.Context, hc *Context, d *schema.Directive) (*Result, error) {
	if hc.Store == nil {
		return nil, fmt.Errorf("no data store configured (statement %q)", d.Target)
	}
	args, err := hc.RenderAll(d.Args)
	if err != nil {
		return nil, err
	}
	mode := "exec"
	if m, ok := args["mode"]; ok {
		mode = m
		delete(args, "mode")
	}

	stmt := d.Statement()
	switch mode {
	case "query":
		rows, err := hc.Store.Query(ctx, hc.TxAlias, stmt, args)
		if err != nil {
			return nil, fmt.Errorf("statement %q: %w", stmt, err)
		}
		return &Result{Status: Success, Value: rows}, nil
	case "exec":
		n, err := hc.Store.Exec(ctx, hc.TxAlias, stmt, args)
		if err != nil {
			return nil, fmt.Errorf("statement %q: %w", stmt, err)
		}
		return &Result{Status: Success, Value: n}, nil
	default:
		return nil, fmt.Errorf("statement %q: unknown mode %q", stmt, mode)
	}
}

// navHandler turns a nav directive into a flow signal. Reserved
// targets "back" and "stop" map to their signals; anything else is a
// navigation to that block path.
type navHandler struct{}

func (navHandler) Validate(d *schema.Directive) error {
	if d.Target == "" {
		return errors.New("nav directive needs a target")
	}
	return nil
}

func (navHandler) Execute(_ context.Context, hc *Context, d *schema.Directive) (*Result, error) {
	switch d.Target {
	case "back":
		return &Result{Status: Success, Signal: SignalBack}, nil
	case "stop":
		return &Result{Status: Success, Signal: SignalStop}, nil
	default:
		target, err := hc.Render(d.Target)
		if err != nil {
			return nil, fmt.Errorf("render target: %w", err)
		}
		return &Result{Status: Success, Signal: SignalNavigate, Target: target}, nil
	}
}

// FuncMap is a map-backed FuncResolver for hosts that register plugin
// functions directly.
type FuncMap map[string]Func

// Resolve implements FuncResolver.
func (m FuncMap) Resolve(name string) (Func, error) {
	fn, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	return fn, nil
}
