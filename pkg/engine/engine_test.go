package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/stanza/pkg/data"
	"github.com/ormasoftchile/stanza/pkg/dispatch"
	"github.com/ormasoftchile/stanza/pkg/display"
	"github.com/ormasoftchile/stanza/pkg/schema"
)

// recordingDisplay captures every emitted event for assertions.
type recordingDisplay struct {
	events []display.Event
}

func (r *recordingDisplay) Emit(e display.Event) {
	r.events = append(r.events, e)
}

func (r *recordingDisplay) texts() []string {
	var out []string
	for _, e := range r.events {
		if t, ok := e.(display.Text); ok {
			out = append(out, t.Body)
		}
	}
	return out
}

// scriptedInput replays canned answers; the sentinel "ABORT" becomes
// the distinguished abort input. An exhausted script aborts rather
// than hanging the test.
type scriptedInput struct {
	answers []string
}

func (s *scriptedInput) ReadLine(_ context.Context, _ string, _ bool) (string, error) {
	if len(s.answers) == 0 {
		return "", dispatch.ErrAborted
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	if a == "ABORT" {
		return "", dispatch.ErrAborted
	}
	return a, nil
}

// scriptedNavigator replays menu selections; "<back>" takes the back
// affordance. Every presented menu is recorded.
type scriptedNavigator struct {
	picks []string
	menus []display.Menu
}

func (n *scriptedNavigator) Present(_ context.Context, m display.Menu) (string, error) {
	n.menus = append(n.menus, m)
	if len(n.picks) == 0 {
		return "", ErrMenuBack
	}
	p := n.picks[0]
	n.picks = n.picks[1:]
	if p == "<back>" {
		return "", ErrMenuBack
	}
	return p, nil
}

func loadDoc(t *testing.T, src string) *schema.Document {
	t.Helper()
	doc, err := schema.Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	doc.Base = "app"
	doc.File = "menus"
	return doc
}

func newTestEngine(t *testing.T, src string, mut func(*Config)) (*Engine, *recordingDisplay) {
	t.Helper()
	disp := &recordingDisplay{}
	cfg := Config{
		Document: loadDoc(t, src),
		Display:  disp,
		Logger:   quietLogger(),
	}
	if mut != nil {
		mut(&cfg)
	}
	return New(cfg), disp
}

func TestRunRendersScalarsAndRecordsResults(t *testing.T) {
	src := `
version: stanza/v1
vars:
  greeting: Welcome
blocks:
  main:
    "Banner": "{{ .greeting }} aboard"
    "Notice": { do: text, body: "all systems go" }
`
	e, disp := newTestEngine(t, src, nil)
	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	if out.RunID == "" {
		t.Error("run ID not assigned")
	}

	texts := disp.texts()
	want := []string{"Welcome aboard", "all systems go"}
	if len(texts) != 2 || texts[0] != want[0] || texts[1] != want[1] {
		t.Errorf("texts = %v, want %v", texts, want)
	}

	if e.Results().Len() != 2 {
		t.Fatalf("results = %d, want 2", e.Results().Len())
	}
	banner, ok := e.Results().ByField("banner")
	if !ok || banner.Value != "Welcome aboard" {
		t.Errorf("banner result = %+v, ok=%v", banner, ok)
	}
}

func TestRunAcceptsFullScopeEntry(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Hi": { do: text, body: "hi" }
`
	e, disp := newTestEngine(t, src, nil)
	out := e.Run(context.Background(), "app.menus.main")
	if out.State != Stopped {
		t.Fatalf("outcome = %v (%v), want stopped", out.State, out.Err)
	}
	if len(disp.texts()) != 1 {
		t.Errorf("texts = %v, want one", disp.texts())
	}
}

func TestRunUnknownEntryErrors(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Hi": "hello"
`
	e, _ := newTestEngine(t, src, nil)
	out := e.Run(context.Background(), "missing")
	if out.State != Errored {
		t.Fatalf("outcome = %v, want errored", out.State)
	}
	var se *StructuralError
	if !errors.As(out.Err, &se) {
		t.Errorf("err = %v, want StructuralError", out.Err)
	}
}

func TestRequiredRetriesUntilSuccess(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Confirm!": { do: func, target: check }
`
	calls := 0
	funcs := dispatch.FuncMap{
		"check": func(_ context.Context, _ *dispatch.Context, _ map[string]string) (*dispatch.Result, error) {
			calls++
			if calls < 3 {
				return &dispatch.Result{Status: dispatch.Failure}, nil
			}
			return &dispatch.Result{Status: dispatch.Success, Value: "ok"}, nil
		},
	}
	e, _ := newTestEngine(t, src, func(c *Config) { c.Funcs = funcs })

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	if calls != 3 {
		t.Errorf("func invoked %d times, want 3", calls)
	}
	// Only the final attempt lands in the results.
	if e.Results().Len() != 1 {
		t.Fatalf("results = %d, want 1", e.Results().Len())
	}
	entry, _ := e.Results().ByKey("Confirm")
	if entry.Status != dispatch.Success || entry.Value != "ok" {
		t.Errorf("entry = %+v, want final success", entry)
	}
}

func TestRequiredAbortBreaksTheLoop(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Name!": { do: input, target: name }
    "After": { do: text, body: "moving on" }
`
	e, disp := newTestEngine(t, src, func(c *Config) {
		c.Input = &scriptedInput{answers: []string{"ABORT"}}
	})

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	entry, ok := e.Results().ByKey("Name")
	if !ok || entry.Status != dispatch.Cancelled {
		t.Errorf("Name entry = %+v, ok=%v, want cancelled", entry, ok)
	}
	// The run moves past the aborted step.
	if texts := disp.texts(); len(texts) != 1 || texts[0] != "moving on" {
		t.Errorf("texts = %v, want [moving on]", texts)
	}
}

func TestBounceBackBlocking(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "^Save": { do: func, target: save }
    "After": { do: text, body: "after save" }
`
	funcs := dispatch.FuncMap{
		"save": func(_ context.Context, _ *dispatch.Context, _ map[string]string) (*dispatch.Result, error) {
			return &dispatch.Result{Status: dispatch.Success, Value: "saved"}, nil
		},
	}
	e, disp := newTestEngine(t, src, func(c *Config) {
		c.Funcs = funcs
		c.Scheduler = Blocking
	})

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	// Blocking bounce-back is a navigation: the run leaves the block
	// and the following step never executes.
	if len(disp.texts()) != 0 {
		t.Errorf("texts = %v, want none after bounce", disp.texts())
	}
	if out.Result != nil {
		t.Errorf("outcome result = %+v, want nil for a navigation", out.Result)
	}
	entry, ok := e.Results().ByKey("Save")
	if !ok || entry.Value != "saved" {
		t.Errorf("Save entry = %+v, ok=%v", entry, ok)
	}
}

func TestBounceBackSuspending(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "^Save": { do: func, target: save }
    "After": { do: text, body: "after save" }
`
	funcs := dispatch.FuncMap{
		"save": func(_ context.Context, _ *dispatch.Context, _ map[string]string) (*dispatch.Result, error) {
			return &dispatch.Result{Status: dispatch.Success, Value: "saved"}, nil
		},
	}
	e, disp := newTestEngine(t, src, func(c *Config) {
		c.Funcs = funcs
		c.Scheduler = Suspending
	})

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	// Suspending bounce-back hands the raw result to the caller
	// instead of navigating; the step loop keeps going.
	if out.Result == nil || out.Result.Value != "saved" {
		t.Fatalf("outcome result = %+v, want raw saved result", out.Result)
	}
	if out.Result.Signal != dispatch.SignalNone {
		t.Errorf("signal = %v, want none", out.Result.Signal)
	}
	if texts := disp.texts(); len(texts) != 1 || texts[0] != "after save" {
		t.Errorf("texts = %v, want [after save]", texts)
	}
}

func TestBounceBackWithRequiredIsStructural(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "^Save!": { do: func, target: save }
`
	e, _ := newTestEngine(t, src, nil)
	out := e.Run(context.Background(), "main")
	if out.State != Errored {
		t.Fatalf("outcome = %v, want errored", out.State)
	}
	var se *StructuralError
	if !errors.As(out.Err, &se) {
		t.Errorf("err = %v, want StructuralError", out.Err)
	}
}

func TestTransactionCommitsAtRunEnd(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Insert": { do: data, target: "&orders.insert" }
    "Update": { do: data, target: "&orders.update" }
`
	store := data.NewMemStore()
	e, _ := newTestEngine(t, src, func(c *Config) {
		c.Store = store
		c.Transactions = true
	})

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	if n := store.CallCount("begin:orders"); n != 1 {
		t.Errorf("begins = %d, want 1", n)
	}
	if n := store.CallCount("commit:orders"); n != 1 {
		t.Errorf("commits = %d, want 1", n)
	}
	if store.Writes() != 2 {
		t.Errorf("committed writes = %d, want 2", store.Writes())
	}
	if store.OpenAliases() != 0 {
		t.Errorf("open aliases = %d, want 0", store.OpenAliases())
	}
}

func TestTransactionRollsBackExactlyOnceOnError(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Insert": { do: data, target: "&orders.insert" }
    "Update": { do: data, target: "&orders.update" }
`
	store := data.NewMemStore()
	store.FailWith("update", errors.New("constraint violated"))
	e, _ := newTestEngine(t, src, func(c *Config) {
		c.Store = store
		c.Transactions = true
	})

	out := e.Run(context.Background(), "main")
	if out.State != Errored {
		t.Fatalf("outcome = %v, want errored", out.State)
	}
	var ae *ActionError
	if !errors.As(out.Err, &ae) || ae.StepKey != "Update" {
		t.Errorf("err = %v, want ActionError for Update", out.Err)
	}
	if n := store.CallCount("rollback:orders"); n != 1 {
		t.Errorf("rollbacks = %d, want exactly 1", n)
	}
	if n := store.CallCount("commit:orders"); n != 0 {
		t.Errorf("commits = %d, want 0", n)
	}
	if store.Writes() != 0 {
		t.Errorf("committed writes = %d, want 0 after rollback", store.Writes())
	}
}

func TestSecondTransactionAliasFailsTheRun(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Insert": { do: data, target: "&orders.insert" }
    "Audit": { do: data, target: "&audit.log" }
`
	store := data.NewMemStore()
	e, _ := newTestEngine(t, src, func(c *Config) {
		c.Store = store
		c.Transactions = true
	})

	out := e.Run(context.Background(), "main")
	if out.State != Errored || !errors.Is(out.Err, ErrTxAliasBusy) {
		t.Fatalf("outcome = %v/%v, want ErrTxAliasBusy", out.State, out.Err)
	}
	// The first alias is cleaned up at the error boundary.
	if n := store.CallCount("rollback:orders"); n != 1 {
		t.Errorf("rollbacks = %d, want 1", n)
	}
	if store.OpenAliases() != 0 {
		t.Errorf("open aliases = %d, want 0", store.OpenAliases())
	}
}

func TestMenuLoopAndStop(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Main*":
      "Greet": { do: text, body: "hello there" }
      "Quit": { do: nav, target: stop }
`
	navr := &scriptedNavigator{picks: []string{"Greet", "Quit"}}
	e, disp := newTestEngine(t, src, func(c *Config) { c.Navigator = navr })

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	if len(navr.menus) != 2 {
		t.Fatalf("menu presented %d times, want 2", len(navr.menus))
	}
	m := navr.menus[0]
	if !m.AllowBack {
		t.Error("unanchored menu should allow back")
	}
	if len(m.Options) != 2 || m.Options[0].Key != "Greet" || m.Options[1].Key != "Quit" {
		t.Errorf("options = %+v, want Greet then Quit", m.Options)
	}
	if texts := disp.texts(); len(texts) != 1 || texts[0] != "hello there" {
		t.Errorf("texts = %v, want [hello there]", texts)
	}
}

func TestMenuBackClosesAndRunContinues(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Main*":
      "Greet": { do: text, body: "hello" }
    "Outro": { do: text, body: "goodbye" }
`
	navr := &scriptedNavigator{picks: []string{"<back>"}}
	e, disp := newTestEngine(t, src, func(c *Config) { c.Navigator = navr })

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	if texts := disp.texts(); len(texts) != 1 || texts[0] != "goodbye" {
		t.Errorf("texts = %v, want [goodbye]", texts)
	}
}

func TestAnchoredMenuIgnoresBack(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "~Main*":
      "Quit": { do: nav, target: stop }
`
	navr := &scriptedNavigator{picks: []string{"<back>", "Quit"}}
	e, _ := newTestEngine(t, src, func(c *Config) { c.Navigator = navr })

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	if len(navr.menus) != 2 {
		t.Errorf("menu presented %d times, want 2 (back ignored, re-presented)", len(navr.menus))
	}
	if navr.menus[0].AllowBack {
		t.Error("anchored menu should not allow back")
	}
}

func TestNavigateRunsTargetThenResumes(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Intro": { do: text, body: "start" }
    "Go": { do: nav, target: catalog }
    "Outro": { do: text, body: "end" }
  catalog:
    "Listing": { do: text, body: "catalog here" }
`
	e, disp := newTestEngine(t, src, nil)
	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	want := []string{"start", "catalog here", "end"}
	texts := disp.texts()
	if len(texts) != 3 || texts[0] != want[0] || texts[1] != want[1] || texts[2] != want[2] {
		t.Errorf("texts = %v, want %v", texts, want)
	}
	loc, ok := e.History().Current()
	if !ok || loc.Target != "catalog" {
		t.Errorf("history current = %+v, ok=%v, want catalog", loc, ok)
	}
}

func TestWhenGuardSkipsStep(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Secret": { do: text, body: "members only", when: "authenticated" }
    "Public": { do: text, body: "open to all" }
`
	e, disp := newTestEngine(t, src, nil)
	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	if texts := disp.texts(); len(texts) != 1 || texts[0] != "open to all" {
		t.Errorf("texts = %v, want [open to all]", texts)
	}
	// Skipped steps leave no result behind.
	if _, ok := e.Results().ByKey("Secret"); ok {
		t.Error("skipped step recorded a result")
	}
}

func TestDeniedStepAbortGoesBack(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Admin": { do: func, target: admin, access: { require_auth: true } }
    "After": { do: text, body: "never reached" }
`
	called := false
	funcs := dispatch.FuncMap{
		"admin": func(_ context.Context, _ *dispatch.Context, _ map[string]string) (*dispatch.Result, error) {
			called = true
			return &dispatch.Result{Status: dispatch.Success}, nil
		},
	}
	e, disp := newTestEngine(t, src, func(c *Config) {
		c.Funcs = funcs
		c.Input = &scriptedInput{answers: []string{"ABORT"}}
	})

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	if called {
		t.Error("protected func executed for a guest")
	}
	// Aborting a denied key is a back navigation: steps after it do
	// not run.
	if len(disp.texts()) != 0 {
		t.Errorf("texts = %v, want none", disp.texts())
	}
	notices := 0
	for _, ev := range disp.events {
		if _, ok := ev.(display.ErrorNotice); ok {
			notices++
		}
	}
	if notices != 1 {
		t.Errorf("error notices = %d, want 1 denial", notices)
	}
}

func TestInputFlowsIntoTemplates(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Name": { do: input, target: name, args: { prompt: "your name" } }
    "Hello": { do: text, body: "Hello, {{ .name }}" }
`
	e, disp := newTestEngine(t, src, func(c *Config) {
		c.Input = &scriptedInput{answers: []string{"Ada"}}
	})

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	texts := disp.texts()
	if len(texts) != 1 || texts[0] != "Hello, Ada" {
		t.Errorf("texts = %v, want [Hello, Ada]", texts)
	}
}

func TestDeferredResultIsAwaited(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Slow": { do: func, target: slow }
`
	funcs := dispatch.FuncMap{
		"slow": func(_ context.Context, _ *dispatch.Context, _ map[string]string) (*dispatch.Result, error) {
			d := dispatch.NewDeferred()
			go func() {
				time.Sleep(10 * time.Millisecond)
				d.Resolve(&dispatch.Result{Status: dispatch.Success, Value: "eventually"}, nil)
			}()
			return &dispatch.Result{Status: dispatch.Success, Deferred: d}, nil
		},
	}
	e, _ := newTestEngine(t, src, func(c *Config) { c.Funcs = funcs })

	out := e.Run(context.Background(), "main")
	if out.State != Stopped || out.Err != nil {
		t.Fatalf("outcome = %v/%v, want stopped", out.State, out.Err)
	}
	entry, ok := e.Results().ByKey("Slow")
	if !ok || entry.Value != "eventually" {
		t.Errorf("Slow entry = %+v, ok=%v, want resolved value", entry, ok)
	}
}

func TestDeferredTimeoutErrorsTheRun(t *testing.T) {
	src := `
version: stanza/v1
blocks:
  main:
    "Stuck": { do: func, target: stuck }
`
	funcs := dispatch.FuncMap{
		"stuck": func(_ context.Context, _ *dispatch.Context, _ map[string]string) (*dispatch.Result, error) {
			return &dispatch.Result{Status: dispatch.Success, Deferred: dispatch.NewDeferred()}, nil
		},
	}
	e, _ := newTestEngine(t, src, func(c *Config) {
		c.Funcs = funcs
		c.WaitTimeout = 10 * time.Millisecond
	})

	out := e.Run(context.Background(), "main")
	if out.State != Errored || !errors.Is(out.Err, dispatch.ErrDeferredTimeout) {
		t.Fatalf("outcome = %v/%v, want deferred timeout", out.State, out.Err)
	}
}
