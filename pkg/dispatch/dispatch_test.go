package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ormasoftchile/stanza/pkg/data"
	"github.com/ormasoftchile/stanza/pkg/display"
	"github.com/ormasoftchile/stanza/pkg/schema"
)

type recordingDisplay struct {
	events []display.Event
}

func (r *recordingDisplay) Emit(e display.Event) { r.events = append(r.events, e) }

// scriptedInput replays canned answers; an "ABORT" answer maps to
// ErrAborted.
type scriptedInput struct {
	answers []string
}

func (s *scriptedInput) ReadLine(_ context.Context, _ string, _ bool) (string, error) {
	if len(s.answers) == 0 {
		return "", errors.New("no scripted answer left")
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	if a == "ABORT" {
		return "", ErrAborted
	}
	return a, nil
}

func newTestContext() (*Context, *recordingDisplay, *data.MemStore) {
	rec := &recordingDisplay{}
	store := data.NewMemStore()
	hc := &Context{
		RunID:   "test-run",
		Vars:    map[string]string{"name": "world"},
		Display: rec,
		Store:   store,
		Render:  func(s string) (string, error) { return s, nil },
	}
	return hc, rec, store
}

func TestTextHandler(t *testing.T) {
	hc, rec, _ := newTestContext()
	r := NewRegistry()

	res, err := r.Execute(context.Background(), hc, &schema.Directive{
		Do:   schema.KindText,
		Body: "hello",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != Success {
		t.Errorf("status = %v, want success", res.Status)
	}
	if len(rec.events) != 1 {
		t.Fatalf("events = %d, want 1", len(rec.events))
	}
	if txt, ok := rec.events[0].(display.Text); !ok || txt.Body != "hello" {
		t.Errorf("event = %#v, want Text{hello}", rec.events[0])
	}
}

func TestTextHandlerRequiresBody(t *testing.T) {
	hc, _, _ := newTestContext()
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), hc, &schema.Directive{Do: schema.KindText}); err == nil {
		t.Fatal("expected validation error for empty body")
	}
}

func TestInputHandlerStoresVar(t *testing.T) {
	hc, _, _ := newTestContext()
	hc.Input = &scriptedInput{answers: []string{"alice"}}
	r := NewRegistry()

	res, err := r.Execute(context.Background(), hc, &schema.Directive{
		Do:     schema.KindInput,
		Target: "username",
		Args:   map[string]string{"prompt": "Name?"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != Success || res.Value != "alice" {
		t.Errorf("result = %+v, want success/alice", res)
	}
	if hc.Vars["username"] != "alice" {
		t.Errorf("Vars[username] = %q, want alice", hc.Vars["username"])
	}
}

func TestInputHandlerAbortIsCancellation(t *testing.T) {
	hc, _, _ := newTestContext()
	hc.Input = &scriptedInput{answers: []string{"ABORT"}}
	r := NewRegistry()

	res, err := r.Execute(context.Background(), hc, &schema.Directive{
		Do:     schema.KindInput,
		Target: "username",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != Cancelled {
		t.Errorf("status = %v, want cancelled", res.Status)
	}
}

func TestFuncHandler(t *testing.T) {
	hc, _, _ := newTestContext()
	called := 0
	hc.Funcs = FuncMap{
		"greet": func(_ context.Context, hc *Context, args map[string]string) (*Result, error) {
			called++
			return &Result{Status: Success, Value: "hi " + args["who"]}, nil
		},
	}
	r := NewRegistry()

	res, err := r.Execute(context.Background(), hc, &schema.Directive{
		Do:     schema.KindFunc,
		Target: "greet",
		Args:   map[string]string{"who": "bob"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != 1 || res.Value != "hi bob" {
		t.Errorf("called=%d res=%+v", called, res)
	}

	if _, err := r.Execute(context.Background(), hc, &schema.Directive{
		Do:     schema.KindFunc,
		Target: "missing",
	}); err == nil {
		t.Error("expected error for unresolved func")
	}
}

func TestDataHandlerQueryAndExec(t *testing.T) {
	hc, _, store := newTestContext()
	store.SetRows("list_products", []map[string]any{{"sku": "a"}})
	r := NewRegistry()

	res, err := r.Execute(context.Background(), hc, &schema.Directive{
		Do:     schema.KindData,
		Target: "list_products",
		Args:   map[string]string{"mode": "query"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	rows, ok := res.Value.([]map[string]any)
	if !ok || len(rows) != 1 {
		t.Errorf("rows = %#v", res.Value)
	}

	if _, err := r.Execute(context.Background(), hc, &schema.Directive{
		Do:     schema.KindData,
		Target: "insert_order",
	}); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if got := store.CallCount("exec:insert_order"); got != 1 {
		t.Errorf("exec calls = %d, want 1", got)
	}
}

func TestNavHandlerSignals(t *testing.T) {
	hc, _, _ := newTestContext()
	r := NewRegistry()
	tests := []struct {
		target string
		signal Signal
	}{
		{"back", SignalBack},
		{"stop", SignalStop},
		{"catalog", SignalNavigate},
	}
	for _, tt := range tests {
		res, err := r.Execute(context.Background(), hc, &schema.Directive{
			Do:     schema.KindNav,
			Target: tt.target,
		})
		if err != nil {
			t.Fatalf("nav %q: %v", tt.target, err)
		}
		if res.Signal != tt.signal {
			t.Errorf("nav %q signal = %v, want %v", tt.target, res.Signal, tt.signal)
		}
		if tt.signal == SignalNavigate && res.Target != tt.target {
			t.Errorf("nav target = %q, want %q", res.Target, tt.target)
		}
	}
}

func TestDeferredResolveAndWait(t *testing.T) {
	d := NewDeferred()
	go d.Resolve(&Result{Status: Success, Value: 42}, nil)

	res, err := d.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Value != 42 {
		t.Errorf("value = %v, want 42", res.Value)
	}
}

func TestDeferredTimeout(t *testing.T) {
	d := NewDeferred()
	_, err := d.Wait(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, ErrDeferredTimeout) {
		t.Errorf("err = %v, want ErrDeferredTimeout", err)
	}
}
