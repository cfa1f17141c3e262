package engine

import (
	"time"

	"github.com/ormasoftchile/stanza/pkg/dispatch"
	"github.com/ormasoftchile/stanza/pkg/schema"
)

// WizardHat accumulates per-step results for one run. Entries are
// append-only and readable three ways: by position, by the step's
// clean key, or by the field name synthesized from the key. It lives
// exactly as long as its run.
type WizardHat struct {
	entries []ResultEntry
}

// ResultEntry is one recorded step outcome.
type ResultEntry struct {
	Key    string          `json:"key"`   // clean step key
	Field  string          `json:"field"` // synthesized field name
	Status dispatch.Status `json:"status"`
	Value  any             `json:"value,omitempty"`
	At     time.Time       `json:"at"`
}

// NewWizardHat returns an empty container.
func NewWizardHat() *WizardHat {
	return &WizardHat{}
}

// Append records a step result. key is the raw step key; modifiers are
// stripped and the field name synthesized here.
func (w *WizardHat) Append(key string, status dispatch.Status, value any) {
	clean, _ := schema.ParseKey(key)
	w.entries = append(w.entries, ResultEntry{
		Key:    clean,
		Field:  schema.FieldName(key),
		Status: status,
		Value:  value,
		At:     time.Now(),
	})
}

// Len reports the number of recorded results.
func (w *WizardHat) Len() int {
	return len(w.entries)
}

// ByIndex returns the i-th entry.
func (w *WizardHat) ByIndex(i int) (ResultEntry, bool) {
	if i < 0 || i >= len(w.entries) {
		return ResultEntry{}, false
	}
	return w.entries[i], true
}

// ByKey returns the most recent entry recorded under the clean key.
func (w *WizardHat) ByKey(key string) (ResultEntry, bool) {
	for i := len(w.entries) - 1; i >= 0; i-- {
		if w.entries[i].Key == key {
			return w.entries[i], true
		}
	}
	return ResultEntry{}, false
}

// ByField returns the most recent entry whose synthesized field name
// matches.
func (w *WizardHat) ByField(field string) (ResultEntry, bool) {
	for i := len(w.entries) - 1; i >= 0; i-- {
		if w.entries[i].Field == field {
			return w.entries[i], true
		}
	}
	return ResultEntry{}, false
}

// Fields returns field name → value for template and condition
// environments. Later entries shadow earlier ones with the same field.
func (w *WizardHat) Fields() map[string]any {
	out := make(map[string]any, len(w.entries))
	for _, e := range w.entries {
		out[e.Field] = e.Value
	}
	return out
}

// Entries returns a copy of all entries in append order.
func (w *WizardHat) Entries() []ResultEntry {
	out := make([]ResultEntry, len(w.entries))
	copy(out, w.entries)
	return out
}
