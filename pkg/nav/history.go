package nav

import "time"

// Location is one visited navigation target with the context it was
// reached from.
type Location struct {
	Target    string    `json:"target"`
	Context   string    `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// History is a bounded log of recent navigation locations. Unlike the
// breadcrumb trail it is flat, survives across runs, and evicts its
// oldest entry once full.
type History struct {
	limit   int
	entries []Location
}

// DefaultHistoryLimit bounds the history when no limit is given.
const DefaultHistoryLimit = 50

// NewHistory returns a history bounded to limit entries (or
// DefaultHistoryLimit when limit <= 0).
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Visit records a navigation to target.
func (h *History) Visit(target, context string) {
	h.entries = append(h.entries, Location{
		Target:    target,
		Context:   context,
		Timestamp: time.Now(),
	})
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// Current returns the most recent location, if any.
func (h *History) Current() (Location, bool) {
	if len(h.entries) == 0 {
		return Location{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Recent returns up to n most recent locations, newest first.
func (h *History) Recent(n int) []Location {
	if n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]Location, 0, n)
	for i := len(h.entries) - 1; i >= len(h.entries)-n; i-- {
		out = append(out, h.entries[i])
	}
	return out
}

// Len reports the number of recorded locations.
func (h *History) Len() int {
	return len(h.entries)
}
