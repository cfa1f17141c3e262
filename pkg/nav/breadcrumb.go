package nav

import "strings"

// scopeTrail is one scope's visited-key sequence. Trails are kept in
// navigation order: the last trail always belongs to the active scope.
type scopeTrail struct {
	scope Scope
	keys  []string
}

// BreadcrumbTrail records which keys were visited in which scope. One
// trail exists per run; entering a nested block appends a new scope,
// closing it resumes the parent where it was opened.
type BreadcrumbTrail struct {
	trails []scopeTrail
}

// NewBreadcrumbTrail returns an empty trail rooted at scope.
func NewBreadcrumbTrail(root Scope) *BreadcrumbTrail {
	return &BreadcrumbTrail{
		trails: []scopeTrail{{scope: root}},
	}
}

// Push records a visit to key within scope. A push identical to the
// scope's current last entry is dropped (re-entry guard). Pushing an
// unseen scope makes it the active one.
func (b *BreadcrumbTrail) Push(scope Scope, key string) {
	t := b.find(scope)
	if t == nil {
		b.trails = append(b.trails, scopeTrail{scope: scope})
		t = &b.trails[len(b.trails)-1]
	}
	if n := len(t.keys); n > 0 && t.keys[n-1] == key {
		return
	}
	t.keys = append(t.keys, key)
}

// PopBack rewinds one navigation step. If the active scope's trail is
// non-empty, its last key is popped and returned as the resume key.
// Otherwise the exhausted scope is removed and one key is popped from
// the first non-empty prior scope, collapsing any empty scopes passed
// on the way. An empty resume key means "resume the block from its
// first key". Popping an empty root trail is a no-op.
func (b *BreadcrumbTrail) PopBack() (resumeKey string, active Scope) {
	for {
		t := &b.trails[len(b.trails)-1]
		if n := len(t.keys); n > 0 {
			key := t.keys[n-1]
			t.keys = t.keys[:n-1]
			return key, t.scope
		}
		if len(b.trails) == 1 {
			// Already at top.
			return "", t.scope
		}
		b.trails = b.trails[:len(b.trails)-1]
	}
}

// Active returns the scope whose trail is currently being written.
func (b *BreadcrumbTrail) Active() Scope {
	return b.trails[len(b.trails)-1].scope
}

// Len reports the number of keys recorded for scope.
func (b *BreadcrumbTrail) Len(scope Scope) int {
	if t := b.find(scope); t != nil {
		return len(t.keys)
	}
	return 0
}

// Depth reports how many scopes are on the trail, root included.
func (b *BreadcrumbTrail) Depth() int {
	return len(b.trails)
}

// Banner renders the scope's trail as a flattened "A > B > C" string
// for display above a menu. An unknown or empty scope yields "".
func (b *BreadcrumbTrail) Banner(scope Scope) string {
	t := b.find(scope)
	if t == nil || len(t.keys) == 0 {
		return ""
	}
	return strings.Join(t.keys, " > ")
}

func (b *BreadcrumbTrail) find(scope Scope) *scopeTrail {
	for i := range b.trails {
		if b.trails[i].scope == scope {
			return &b.trails[i]
		}
	}
	return nil
}
