// Package nav tracks where a run has been: per-scope breadcrumb trails
// for menu navigation and a flat bounded history of recent locations.
package nav

import (
	"fmt"
	"strings"
)

// Scope identifies where a breadcrumb trail applies: the document base
// path, the file name, and the block path inside the file. Nested blocks
// extend the block path with further dot segments.
type Scope struct {
	Base  string
	File  string
	Block string
}

// ParseScope parses a dotted scope string. A well-formed scope has at
// least three segments (base.file.block); anything shorter is a
// structural error.
func ParseScope(s string) (Scope, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 3 {
		return Scope{}, fmt.Errorf("scope %q: need at least base.file.block (got %d segments)", s, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return Scope{}, fmt.Errorf("scope %q: empty segment", s)
		}
	}
	return Scope{
		Base:  parts[0],
		File:  parts[1],
		Block: strings.Join(parts[2:], "."),
	}, nil
}

// String serializes the scope back to its dotted form.
func (s Scope) String() string {
	return s.Base + "." + s.File + "." + s.Block
}

// Child returns the scope of a nested block entered under key.
func (s Scope) Child(key string) Scope {
	return Scope{Base: s.Base, File: s.File, Block: s.Block + "." + key}
}

// IsZero reports whether the scope is unset.
func (s Scope) IsZero() bool {
	return s.Base == "" && s.File == "" && s.Block == ""
}
