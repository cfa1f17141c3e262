package schema

import "strings"

// Modifiers are the control-flow decorations a step key can carry.
// Prefixes: '^' bounce back, '~' anchor. Suffixes: '*' menu,
// '!' required. Any combination is syntactically valid; the engine
// rejects the unsupported ones.
type Modifiers struct {
	BounceBack bool // return to the caller's previous menu after running
	Anchor     bool // disable the back affordance on a materialized menu
	Menu       bool // materialize the value as a selectable menu
	Required   bool // repeat until the action succeeds
}

// None reports whether no modifier is set.
func (m Modifiers) None() bool {
	return !m.BounceBack && !m.Anchor && !m.Menu && !m.Required
}

// ParseKey strips a step key's modifier characters and reports which
// were present. Modifier characters inside the key body are untouched.
func ParseKey(key string) (clean string, m Modifiers) {
	for len(key) > 0 {
		switch key[0] {
		case '^':
			m.BounceBack = true
		case '~':
			m.Anchor = true
		default:
			goto suffixes
		}
		key = key[1:]
	}
suffixes:
	for len(key) > 0 {
		switch key[len(key)-1] {
		case '*':
			m.Menu = true
		case '!':
			m.Required = true
		default:
			return key, m
		}
		key = key[:len(key)-1]
	}
	return key, m
}

// FieldName synthesizes a result-container field name from a step key:
// modifiers stripped, lowercased, runs of non-alphanumerics collapsed
// to single underscores.
func FieldName(key string) string {
	clean, _ := ParseKey(key)
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(clean) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
