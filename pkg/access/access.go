// Package access evaluates per-step access policies against the
// caller's identity. Policies are re-evaluated on every step — identity
// can change mid-run (a login action swaps it), so decisions are never
// cached.
package access

import (
	"log/slog"
	"strings"

	"github.com/ormasoftchile/stanza/pkg/display"
)

// Policy is the optional access metadata attached to a step. A nil or
// zero policy means the step is public.
type Policy struct {
	GuestOnly         bool     `yaml:"guest_only,omitempty"         json:"guest_only,omitempty"`
	RequireAuth       bool     `yaml:"require_auth,omitempty"       json:"require_auth,omitempty"`
	RequireRole       []string `yaml:"require_role,omitempty"       json:"require_role,omitempty"       jsonschema:"description=OR-membership across roles"`
	RequirePermission []string `yaml:"require_permission,omitempty" json:"require_permission,omitempty" jsonschema:"description=OR-membership across permissions"`
}

// IsZero reports whether the policy imposes no constraint at all.
func (p *Policy) IsZero() bool {
	return p == nil || (!p.GuestOnly && !p.RequireAuth &&
		len(p.RequireRole) == 0 && len(p.RequirePermission) == 0)
}

// Auth answers identity questions for the current caller. Role and
// permission checks take lists and grant on any match.
type Auth interface {
	IsAuthenticated() bool
	HasRole(roles []string) bool
	HasPermission(perms []string) bool
}

// Verdict is the outcome of an access evaluation.
type Verdict int

const (
	// Granted allows the step to execute.
	Granted Verdict = iota
	// Denied blocks the step; the run stays on the same key.
	Denied
	// DeniedGuestRedirect blocks a guest-only step for an already
	// authenticated caller. A courtesy, not an error.
	DeniedGuestRedirect
)

func (v Verdict) String() string {
	switch v {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	case DeniedGuestRedirect:
		return "denied_guest_redirect"
	}
	return "unknown"
}

// Decision is a verdict plus the user-facing denial triple.
type Decision struct {
	Verdict Verdict
	Reason  string
	Hint    string
}

// Gate authorizes steps. Denials are announced on the display and
// written to the audit log.
type Gate struct {
	auth    Auth
	display display.Display
	log     *slog.Logger
}

// NewGate builds a gate over the given identity source.
func NewGate(auth Auth, d display.Display, log *slog.Logger) *Gate {
	if d == nil {
		d = display.Null{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gate{auth: auth, display: d, log: log}
}

// Authorize evaluates policy for the step at key. Checks short-circuit
// in a fixed order: no policy, guest-only, auth requirement, roles,
// permissions. Role and permission requirements imply an auth recheck
// before membership is tested.
func (g *Gate) Authorize(key string, policy *Policy) Decision {
	if policy.IsZero() {
		return Decision{Verdict: Granted}
	}

	if policy.GuestOnly && g.auth.IsAuthenticated() {
		return g.deny(key, Decision{
			Verdict: DeniedGuestRedirect,
			Reason:  "this option is for guests only",
			Hint:    "you are already signed in",
		})
	}

	needsAuth := policy.RequireAuth ||
		len(policy.RequireRole) > 0 || len(policy.RequirePermission) > 0
	if needsAuth && !g.auth.IsAuthenticated() {
		return g.deny(key, Decision{
			Verdict: Denied,
			Reason:  "sign-in required",
			Hint:    "authenticate and try again",
		})
	}

	if len(policy.RequireRole) > 0 && !g.auth.HasRole(policy.RequireRole) {
		return g.deny(key, Decision{
			Verdict: Denied,
			Reason:  "missing required role",
			Hint:    "needs one of: " + strings.Join(policy.RequireRole, ", "),
		})
	}

	if len(policy.RequirePermission) > 0 && !g.auth.HasPermission(policy.RequirePermission) {
		return g.deny(key, Decision{
			Verdict: Denied,
			Reason:  "missing required permission",
			Hint:    "needs one of: " + strings.Join(policy.RequirePermission, ", "),
		})
	}

	return Decision{Verdict: Granted}
}

// deny announces and audits a denial, then returns it. Guest redirects
// are expected traffic and log at Info; real denials log at Warn.
func (g *Gate) deny(key string, d Decision) Decision {
	g.display.Emit(display.ErrorNotice{
		Header: "Access denied",
		Reason: d.Reason,
		Hint:   d.Hint,
	})
	if d.Verdict == DeniedGuestRedirect {
		g.log.Info("access redirect",
			"step", key,
			"verdict", d.Verdict.String(),
			"reason", d.Reason)
	} else {
		g.log.Warn("access denied",
			"step", key,
			"verdict", d.Verdict.String(),
			"reason", d.Reason)
	}
	return d
}
