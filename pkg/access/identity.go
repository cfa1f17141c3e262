package access

import "sync"

// Identity is a swappable in-memory Auth implementation. The CLI seeds
// it from flags; the socket surface swaps it when a session signs in or
// out. Safe for the engine goroutine and the surface to share.
type Identity struct {
	mu            sync.RWMutex
	actor         string
	authenticated bool
	roles         map[string]bool
	perms         map[string]bool
}

// Guest returns an unauthenticated identity.
func Guest() *Identity {
	return &Identity{
		roles: make(map[string]bool),
		perms: make(map[string]bool),
	}
}

// SignedIn returns an authenticated identity holding the given roles
// and permissions.
func SignedIn(actor string, roles, perms []string) *Identity {
	id := Guest()
	id.SignIn(actor, roles, perms)
	return id
}

// SignIn replaces the identity with an authenticated one.
func (id *Identity) SignIn(actor string, roles, perms []string) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.actor = actor
	id.authenticated = true
	id.roles = make(map[string]bool, len(roles))
	for _, r := range roles {
		id.roles[r] = true
	}
	id.perms = make(map[string]bool, len(perms))
	for _, p := range perms {
		id.perms[p] = true
	}
}

// SignOut reverts to guest.
func (id *Identity) SignOut() {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.actor = ""
	id.authenticated = false
	id.roles = make(map[string]bool)
	id.perms = make(map[string]bool)
}

// Actor returns the signed-in actor name, or "" for guests.
func (id *Identity) Actor() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.actor
}

// IsAuthenticated implements Auth.
func (id *Identity) IsAuthenticated() bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.authenticated
}

// HasRole implements Auth: true if the identity holds any listed role.
func (id *Identity) HasRole(roles []string) bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	for _, r := range roles {
		if id.roles[r] {
			return true
		}
	}
	return false
}

// HasPermission implements Auth: true if the identity holds any listed
// permission.
func (id *Identity) HasPermission(perms []string) bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	for _, p := range perms {
		if id.perms[p] {
			return true
		}
	}
	return false
}
