package rbac

import (
	"errors"
	"strings"
	"sync"
)

// Wildcard matches any resource or any action when used in a
// registered permission.
const Wildcard = "*"

// Permission grants one action on one resource. Either side may be the
// wildcard.
type Permission struct {
	Resource string
	Action   string
}

// ParsePermission reads the "resource:action" claim form carried in
// tokens. A missing action defaults to the wildcard.
func ParsePermission(s string) (Permission, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Permission{}, false
	}

	parts := strings.SplitN(s, ":", 2)
	if len(parts) == 1 {
		return Permission{Resource: parts[0], Action: Wildcard}, true
	}
	if parts[0] == "" || parts[1] == "" {
		return Permission{}, false
	}

	return Permission{Resource: parts[0], Action: parts[1]}, true
}

// String renders the claim form.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

type roleDef struct {
	permissions map[Permission]struct{}
	parents     []string
}

// Authority resolves effective permissions over a role-inheritance DAG.
// Registration only affects future resolutions: every check walks the
// current definitions, so there is no cache to invalidate when roles
// change.
type Authority struct {
	superRole string

	mu          sync.RWMutex
	permissions map[Permission]struct{}
	roles       map[string]*roleDef
}

// NewAuthority creates an Authority. superRole names the distinguished
// role that bypasses all checks; empty disables the bypass.
func NewAuthority(superRole string) *Authority {
	return &Authority{
		superRole:   superRole,
		permissions: make(map[Permission]struct{}),
		roles:       make(map[string]*roleDef),
	}
}

// RegisterPermission declares a grantable permission. Roles may only be
// granted permissions that were registered first, which catches typos
// at startup instead of silently never matching.
func (a *Authority) RegisterPermission(resource, action string) error {
	if resource == "" || action == "" {
		return errors.New("permission resource and action required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p := Permission{Resource: resource, Action: action}
	if _, exists := a.permissions[p]; exists {
		return errors.New("permission already registered: " + p.String())
	}
	a.permissions[p] = struct{}{}

	return nil
}

// RegisterRole defines a named role with direct permissions and optional
// parent roles to inherit from. Parents must already exist; since roles
// are never redefined, inheritance cannot form a cycle, and an explicit
// walk still rejects one if a future change ever allows redefinition.
func (a *Authority) RegisterRole(name string, permissions []Permission, parents ...string) error {
	if name == "" {
		return errors.New("role name required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.roles[name]; exists {
		return errors.New("role already registered: " + name)
	}

	perms := make(map[Permission]struct{}, len(permissions))
	for _, p := range permissions {
		if _, known := a.permissions[p]; !known {
			return errors.New("permission not registered: " + p.String())
		}
		perms[p] = struct{}{}
	}

	for _, parent := range parents {
		if _, exists := a.roles[parent]; !exists {
			return errors.New("parent role not registered: " + parent)
		}
		if a.reachesLocked(parent, name) {
			return errors.New("role inheritance cycle via: " + parent)
		}
	}

	a.roles[name] = &roleDef{
		permissions: perms,
		parents:     append([]string(nil), parents...),
	}

	return nil
}

// EffectivePermissions unions the direct permissions of every held role
// with everything reachable through inheritance.
func (a *Authority) EffectivePermissions(roles []string) []Permission {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make(map[Permission]struct{})
	for _, role := range roles {
		a.collectLocked(role, seen, out)
	}

	perms := make([]Permission, 0, len(out))
	for p := range out {
		perms = append(perms, p)
	}
	return perms
}

// Can decides access for a principal holding the given roles plus any
// token-embedded direct permissions. The super role bypasses everything;
// otherwise an exact or wildcard match among effective permissions wins.
func (a *Authority) Can(roles []string, direct []Permission, resource, action string) bool {
	for _, r := range roles {
		if a.superRole != "" && r == a.superRole {
			return true
		}
	}

	for _, p := range direct {
		if permits(p, resource, action) {
			return true
		}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, role := range roles {
		if a.canLocked(role, resource, action, seen) {
			return true
		}
	}

	return false
}

// HasRole reports whether the named role is registered.
func (a *Authority) HasRole(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.roles[name]
	return ok
}

func (a *Authority) collectLocked(role string, seen map[string]struct{}, out map[Permission]struct{}) {
	if _, done := seen[role]; done {
		return
	}
	seen[role] = struct{}{}

	def, ok := a.roles[role]
	if !ok {
		return
	}
	for p := range def.permissions {
		out[p] = struct{}{}
	}
	for _, parent := range def.parents {
		a.collectLocked(parent, seen, out)
	}
}

func (a *Authority) canLocked(role, resource, action string, seen map[string]struct{}) bool {
	if _, done := seen[role]; done {
		return false
	}
	seen[role] = struct{}{}

	def, ok := a.roles[role]
	if !ok {
		return false
	}
	for p := range def.permissions {
		if permits(p, resource, action) {
			return true
		}
	}
	for _, parent := range def.parents {
		if a.canLocked(parent, resource, action, seen) {
			return true
		}
	}

	return false
}

// reachesLocked reports whether target is reachable from role through
// the inheritance graph.
func (a *Authority) reachesLocked(role, target string) bool {
	if role == target {
		return true
	}
	def, ok := a.roles[role]
	if !ok {
		return false
	}
	for _, parent := range def.parents {
		if a.reachesLocked(parent, target) {
			return true
		}
	}
	return false
}

func permits(p Permission, resource, action string) bool {
	if p.Resource != Wildcard && p.Resource != resource {
		return false
	}
	return p.Action == Wildcard || p.Action == action
}
