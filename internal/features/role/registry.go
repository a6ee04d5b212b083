package role

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var ErrUnknownRole = errors.New("unknown role")

type grantSet map[Grant]struct{}

// Registry answers permission questions from an immutable in-memory snapshot.
// Admin edits build a new snapshot and swap it in; permission reads never lock.
type Registry struct {
	snapshot atomic.Pointer[map[RoleID]grantSet]

	// held shared by writes that assign roles, exclusively by role deletion
	refs sync.RWMutex
}

func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[RoleID]grantSet{}
	r.snapshot.Store(&empty)
	return r
}

// Load replaces the snapshot with the given roles.
func (r *Registry) Load(roles []Role) {
	next := make(map[RoleID]grantSet, len(roles))
	for _, role := range roles {
		set := make(grantSet, len(role.Permissions))
		for _, g := range role.Permissions {
			if g.Module.Valid() && g.Action.Valid() {
				set[g] = struct{}{}
			}
		}
		next[role.ID] = set
	}
	r.snapshot.Store(&next)
}

// HasPermission reports whether any of actorRoles grants (module, action).
// Unknown modules, actions and roles deny.
func (r *Registry) HasPermission(actorRoles []RoleID, module Module, action Action) bool {
	if !module.Valid() || !action.Valid() {
		return false
	}
	snap := *r.snapshot.Load()
	want := Grant{Module: module, Action: action}
	for _, id := range actorRoles {
		if set, ok := snap[id]; ok {
			if _, granted := set[want]; granted {
				return true
			}
		}
	}
	return false
}

// Allows is HasPermission over raw claim strings.
func (r *Registry) Allows(roles []string, module, action string) bool {
	return r.HasPermission(IDs(roles), Module(module), Action(action))
}

// Known reports whether id is a configured role.
func (r *Registry) Known(id RoleID) bool {
	_, ok := (*r.snapshot.Load())[id]
	return ok
}

// Reference checks that every id is a configured role and runs write while
// no role can be deleted. Writes that store role ids on users go through here.
func (r *Registry) Reference(ids []RoleID, write func() error) error {
	r.refs.RLock()
	defer r.refs.RUnlock()
	for _, id := range ids {
		if !r.Known(id) {
			return fmt.Errorf("%w: %s", ErrUnknownRole, id)
		}
	}
	return write()
}

// lockReferences blocks Reference until the returned func is called.
func (r *Registry) lockReferences() func() {
	r.refs.Lock()
	return r.refs.Unlock
}
