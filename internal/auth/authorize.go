package auth

import "sort"

// PermissionRef names one (resource, action) alternative for HasAnyPermission.
type PermissionRef struct {
	Resource string
	Action   string
}

// Principal is a user with the role's permissions resolved eagerly. The
// request pipeline loads it once per request; authorization decisions are a
// pure lookup over this snapshot, never over token claims.
type Principal struct {
	User        *User
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal with preloaded permissions.
func NewPrincipal(user *User, perms []Permission) Principal {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[PermissionName(p.Resource, p.Action)] = struct{}{}
	}
	return Principal{User: user, Permissions: set}
}

// HasPermission decides whether the principal may perform action on resource.
// The super-admin flag bypasses the permission set entirely: it is an escape
// hatch independent of role data, not a role with every permission assigned.
// Otherwise the pair must match an entry exactly; there is no wildcard or
// hierarchy matching.
func (p Principal) HasPermission(resource, action string) bool {
	if p.User != nil && p.User.IsSuperAdmin {
		return true
	}
	_, ok := p.Permissions[PermissionName(resource, action)]
	return ok
}

// HasAnyPermission allows if any one of the alternatives matches (logical OR).
func (p Principal) HasAnyPermission(refs ...PermissionRef) bool {
	if p.User != nil && p.User.IsSuperAdmin {
		return true
	}
	for _, ref := range refs {
		if _, ok := p.Permissions[PermissionName(ref.Resource, ref.Action)]; ok {
			return true
		}
	}
	return false
}

// PermissionKeys returns the flattened "resource.action" list, sorted.
func (p Principal) PermissionKeys() []string {
	keys := make([]string, 0, len(p.Permissions))
	for k := range p.Permissions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
