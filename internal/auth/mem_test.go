package auth_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"shopadmin.org/internal/audit"
	"shopadmin.org/internal/auth"
)

// memStore is an in-memory auth.Store used across the service tests.
type memStore struct {
	mu        sync.Mutex
	users     map[string]*auth.User
	roles     map[string]*auth.Role
	perms     map[string]auth.Permission
	rolePerms map[string][]string
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[string]*auth.User),
		roles:     make(map[string]*auth.Role),
		perms:     make(map[string]auth.Permission),
		rolePerms: make(map[string][]string),
	}
}

func (s *memStore) Users() auth.UserStore             { return &memUsers{s} }
func (s *memStore) Roles() auth.RoleStore             { return &memRoles{s} }
func (s *memStore) Permissions() auth.PermissionStore { return &memPerms{s} }

func copyUser(u *auth.User) *auth.User {
	c := *u
	return &c
}

type memUsers struct{ s *memStore }

func (m *memUsers) Create(_ context.Context, u *auth.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.s.users[u.ID] = copyUser(u)
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*auth.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyUser(u), nil
}

func (m *memUsers) FindByIdentifier(_ context.Context, identifier string) (*auth.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.Email, identifier) {
			return copyUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) List(_ context.Context, f auth.UserFilter) ([]auth.User, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []auth.User
	for _, u := range m.s.users {
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		if f.RoleID != "" && u.RoleID != f.RoleID {
			continue
		}
		out = append(out, *copyUser(u))
	}
	return out, len(out), nil
}

func (m *memUsers) Update(_ context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.RoleID != nil {
		u.RoleID = *upd.RoleID
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.IsSuperAdmin != nil {
		u.IsSuperAdmin = *upd.IsSuperAdmin
	}
	if upd.ApprovedAt != nil {
		t := *upd.ApprovedAt
		u.ApprovedAt = &t
	}
	if upd.ApprovedBy != nil {
		v := *upd.ApprovedBy
		u.ApprovedBy = &v
	}
	u.UpdatedAt = time.Now().UTC()
	return copyUser(u), nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.s.users, id)
	return nil
}

func (m *memUsers) SaveLoginSuccess(_ context.Context, id string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	t := at
	u.LastLogin = &t
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (m *memUsers) SaveLoginFailure(_ context.Context, id string, failures int, lockedUntil *time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.FailedLoginAttempts = failures
	u.LockedUntil = lockedUntil
	return nil
}

type memRoles struct{ s *memStore }

func (m *memRoles) Create(_ context.Context, role *auth.Role) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.roles {
		if existing.Name == role.Name {
			return auth.ErrConflict
		}
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	c := *role
	m.s.roles[role.ID] = &c
	return nil
}

func (m *memRoles) Find(_ context.Context, id string) (*auth.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	role, ok := m.s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	c := *role
	return &c, nil
}

func (m *memRoles) FindByName(_ context.Context, name string) (*auth.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, role := range m.s.roles {
		if role.Name == name {
			c := *role
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memRoles) List(_ context.Context) ([]auth.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []auth.Role
	for _, role := range m.s.roles {
		out = append(out, *role)
	}
	return out, nil
}

func (m *memRoles) Update(_ context.Context, id string, upd auth.RoleUpdate) (*auth.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	role, ok := m.s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.DisplayName != nil {
		role.DisplayName = *upd.DisplayName
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	role.UpdatedAt = time.Now().UTC()
	c := *role
	return &c, nil
}

func (m *memRoles) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.s.roles, id)
	delete(m.s.rolePerms, id)
	return nil
}

func (m *memRoles) SetPermissions(_ context.Context, roleID string, permissionNames []string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	for _, name := range permissionNames {
		if _, ok := m.s.perms[name]; !ok {
			return fmt.Errorf("%w: permission %s not found", auth.ErrNotFound, name)
		}
	}
	m.s.rolePerms[roleID] = append([]string(nil), permissionNames...)
	return nil
}

func (m *memRoles) UserCount(_ context.Context, roleID string) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	count := 0
	for _, u := range m.s.users {
		if u.RoleID == roleID {
			count++
		}
	}
	return count, nil
}

type memPerms struct{ s *memStore }

func (m *memPerms) Ensure(_ context.Context, perms []auth.Permission) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, p := range perms {
		if _, ok := m.s.perms[p.Name]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = "perm_" + p.Name
		}
		p.CreatedAt = time.Now().UTC()
		m.s.perms[p.Name] = p
	}
	return nil
}

func (m *memPerms) List(_ context.Context) ([]auth.Permission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []auth.Permission
	for _, p := range m.s.perms {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPerms) ForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []auth.Permission
	for _, name := range m.s.rolePerms[roleID] {
		if p, ok := m.s.perms[name]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// memAudit is an in-memory audit.Store capturing writes for assertions.
type memAudit struct {
	mu       sync.Mutex
	entries  []audit.Entry
	attempts []audit.LoginAttempt
}

func (m *memAudit) AppendEntry(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAudit) AppendLoginAttempt(_ context.Context, a *audit.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, *a)
	return nil
}

func (m *memAudit) ListEntries(_ context.Context, f audit.EntryFilter) ([]audit.Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Entry
	for _, e := range m.entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Resource != "" && e.Resource != f.Resource {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *memAudit) ListLoginAttempts(_ context.Context, f audit.AttemptFilter) ([]audit.LoginAttempt, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.LoginAttempt
	for _, a := range m.attempts {
		if f.Identifier != "" && !strings.EqualFold(a.Identifier, f.Identifier) {
			continue
		}
		if f.Success != nil && a.Success != *f.Success {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *memAudit) lastAttempt() *audit.LoginAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.attempts) == 0 {
		return nil
	}
	a := m.attempts[len(m.attempts)-1]
	return &a
}
