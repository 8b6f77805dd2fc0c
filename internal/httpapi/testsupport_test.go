package httpapi_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shopadmin.org/internal/audit"
	"shopadmin.org/internal/auth"
	"shopadmin.org/internal/httpapi"
)

// fakeStore backs the handler tests with maps instead of PostgreSQL.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]*auth.User
	roles     map[string]*auth.Role
	perms     map[string]auth.Permission
	rolePerms map[string][]string

	entries  []audit.Entry
	attempts []audit.LoginAttempt
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*auth.User),
		roles:     make(map[string]*auth.Role),
		perms:     make(map[string]auth.Permission),
		rolePerms: make(map[string][]string),
	}
}

func (s *fakeStore) Users() auth.UserStore             { return &fakeUsers{s} }
func (s *fakeStore) Roles() auth.RoleStore             { return &fakeRoles{s} }
func (s *fakeStore) Permissions() auth.PermissionStore { return &fakePerms{s} }

type fakeUsers struct{ s *fakeStore }

func (f *fakeUsers) Create(_ context.Context, u *auth.User) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	c := *u
	f.s.users[u.ID] = &c
	return nil
}

func (f *fakeUsers) Find(_ context.Context, id string) (*auth.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) FindByIdentifier(_ context.Context, identifier string) (*auth.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, u := range f.s.users {
		if strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.Email, identifier) {
			c := *u
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, u := range f.s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) List(_ context.Context, filter auth.UserFilter) ([]auth.User, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []auth.User
	for _, u := range f.s.users {
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeUsers) Update(_ context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
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
	if upd.FullName != nil {
		u.FullName = *upd.FullName
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
	c := *u
	return &c, nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(f.s.users, id)
	return nil
}

func (f *fakeUsers) SaveLoginSuccess(_ context.Context, id string, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	t := at
	u.LastLogin = &t
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (f *fakeUsers) SaveLoginFailure(_ context.Context, id string, failures int, lockedUntil *time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.FailedLoginAttempts = failures
	u.LockedUntil = lockedUntil
	return nil
}

type fakeRoles struct{ s *fakeStore }

func (f *fakeRoles) Create(_ context.Context, role *auth.Role) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.roles {
		if existing.Name == role.Name {
			return auth.ErrConflict
		}
	}
	c := *role
	f.s.roles[role.ID] = &c
	return nil
}

func (f *fakeRoles) Find(_ context.Context, id string) (*auth.Role, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	role, ok := f.s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	c := *role
	return &c, nil
}

func (f *fakeRoles) FindByName(_ context.Context, name string) (*auth.Role, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, role := range f.s.roles {
		if role.Name == name {
			c := *role
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeRoles) List(_ context.Context) ([]auth.Role, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []auth.Role
	for _, role := range f.s.roles {
		out = append(out, *role)
	}
	return out, nil
}

func (f *fakeRoles) Update(_ context.Context, id string, upd auth.RoleUpdate) (*auth.Role, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	role, ok := f.s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.DisplayName != nil {
		role.DisplayName = *upd.DisplayName
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	c := *role
	return &c, nil
}

func (f *fakeRoles) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(f.s.roles, id)
	return nil
}

func (f *fakeRoles) SetPermissions(_ context.Context, roleID string, names []string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	for _, name := range names {
		if _, ok := f.s.perms[name]; !ok {
			return fmt.Errorf("%w: permission %s not found", auth.ErrNotFound, name)
		}
	}
	f.s.rolePerms[roleID] = append([]string(nil), names...)
	return nil
}

func (f *fakeRoles) UserCount(_ context.Context, roleID string) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	count := 0
	for _, u := range f.s.users {
		if u.RoleID == roleID {
			count++
		}
	}
	return count, nil
}

type fakePerms struct{ s *fakeStore }

func (f *fakePerms) Ensure(_ context.Context, perms []auth.Permission) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range perms {
		if _, ok := f.s.perms[p.Name]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = "perm_" + p.Name
		}
		f.s.perms[p.Name] = p
	}
	return nil
}

func (f *fakePerms) List(_ context.Context) ([]auth.Permission, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []auth.Permission
	for _, p := range f.s.perms {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePerms) ForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []auth.Permission
	for _, name := range f.s.rolePerms[roleID] {
		if p, ok := f.s.perms[name]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) AppendEntry(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *fakeStore) AppendLoginAttempt(_ context.Context, a *audit.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *a)
	return nil
}

func (s *fakeStore) ListEntries(_ context.Context, _ audit.EntryFilter) ([]audit.Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.entries...), len(s.entries), nil
}

func (s *fakeStore) ListLoginAttempts(_ context.Context, _ audit.AttemptFilter) ([]audit.LoginAttempt, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.LoginAttempt(nil), s.attempts...), len(s.attempts), nil
}

// newTestAPI builds the full handler over the fake store with three seeded
// accounts: admin/admin-pass, viewer/viewer-pass and root/root-pass.
func newTestAPI(t *testing.T) (http.Handler, *fakeStore) {
	t.Helper()
	ctx := context.Background()
	store := newFakeStore()

	trail, err := audit.NewRecorder(store)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	tokens, err := auth.NewTokenService("handler-test-secret", auth.WithIssuer("shopadmin"))
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	svc, err := auth.NewService(store, tokens, trail,
		auth.WithPasswordHasher(auth.NewPasswordHasher(bcrypt.MinCost)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("ensure builtins: %v", err)
	}

	roles := store.Roles()
	if err := roles.Create(ctx, &auth.Role{ID: "role_admin", Name: auth.RoleAdmin, DisplayName: "Administrator", IsSystemRole: true}); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := roles.SetPermissions(ctx, "role_admin", []string{
		"users.create", "users.read", "users.update", "users.delete", "users.approve", "audit.read",
	}); err != nil {
		t.Fatalf("set permissions: %v", err)
	}
	if err := roles.Create(ctx, &auth.Role{ID: "role_viewer", Name: auth.RoleViewer, DisplayName: "Viewer", IsSystemRole: true}); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := roles.SetPermissions(ctx, "role_viewer", []string{"dashboard.read"}); err != nil {
		t.Fatalf("set permissions: %v", err)
	}

	addUser := func(id, username, password, roleID string, super bool) {
		hash, err := auth.NewPasswordHasher(bcrypt.MinCost).Hash(password)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if err := store.Users().Create(ctx, &auth.User{
			ID: id, Username: username, Email: username + "@example.com",
			PasswordHash: hash, Status: auth.StatusActive, RoleID: roleID, IsSuperAdmin: super,
		}); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	addUser("user_admin", "admin", "admin-pass", "role_admin", false)
	addUser("user_viewer", "viewer", "viewer-pass", "role_viewer", false)
	addUser("user_root", "root", "root-pass", "", true)

	api := httpapi.New(httpapi.Options{
		Auth:    svc,
		Trail:   trail,
		Version: "test",
	})
	return api.Handler(), store
}
