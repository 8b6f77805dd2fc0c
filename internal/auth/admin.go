package auth

import (
	"context"
	"fmt"
	"strings"

	"shopadmin.org/internal/audit"
	"shopadmin.org/internal/ids"
)

// CreateUserInput carries an admin-created account. Unlike self-registration
// the account is active immediately.
type CreateUserInput struct {
	Username     string
	Email        string
	Password     string
	FullName     string
	Phone        string
	RoleID       string
	IsSuperAdmin bool
	IP           string
	UserAgent    string
}

// CreateUser provisions an active account on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, actor Principal, in CreateUserInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if len(username) < 3 {
		return nil, fmt.Errorf("%w: username must be at least 3 characters", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if in.RoleID != "" {
		if _, err := s.store.Roles().Find(ctx, in.RoleID); err != nil {
			return nil, fmt.Errorf("role %s: %w", in.RoleID, err)
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Status:       StatusActive,
		IsSuperAdmin: in.IsSuperAdmin,
		RoleID:       in.RoleID,
		ApprovedAt:   &now,
		ApprovedBy:   &actor.User.ID,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      actor.User.ID,
		Username:    actor.User.Username,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
		Action:      "create",
		Resource:    "users",
		ResourceID:  user.ID,
		Description: fmt.Sprintf("User %s created by %s", user.Username, actor.User.Username),
		NewValues: map[string]any{
			"username": user.Username,
			"email":    user.Email,
			"status":   user.Status,
			"role_id":  user.RoleID,
		},
	}); err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns a page of accounts matching the filter.
func (s *Service) ListUsers(ctx context.Context, f UserFilter) ([]User, int, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.Users().List(ctx, f)
}

// GetUser loads one account with its role resolved.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.store.Users().Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.principalFor(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUserInput carries optional account changes; nil fields are untouched.
// Password, when set, is the plaintext to be re-hashed.
type UpdateUserInput struct {
	Username     *string
	Email        *string
	FullName     *string
	Phone        *string
	AvatarURL    *string
	Status       *string
	RoleID       *string
	Password     *string
	IsSuperAdmin *bool
	IP           string
	UserAgent    string
}

// UpdateUser applies an administrative edit and audits the field-level diff.
func (s *Service) UpdateUser(ctx context.Context, actor Principal, id string, in UpdateUserInput) (*User, error) {
	before, err := s.store.Users().Find(ctx, id)
	if err != nil {
		return nil, err
	}

	upd := UserUpdate{
		FullName:     in.FullName,
		Phone:        in.Phone,
		AvatarURL:    in.AvatarURL,
		IsSuperAdmin: in.IsSuperAdmin,
	}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if len(username) < 3 {
			return nil, fmt.Errorf("%w: username must be at least 3 characters", ErrInvalidInput)
		}
		upd.Username = &username
	}
	if in.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*in.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if in.Status != nil {
		if !ValidStatus(*in.Status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *in.Status)
		}
		if id == actor.User.ID && *in.Status != StatusActive {
			return nil, fmt.Errorf("%w: cannot change the status of your own account", ErrInvalidInput)
		}
		upd.Status = in.Status
	}
	if in.RoleID != nil && *in.RoleID != "" {
		if _, err := s.store.Roles().Find(ctx, *in.RoleID); err != nil {
			return nil, fmt.Errorf("role %s: %w", *in.RoleID, err)
		}
		upd.RoleID = in.RoleID
	}
	if in.Password != nil {
		if len(*in.Password) < 8 {
			return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
	}

	updated, err := s.store.Users().Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	if err := s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      actor.User.ID,
		Username:    actor.User.Username,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
		Action:      "update",
		Resource:    "users",
		ResourceID:  updated.ID,
		Description: fmt.Sprintf("User %s updated by %s", updated.Username, actor.User.Username),
		OldValues:   userSnapshot(before),
		NewValues:   userSnapshot(updated),
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteUser removes an account. Deleting your own account is rejected.
func (s *Service) DeleteUser(ctx context.Context, actor Principal, id, ip, userAgent string) error {
	if id == actor.User.ID {
		return fmt.Errorf("%w: cannot delete your own account", ErrInvalidInput)
	}
	target, err := s.store.Users().Find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Users().Delete(ctx, id); err != nil {
		return err
	}
	return s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      actor.User.ID,
		Username:    actor.User.Username,
		IP:          ip,
		UserAgent:   userAgent,
		Action:      "delete",
		Resource:    "users",
		ResourceID:  target.ID,
		Description: fmt.Sprintf("User %s deleted by %s", target.Username, actor.User.Username),
		OldValues:   userSnapshot(target),
	})
}

func userSnapshot(u *User) map[string]any {
	return map[string]any{
		"username":  u.Username,
		"email":     u.Email,
		"full_name": u.FullName,
		"status":    u.Status,
		"role_id":   u.RoleID,
	}
}

// CreateRoleInput carries a new custom role.
type CreateRoleInput struct {
	Name        string
	DisplayName string
	Description string
	Permissions []string
	IP          string
	UserAgent   string
}

// CreateRole provisions a non-system role with an optional permission set.
func (s *Service) CreateRole(ctx context.Context, actor Principal, in CreateRoleInput) (*Role, error) {
	name := strings.TrimSpace(strings.ToLower(in.Name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = name
	}
	if err := s.validatePermissionNames(ctx, in.Permissions); err != nil {
		return nil, err
	}

	role := &Role{
		ID:          ids.New(),
		Name:        name,
		DisplayName: display,
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.store.Roles().Create(ctx, role); err != nil {
		return nil, err
	}
	if len(in.Permissions) > 0 {
		if err := s.store.Roles().SetPermissions(ctx, role.ID, in.Permissions); err != nil {
			return nil, err
		}
		list, err := s.store.Permissions().ForRole(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		role.Permissions = list
	}

	if err := s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      actor.User.ID,
		Username:    actor.User.Username,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
		Action:      "create",
		Resource:    "roles",
		ResourceID:  role.ID,
		Description: fmt.Sprintf("Role %s created by %s", role.Name, actor.User.Username),
		NewValues: map[string]any{
			"name":        role.Name,
			"permissions": in.Permissions,
		},
	}); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns all roles with their permission sets resolved.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.store.Roles().List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		list, err := s.store.Permissions().ForRole(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = list
	}
	return roles, nil
}

// GetRole loads one role with its permissions.
func (s *Service) GetRole(ctx context.Context, id string) (*Role, error) {
	role, err := s.store.Roles().Find(ctx, id)
	if err != nil {
		return nil, err
	}
	list, err := s.store.Permissions().ForRole(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = list
	return role, nil
}

// UpdateRoleInput carries optional role changes. Permissions, when non-nil,
// replaces the whole set.
type UpdateRoleInput struct {
	DisplayName *string
	Description *string
	Permissions *[]string
	IP          string
	UserAgent   string
}

// UpdateRole edits a custom role. System roles are immutable.
func (s *Service) UpdateRole(ctx context.Context, actor Principal, id string, in UpdateRoleInput) (*Role, error) {
	role, err := s.store.Roles().Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole {
		return nil, fmt.Errorf("%w: system roles cannot be modified", ErrConflict)
	}

	upd := RoleUpdate{DisplayName: in.DisplayName, Description: in.Description}
	updated := role
	if in.DisplayName != nil || in.Description != nil {
		if updated, err = s.store.Roles().Update(ctx, id, upd); err != nil {
			return nil, err
		}
	}
	if in.Permissions != nil {
		if err := s.validatePermissionNames(ctx, *in.Permissions); err != nil {
			return nil, err
		}
		if err := s.store.Roles().SetPermissions(ctx, id, *in.Permissions); err != nil {
			return nil, err
		}
	}
	list, err := s.store.Permissions().ForRole(ctx, id)
	if err != nil {
		return nil, err
	}
	updated.Permissions = list

	if err := s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      actor.User.ID,
		Username:    actor.User.Username,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
		Action:      "update",
		Resource:    "roles",
		ResourceID:  updated.ID,
		Description: fmt.Sprintf("Role %s updated by %s", updated.Name, actor.User.Username),
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRole removes a custom role that no account references.
func (s *Service) DeleteRole(ctx context.Context, actor Principal, id, ip, userAgent string) error {
	role, err := s.store.Roles().Find(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return fmt.Errorf("%w: system roles cannot be deleted", ErrConflict)
	}
	count, err := s.store.Roles().UserCount(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: role is assigned to %d user(s)", ErrConflict, count)
	}
	if err := s.store.Roles().Delete(ctx, id); err != nil {
		return err
	}
	return s.trail.RecordAction(ctx, audit.ActionRecord{
		UserID:      actor.User.ID,
		Username:    actor.User.Username,
		IP:          ip,
		UserAgent:   userAgent,
		Action:      "delete",
		Resource:    "roles",
		ResourceID:  role.ID,
		Description: fmt.Sprintf("Role %s deleted by %s", role.Name, actor.User.Username),
		OldValues:   map[string]any{"name": role.Name, "display_name": role.DisplayName},
	})
}

// ListPermissions returns the full permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions().List(ctx)
}

func (s *Service) validatePermissionNames(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	catalog, err := s.store.Permissions().List(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(catalog))
	for _, p := range catalog {
		known[p.Name] = struct{}{}
	}
	for _, name := range names {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, name)
		}
	}
	return nil
}
