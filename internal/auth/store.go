package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
}

// UserFilter narrows List results.
type UserFilter struct {
	Status string
	RoleID string
	Search string
	Limit  int
	Offset int
}

// UserUpdate carries optional field changes; nil fields are left untouched.
type UserUpdate struct {
	Username     *string
	Email        *string
	FullName     *string
	Phone        *string
	AvatarURL    *string
	Status       *string
	RoleID       *string
	PasswordHash *string
	IsSuperAdmin *bool
	ApprovedAt   *time.Time
	ApprovedBy   *string
}

// UserStore manages user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByIdentifier matches username or email, case-insensitively.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, f UserFilter) ([]User, int, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	Delete(ctx context.Context, id string) error

	// SaveLoginSuccess records a successful authentication: sets last_login,
	// zeroes the failure counter and clears any lockout.
	SaveLoginSuccess(ctx context.Context, id string, at time.Time) error
	// SaveLoginFailure stores the new failure counter and optional lockout
	// deadline. Both are last-writer-wins single-row updates; concurrent
	// failures may under-count by one, which is acceptable for a soft
	// anti-brute-force measure.
	SaveLoginFailure(ctx context.Context, id string, failures int, lockedUntil *time.Time) error
}

// RoleUpdate carries optional role field changes.
type RoleUpdate struct {
	Name        *string
	DisplayName *string
	Description *string
}

// RoleStore manages roles and their permission sets.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error)
	Delete(ctx context.Context, id string) error
	SetPermissions(ctx context.Context, roleID string, permissionNames []string) error
	// UserCount reports how many accounts reference the role; a referenced
	// role cannot be deleted.
	UserCount(ctx context.Context, roleID string) (int, error)
}

// PermissionStore manages the static permission catalog.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
	ForRole(ctx context.Context, roleID string) ([]Permission, error)
}
