package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopadmin.org/internal/auth"
	"shopadmin.org/internal/ids"
)

const userColumns = `id, username, email, full_name, phone, avatar_url, password_hash, status,
	is_super_admin, role_id, last_login, failed_login_attempts, locked_until,
	approved_at, approved_by, created_at, updated_at`

type userStore struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u          auth.User
		fullName   sql.NullString
		phone      sql.NullString
		avatarURL  sql.NullString
		roleID     sql.NullString
		lastLogin  sql.NullTime
		lockedTill sql.NullTime
		approvedAt sql.NullTime
		approvedBy sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &fullName, &phone, &avatarURL, &u.PasswordHash, &u.Status,
		&u.IsSuperAdmin, &roleID, &lastLogin, &u.FailedLoginAttempts, &lockedTill,
		&approvedAt, &approvedBy, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.FullName = fullName.String
	u.Phone = phone.String
	u.AvatarURL = avatarURL.String
	u.RoleID = roleID.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	if lockedTill.Valid {
		t := lockedTill.Time
		u.LockedUntil = &t
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		u.ApprovedAt = &t
	}
	if approvedBy.Valid {
		v := approvedBy.String
		u.ApprovedBy = &v
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, username, email, full_name, phone, avatar_url, password_hash,
			status, is_super_admin, role_id, approved_at, approved_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, nullif($10,''), $11, $12)
		returning created_at, updated_at
	`, u.ID, u.Username, u.Email, nullIfEmpty(u.FullName), nullIfEmpty(u.Phone),
		nullIfEmpty(u.AvatarURL), u.PasswordHash, u.Status, u.IsSuperAdmin, u.RoleID,
		nullTime(u.ApprovedAt), approvedByValue(u.ApprovedBy),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: username or email already registered", auth.ErrConflict)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: role does not exist", auth.ErrNotFound)
			}
		}
		return err
	}
	return nil
}

func approvedByValue(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return nullIfEmpty(*v)
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *userStore) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users
		where lower(username) = lower($1) or lower(email) = lower($1)
	`, identifier)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *userStore) List(ctx context.Context, f auth.UserFilter) ([]auth.User, int, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.RoleID != "" {
		where = append(where, fmt.Sprintf("role_id = $%d", idx))
		args = append(args, f.RoleID)
		idx++
	}
	if f.Search != "" {
		where = append(where, fmt.Sprintf(
			"(username ilike $%d or email ilike $%d or full_name ilike $%d)", idx, idx, idx))
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`select %s from users%s order by created_at desc limit $%d offset $%d`,
		userColumns, clause, idx, idx+1)
	args = append(args, f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *userStore) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	set := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.Username != nil {
		set("username", *upd.Username)
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.FullName != nil {
		set("full_name", nullIfEmpty(*upd.FullName))
	}
	if upd.Phone != nil {
		set("phone", nullIfEmpty(*upd.Phone))
	}
	if upd.AvatarURL != nil {
		set("avatar_url", nullIfEmpty(*upd.AvatarURL))
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if upd.RoleID != nil {
		set("role_id", nullIfEmpty(*upd.RoleID))
	}
	if upd.PasswordHash != nil {
		set("password_hash", *upd.PasswordHash)
	}
	if upd.IsSuperAdmin != nil {
		set("is_super_admin", *upd.IsSuperAdmin)
	}
	if upd.ApprovedAt != nil {
		set("approved_at", *upd.ApprovedAt)
	}
	if upd.ApprovedBy != nil {
		set("approved_by", nullIfEmpty(*upd.ApprovedBy))
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok {
				switch pgErr.Code {
				case pgErrUniqueViolation:
					return nil, fmt.Errorf("%w: username or email already registered", auth.ErrConflict)
				case pgErrForeignKeyViolation:
					return nil, fmt.Errorf("%w: role does not exist", auth.ErrNotFound)
				}
			}
			return nil, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if aff == 0 {
			return nil, auth.ErrNotFound
		}
	}
	return s.Find(ctx, id)
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *userStore) SaveLoginSuccess(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set last_login = $2, failed_login_attempts = 0, locked_until = null, updated_at = now()
		where id = $1
	`, id, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *userStore) SaveLoginFailure(ctx context.Context, id string, failures int, lockedUntil *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set failed_login_attempts = $2, locked_until = $3, updated_at = now()
		where id = $1
	`, id, failures, nullTime(lockedUntil))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
