package pg

import (
	"context"
	"database/sql"

	"shopadmin.org/internal/auth"
	"shopadmin.org/internal/ids"
)

const permissionColumns = `id, name, resource, action, description, created_at`

type permissionStore struct {
	db *sql.DB
}

func scanPermission(row rowScanner) (*auth.Permission, error) {
	var (
		p    auth.Permission
		desc sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &desc, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Description = desc.String
	return &p, nil
}

// Ensure inserts any catalog entries that do not exist yet. Existing rows are
// left untouched so descriptions can be edited in place.
func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, name, resource, action, description)
			values ($1, $2, $3, $4, $5)
			on conflict (name) do nothing
		`, id, p.Name, p.Resource, p.Action, nullIfEmpty(p.Description)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *permissionStore) List(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `select `+permissionColumns+` from permissions order by resource, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *permissionStore) ForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.resource, p.action, p.description, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.resource, p.action
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
