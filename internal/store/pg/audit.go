package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"shopadmin.org/internal/audit"
)

func (s *Store) AppendEntry(ctx context.Context, e *audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, user_id, username, ip_address, user_agent, action,
			resource, resource_id, description, old_values, new_values, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, nullStringPtr(e.UserID), nullIfEmpty(e.Username), nullIfEmpty(e.IP),
		nullIfEmpty(e.UserAgent), e.Action, e.Resource, nullStringPtr(e.ResourceID),
		nullIfEmpty(e.Description), rawOrNil(e.OldValues), rawOrNil(e.NewValues), e.CreatedAt)
	return err
}

func (s *Store) AppendLoginAttempt(ctx context.Context, a *audit.LoginAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		insert into login_attempts (id, identifier, ip_address, user_agent, success,
			failure_reason, user_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.Identifier, nullIfEmpty(a.IP), nullIfEmpty(a.UserAgent), a.Success,
		nullIfEmpty(a.FailureReason), nullStringPtr(a.UserID), a.CreatedAt)
	return err
}

func (s *Store) ListEntries(ctx context.Context, f audit.EntryFilter) ([]audit.Entry, int, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if f.UserID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, f.UserID)
		idx++
	}
	if f.Action != "" {
		where = append(where, fmt.Sprintf("action = $%d", idx))
		args = append(args, f.Action)
		idx++
	}
	if f.Resource != "" {
		where = append(where, fmt.Sprintf("resource = $%d", idx))
		args = append(args, f.Resource)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from audit_logs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		select id, user_id, username, ip_address, user_agent, action, resource,
			resource_id, description, old_values, new_values, created_at
		from audit_logs%s
		order by created_at desc
		limit $%d offset $%d
	`, clause, idx, idx+1)
	args = append(args, pageLimit(f.Limit), f.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			userID     sql.NullString
			username   sql.NullString
			ip         sql.NullString
			userAgent  sql.NullString
			resourceID sql.NullString
			desc       sql.NullString
			oldValues  []byte
			newValues  []byte
		)
		if err := rows.Scan(&e.ID, &userID, &username, &ip, &userAgent, &e.Action, &e.Resource,
			&resourceID, &desc, &oldValues, &newValues, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if userID.Valid {
			v := userID.String
			e.UserID = &v
		}
		if resourceID.Valid {
			v := resourceID.String
			e.ResourceID = &v
		}
		e.Username = username.String
		e.IP = ip.String
		e.UserAgent = userAgent.String
		e.Description = desc.String
		e.OldValues = oldValues
		e.NewValues = newValues
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *Store) ListLoginAttempts(ctx context.Context, f audit.AttemptFilter) ([]audit.LoginAttempt, int, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if f.Identifier != "" {
		where = append(where, fmt.Sprintf("lower(identifier) = lower($%d)", idx))
		args = append(args, f.Identifier)
		idx++
	}
	if f.Success != nil {
		where = append(where, fmt.Sprintf("success = $%d", idx))
		args = append(args, *f.Success)
		idx++
	}
	if !f.Since.IsZero() {
		where = append(where, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, f.Since)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from login_attempts`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		select id, identifier, ip_address, user_agent, success, failure_reason, user_id, created_at
		from login_attempts%s
		order by created_at desc
		limit $%d offset $%d
	`, clause, idx, idx+1)
	args = append(args, pageLimit(f.Limit), f.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []audit.LoginAttempt
	for rows.Next() {
		var (
			a         audit.LoginAttempt
			ip        sql.NullString
			userAgent sql.NullString
			reason    sql.NullString
			userID    sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Identifier, &ip, &userAgent, &a.Success, &reason, &userID, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		a.IP = ip.String
		a.UserAgent = userAgent.String
		a.FailureReason = reason.String
		if userID.Valid {
			v := userID.String
			a.UserID = &v
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

func nullStringPtr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return nullIfEmpty(*v)
}

func rawOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func pageLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
