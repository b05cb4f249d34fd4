// Copyright 2025 ClearCheck
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/tenant"
)

// Role is one named permission bundle. Roles are platform-wide; tenancy is
// enforced on the user, not the role.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

// Insert stores a new user row.
func (r *UserRepository) Insert(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, tenant_id, username, email, full_name,
			password_hash, is_active, mfa_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`
	_, err := tenant.NewScope(r.db, tenant.System(u.TenantID), true).ExecContext(ctx, query,
		u.ID, u.TenantID, u.Username, u.Email, nullIfEmpty(u.FullName),
		u.PasswordHash, u.IsActive, u.MFAEnabled)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists.WithMessage("Username or email already in use")
		}
		return errs.ErrDatabase.WithCause(fmt.Errorf("insert user: %w", err))
	}
	return nil
}

// UpdateProfile patches the mutable profile fields. Nil pointers leave the
// stored value unchanged.
func (r *UserRepository) UpdateProfile(ctx context.Context, tc tenant.Context, userID string, fullName, email *string, isActive *bool) error {
	query := `
		UPDATE users
		SET full_name = COALESCE($3, full_name),
		    email = COALESCE($4, email),
		    is_active = COALESCE($5, is_active)
		WHERE tenant_id = $1 AND id = $2`
	res, err := tenant.NewScope(r.db, tc, true).ExecContext(ctx, query, tc.TenantID, userID, fullName, email, isActive)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("update user: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ReplaceRoles swaps the user's role set for the named roles, atomically.
func (r *UserRepository) ReplaceRoles(ctx context.Context, tc tenant.Context, userID string, roleNames []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.ErrDatabase.WithCause(err)
	}
	defer tx.Rollback()

	var exists bool
	err = tenant.NewScope(tx, tc, true).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE tenant_id = $1 AND id = $2)`,
		tc.TenantID, userID).Scan(&exists)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("check user: %w", err))
	}
	if !exists {
		return errs.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("clear roles: %w", err))
	}

	if len(roleNames) > 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_roles (user_id, role_id)
			SELECT $1, id FROM roles WHERE name = ANY($2)`,
			userID, pq.Array(roleNames))
		if err != nil {
			return errs.ErrDatabase.WithCause(fmt.Errorf("assign roles: %w", err))
		}
		if n, err := res.RowsAffected(); err == nil && int(n) != len(roleNames) {
			return errs.ErrInvalidInput.WithMessage("One or more roles do not exist")
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.ErrDatabase.WithCause(err)
	}
	return nil
}

// ListRoles returns all roles with their permission names.
func (r *UserRepository) ListRoles(ctx context.Context) ([]*Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description FROM roles ORDER BY name`)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("list roles: %w", err))
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var (
			role Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc); err != nil {
			return nil, errs.ErrDatabase.WithCause(err)
		}
		role.Description = desc.String
		role.Permissions = []string{}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}

	for _, role := range roles {
		permRows, err := r.db.QueryContext(ctx, `
			SELECT p.name FROM permissions p
			JOIN role_permissions rp ON rp.permission_id = p.id
			WHERE rp.role_id = $1
			ORDER BY p.name`, role.ID)
		if err != nil {
			return nil, errs.ErrDatabase.WithCause(fmt.Errorf("list role permissions: %w", err))
		}
		for permRows.Next() {
			var name string
			if err := permRows.Scan(&name); err != nil {
				permRows.Close()
				return nil, errs.ErrDatabase.WithCause(err)
			}
			role.Permissions = append(role.Permissions, name)
		}
		if err := permRows.Err(); err != nil {
			permRows.Close()
			return nil, errs.ErrDatabase.WithCause(err)
		}
		permRows.Close()
	}
	return roles, nil
}

// ListPermissions returns every defined permission name.
func (r *UserRepository) ListPermissions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM permissions ORDER BY name`)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("list permissions: %w", err))
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.ErrDatabase.WithCause(err)
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
