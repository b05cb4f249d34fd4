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
	"encoding/json"
	"fmt"
	"time"

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/tenant"
)

// MaxFailedAttempts triggers the lockout; LockoutDuration is how long it
// holds.
const (
	MaxFailedAttempts = 5
	LockoutDuration   = 30 * time.Minute
)

// UserRepository reads and writes operator accounts.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates the user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, tenant_id, username, email, full_name, password_hash,
	is_active, mfa_enabled, mfa_secret, allowed_ips,
	failed_login_attempts, locked_until, last_login, created_at`

func scanUser(row rowScanner) (*User, error) {
	var (
		u                    User
		fullName, mfaSecret  sql.NullString
		allowedIPs           sql.NullString
		lockedUntil, lastLog sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.TenantID, &u.Username, &u.Email, &fullName, &u.PasswordHash,
		&u.IsActive, &u.MFAEnabled, &mfaSecret, &allowedIPs,
		&u.FailedLoginAttempts, &lockedUntil, &lastLog, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("scan user: %w", err))
	}

	u.FullName = fullName.String
	u.MFASecret = mfaSecret.String
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	if lastLog.Valid {
		t := lastLog.Time
		u.LastLogin = &t
	}
	if allowedIPs.Valid && allowedIPs.String != "" {
		if err := json.Unmarshal([]byte(allowedIPs.String), &u.AllowedIPs); err != nil {
			return nil, errs.ErrInternal.WithCause(fmt.Errorf("decode allowed_ips: %w", err))
		}
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// FindByIdentifier looks a user up by username or email. The lookup runs
// before authentication, so it carries no tenant filter; the resolved
// user's tenant becomes the request tenant on success.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1 OR email = $1`, userColumns)
	u, err := scanUser(r.db.QueryRowContext(ctx, query, identifier))
	if err != nil || u == nil {
		return u, err
	}
	if err := r.loadGrants(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID fetches a user within the caller's tenant.
func (r *UserRepository) GetByID(ctx context.Context, tc tenant.Context, id string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE tenant_id = $1 AND id = $2`, userColumns)
	u, err := scanUser(tenant.NewScope(r.db, tc, true).QueryRowContext(ctx, query, tc.TenantID, id))
	if err != nil || u == nil {
		return u, err
	}
	if err := r.loadGrants(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// loadGrants resolves the user's roles and the union of permissions those
// roles carry.
func (r *UserRepository) loadGrants(ctx context.Context, u *User) error {
	roleQuery := `
		SELECT r.name FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name`
	rows, err := r.db.QueryContext(ctx, roleQuery, u.ID)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("load roles: %w", err))
	}
	defer rows.Close()

	u.Roles = []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return errs.ErrDatabase.WithCause(err)
		}
		u.Roles = append(u.Roles, name)
	}
	if err := rows.Err(); err != nil {
		return errs.ErrDatabase.WithCause(err)
	}

	permQuery := `
		SELECT DISTINCT p.name FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1
		ORDER BY p.name`
	permRows, err := r.db.QueryContext(ctx, permQuery, u.ID)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("load permissions: %w", err))
	}
	defer permRows.Close()

	u.Permissions = []string{}
	for permRows.Next() {
		var name string
		if err := permRows.Scan(&name); err != nil {
			return errs.ErrDatabase.WithCause(err)
		}
		u.Permissions = append(u.Permissions, name)
	}
	return permRows.Err()
}

// RecordLoginFailure increments the failure counter and applies the
// lockout once the threshold is reached. It returns the new counter and
// the lockout expiry when one was set.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, userID string) (int, *time.Time, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN NOW() + $3 * INTERVAL '1 minute'
		        ELSE locked_until
		    END
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until`

	var (
		attempts    int
		lockedUntil sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query,
		userID, MaxFailedAttempts, int(LockoutDuration.Minutes()),
	).Scan(&attempts, &lockedUntil)
	if err != nil {
		return 0, nil, errs.ErrDatabase.WithCause(fmt.Errorf("record login failure: %w", err))
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		return attempts, &t, nil
	}
	return attempts, nil, nil
}

// ResetLoginFailures clears the failure counter and stamps last_login.
func (r *UserRepository) ResetLoginFailures(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login = NOW()
		WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("reset login failures: %w", err))
	}
	return nil
}

// UpdatePassword replaces the stored hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, tc tenant.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $3 WHERE tenant_id = $1 AND id = $2`
	res, err := tenant.NewScope(r.db, tc, true).ExecContext(ctx, query, tc.TenantID, userID, passwordHash)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("update password: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListByTenant returns the tenant's users for the admin endpoint.
func (r *UserRepository) ListByTenant(ctx context.Context, tc tenant.Context) ([]*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE tenant_id = $1 ORDER BY username`, userColumns)
	rows, err := tenant.NewScope(r.db, tc, true).QueryContext(ctx, query, tc.TenantID)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("list users: %w", err))
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	for _, u := range users {
		if err := r.loadGrants(ctx, u); err != nil {
			return nil, err
		}
	}
	return users, nil
}
