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

package images

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/tenant"
)

// Repository persists one-time image access tokens.
type Repository struct {
	db *sql.DB
}

// NewRepository creates the token repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores a freshly minted token.
func (r *Repository) Insert(ctx context.Context, t *AccessToken) error {
	_, err := tenant.NewScope(r.db, tenant.System(t.TenantID), true).ExecContext(ctx, `
		INSERT INTO image_access_tokens (id, tenant_id, image_id, check_item_id,
			created_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.TenantID, t.ImageID, nullableStr(t.CheckItemID),
		t.CreatedBy, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("insert image token: %w", err))
	}
	return nil
}

// GetByID loads a token regardless of state, nil when unknown. The
// lookup is keyed by the unguessable token ID; the tenant is not known
// until the row is read, so this is the one read outside the scope guard.
func (r *Repository) GetByID(ctx context.Context, id string) (*AccessToken, error) {
	var (
		t      AccessToken
		itemID sql.NullString
		usedAt sql.NullTime
		ip, ua sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, image_id, check_item_id, created_by,
		       expires_at, used_at, used_by_ip, used_by_user_agent, created_at
		FROM image_access_tokens WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.TenantID, &t.ImageID, &itemID, &t.CreatedBy,
		&t.ExpiresAt, &usedAt, &ip, &ua, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("get image token: %w", err))
	}
	t.CheckItemID = itemID.String
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	t.UsedByIP = ip.String
	t.UsedByUA = ua.String
	return &t, nil
}

// Consume burns the token in a single conditional round-trip. The
// second return is false when the token was already used; the update is
// committed before the caller touches any image backend.
func (r *Repository) Consume(ctx context.Context, id, ip, userAgent string, now time.Time) (*AccessToken, bool, error) {
	var (
		t      AccessToken
		itemID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		UPDATE image_access_tokens
		SET used_at = $2, used_by_ip = $3, used_by_user_agent = $4
		WHERE id = $1 AND used_at IS NULL
		RETURNING id, tenant_id, image_id, check_item_id, created_by, expires_at, created_at`,
		id, now, ip, userAgent,
	).Scan(&t.ID, &t.TenantID, &t.ImageID, &itemID, &t.CreatedBy, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.ErrDatabase.WithCause(fmt.Errorf("consume image token: %w", err))
	}
	t.CheckItemID = itemID.String
	t.UsedAt = &now
	t.UsedByIP = ip
	t.UsedByUA = userAgent
	return &t, true, nil
}

func nullableStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
