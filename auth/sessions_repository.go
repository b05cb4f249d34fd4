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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clearcheck/platform/shared/errs"
)

// SessionRepository persists refresh-token sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates the session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// HashToken derives the storage key for a raw refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Create persists a new active session.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.IsActive = true
	s.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO user_sessions (
			id, tenant_id, user_id, token_hash, device_fingerprint,
			ip_address, user_agent, expires_at, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.TenantID, s.UserID, s.TokenHash, nullable(s.DeviceFingerprint),
		nullable(s.IPAddress), nullable(s.UserAgent), s.ExpiresAt, s.IsActive, s.CreatedAt,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("create session: %w", err))
	}
	return nil
}

// FindByTokenHash looks up a session by its refresh-token hash.
func (r *SessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	query := `
		SELECT id, tenant_id, user_id, token_hash, device_fingerprint,
		       ip_address, user_agent, expires_at, is_active, revoked_at, created_at
		FROM user_sessions
		WHERE token_hash = $1`

	var (
		s                   Session
		fingerprint, ip, ua sql.NullString
		revokedAt           sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&s.ID, &s.TenantID, &s.UserID, &s.TokenHash, &fingerprint,
		&ip, &ua, &s.ExpiresAt, &s.IsActive, &revokedAt, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("find session: %w", err))
	}

	s.DeviceFingerprint = fingerprint.String
	s.IPAddress = ip.String
	s.UserAgent = ua.String
	if revokedAt.Valid {
		t := revokedAt.Time
		s.RevokedAt = &t
	}
	return &s, nil
}

// Revoke deactivates one session. Revoking an already-revoked session is a
// no-op.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string) error {
	query := `
		UPDATE user_sessions
		SET is_active = FALSE, revoked_at = NOW()
		WHERE id = $1 AND is_active = TRUE`
	if _, err := r.db.ExecContext(ctx, query, sessionID); err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("revoke session: %w", err))
	}
	return nil
}

// RevokeAllForUser deactivates every active session of one user. Used on
// password change and administrative lockout.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE user_sessions
		SET is_active = FALSE, revoked_at = NOW()
		WHERE user_id = $1 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, errs.ErrDatabase.WithCause(fmt.Errorf("revoke user sessions: %w", err))
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
