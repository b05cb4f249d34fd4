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

package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clearcheck/platform/shared/canonical"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

// genesisHash seeds every tenant chain.
const genesisHash = "genesis"

// Event is what callers submit. Identity, timestamps, and chain hashes are
// filled in by the service.
type Event struct {
	Action       Action
	ResourceType string
	ResourceID   string
	Description  string
	Before       interface{}
	After        interface{}
	Extra        map[string]interface{}
}

// Record is one stored audit row. Immutable once written.
type Record struct {
	ID            string                 `json:"id"`
	TenantID      string                 `json:"tenant_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	UserID        string                 `json:"user_id,omitempty"`
	Username      string                 `json:"username,omitempty"`
	IPAddress     string                 `json:"ip_address,omitempty"`
	UserAgent     string                 `json:"user_agent,omitempty"`
	Action        Action                 `json:"action"`
	ResourceType  string                 `json:"resource_type,omitempty"`
	ResourceID    string                 `json:"resource_id,omitempty"`
	Description   string                 `json:"description,omitempty"`
	BeforeValue   interface{}            `json:"before_value,omitempty"`
	AfterValue    interface{}            `json:"after_value,omitempty"`
	ExtraData     map[string]interface{} `json:"extra_data,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	PreviousHash  string                 `json:"previous_hash"`
	IntegrityHash string                 `json:"integrity_hash"`
}

// Service writes and verifies the per-tenant audit chain.
type Service struct {
	db  *sql.DB
	log *logger.Logger
}

// NewService creates the audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, log: logger.New("audit")}
}

// Record appends one chained record for the caller's tenant. It opens its
// own transaction; callers inside a larger transaction use RecordTx.
func (s *Service) Record(ctx context.Context, tc tenant.Context, e Event) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	defer tx.Rollback()

	rec, err := s.RecordTx(ctx, tx, tc, e)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	return rec, nil
}

// RecordTx appends one chained record inside an existing transaction so a
// decision and its audit entry commit atomically.
//
// The per-tenant chain stays linear under concurrent writers because the
// advisory lock is held until the transaction ends.
func (s *Service) RecordTx(ctx context.Context, tx *sql.Tx, tc tenant.Context, e Event) (*Record, error) {
	rec := &Record{
		ID:       uuid.New().String(),
		TenantID: tc.TenantID,
		// Truncated to microseconds so the hashed timestamp survives the
		// round-trip through timestamptz unchanged.
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
		UserID:       tc.UserID,
		Username:     tc.Username,
		IPAddress:    tc.IPAddress,
		UserAgent:    tc.UserAgent,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Description:  e.Description,
		BeforeValue:  e.Before,
		AfterValue:   e.After,
		ExtraData:    e.Extra,
		SessionID:    tc.SessionID,
	}

	lockKey := rec.TenantID
	if lockKey == "" {
		lockKey = "system"
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("acquire audit lock: %w", err))
	}

	prev, err := s.latestHashTx(ctx, tx, rec.TenantID)
	if err != nil {
		return nil, err
	}
	rec.PreviousHash = prev

	hash, err := ComputeIntegrityHash(rec)
	if err != nil {
		return nil, errs.ErrInternal.WithCause(err)
	}
	rec.IntegrityHash = hash

	if err := insertRecordTx(ctx, tx, rec); err != nil {
		return nil, err
	}

	s.log.Info(rec.TenantID, tc.RequestID, "Audit record appended", map[string]interface{}{
		"action":        string(rec.Action),
		"resource_type": rec.ResourceType,
		"resource_id":   rec.ResourceID,
	})
	return rec, nil
}

// latestHashTx reads the chain tail for a tenant. Rows with NULL tenant_id
// form the system chain.
func (s *Service) latestHashTx(ctx context.Context, tx *sql.Tx, tenantID string) (string, error) {
	var (
		query string
		row   *sql.Row
	)
	if tenantID == "" {
		query = `
			SELECT integrity_hash FROM audit_logs
			WHERE tenant_id IS NULL
			ORDER BY timestamp DESC, id DESC
			LIMIT 1`
		row = tx.QueryRowContext(ctx, query)
	} else {
		query = `
			SELECT integrity_hash FROM audit_logs
			WHERE tenant_id = $1
			ORDER BY timestamp DESC, id DESC
			LIMIT 1`
		row = tx.QueryRowContext(ctx, query, tenantID)
	}

	var hash string
	err := row.Scan(&hash)
	if err == sql.ErrNoRows {
		return genesisHash, nil
	}
	if err != nil {
		return "", errs.ErrDatabase.WithCause(fmt.Errorf("read chain tail: %w", err))
	}
	return hash, nil
}

func insertRecordTx(ctx context.Context, tx *sql.Tx, rec *Record) error {
	beforeJSON, err := canonical.MarshalString(rec.BeforeValue)
	if err != nil {
		return errs.ErrInternal.WithCause(err)
	}
	afterJSON, err := canonical.MarshalString(rec.AfterValue)
	if err != nil {
		return errs.ErrInternal.WithCause(err)
	}
	var extraJSON interface{}
	if rec.ExtraData != nil {
		s, err := canonical.MarshalString(rec.ExtraData)
		if err != nil {
			return errs.ErrInternal.WithCause(err)
		}
		extraJSON = s
	}

	query := `
		INSERT INTO audit_logs (
			id, tenant_id, timestamp, user_id, username, ip_address, user_agent,
			action, resource_type, resource_id, description,
			before_value, after_value, extra_data, session_id,
			previous_hash, integrity_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = tx.ExecContext(ctx, query,
		rec.ID, nullable(rec.TenantID), rec.Timestamp, nullable(rec.UserID),
		nullable(rec.Username), nullable(rec.IPAddress), nullable(rec.UserAgent),
		string(rec.Action), nullable(rec.ResourceType), nullable(rec.ResourceID),
		nullable(rec.Description), beforeJSON, afterJSON, extraJSON,
		nullable(rec.SessionID), rec.PreviousHash, rec.IntegrityHash,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("insert audit record: %w", err))
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ComputeIntegrityHash computes the SHA-256 over the record's canonical,
// pipe-separated serialization. The component layout is part of the stored
// chain contract.
func ComputeIntegrityHash(rec *Record) (string, error) {
	beforeJSON, err := canonical.MarshalString(rec.BeforeValue)
	if err != nil {
		return "", err
	}
	afterJSON, err := canonical.MarshalString(rec.AfterValue)
	if err != nil {
		return "", err
	}
	var extra interface{}
	if rec.ExtraData != nil {
		extra = rec.ExtraData
	}
	extraJSON, err := canonical.MarshalString(extra)
	if err != nil {
		return "", err
	}

	components := []string{
		scalar(rec.ID),
		scalar(rec.TenantID),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		scalar(rec.UserID),
		string(rec.Action),
		scalar(rec.ResourceType),
		scalar(rec.ResourceID),
		beforeJSON,
		afterJSON,
		extraJSON,
		rec.PreviousHash,
	}

	sum := sha256.Sum256([]byte(strings.Join(components, "|")))
	return hex.EncodeToString(sum[:]), nil
}

// scalar serializes a possibly-absent string component.
func scalar(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
