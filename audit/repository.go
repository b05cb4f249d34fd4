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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/tenant"
)

// ListParams filter the audit log read endpoint.
type ListParams struct {
	Action       string
	ResourceType string
	ResourceID   string
	UserID       string
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

// ListResult carries one page of records plus pagination metadata.
type ListResult struct {
	Records    []*Record `json:"records"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalItems int       `json:"total_items"`
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                              Record
		tenantID, userID, username       sql.NullString
		ipAddress, userAgent             sql.NullString
		resourceType, resourceID         sql.NullString
		description, sessionID           sql.NullString
		beforeJSON, afterJSON, extraJSON sql.NullString
		action                           string
	)

	err := row.Scan(
		&rec.ID, &tenantID, &rec.Timestamp, &userID, &username, &ipAddress,
		&userAgent, &action, &resourceType, &resourceID, &description,
		&beforeJSON, &afterJSON, &extraJSON, &sessionID,
		&rec.PreviousHash, &rec.IntegrityHash,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("scan audit record: %w", err))
	}

	rec.TenantID = tenantID.String
	rec.UserID = userID.String
	rec.Username = username.String
	rec.IPAddress = ipAddress.String
	rec.UserAgent = userAgent.String
	rec.Action = Action(action)
	rec.ResourceType = resourceType.String
	rec.ResourceID = resourceID.String
	rec.Description = description.String
	rec.SessionID = sessionID.String

	if beforeJSON.Valid && beforeJSON.String != "" {
		if err := json.Unmarshal([]byte(beforeJSON.String), &rec.BeforeValue); err != nil {
			return nil, errs.ErrInternal.WithCause(fmt.Errorf("decode before_value: %w", err))
		}
	}
	if afterJSON.Valid && afterJSON.String != "" {
		if err := json.Unmarshal([]byte(afterJSON.String), &rec.AfterValue); err != nil {
			return nil, errs.ErrInternal.WithCause(fmt.Errorf("decode after_value: %w", err))
		}
	}
	if extraJSON.Valid && extraJSON.String != "" {
		if err := json.Unmarshal([]byte(extraJSON.String), &rec.ExtraData); err != nil {
			return nil, errs.ErrInternal.WithCause(fmt.Errorf("decode extra_data: %w", err))
		}
	}
	return &rec, nil
}

const recordColumns = `id, tenant_id, timestamp, user_id, username, ip_address, user_agent,
	action, resource_type, resource_id, description,
	before_value, after_value, extra_data, session_id,
	previous_hash, integrity_hash`

// List returns a filtered, paginated view of the caller's tenant chain.
func (s *Service) List(ctx context.Context, tc tenant.Context, params ListParams) (*ListResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 200 {
		params.PageSize = 50
	}

	where := "WHERE tenant_id = $1"
	args := []interface{}{tc.TenantID}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if params.Action != "" {
		add("action =", params.Action)
	}
	if params.ResourceType != "" {
		add("resource_type =", params.ResourceType)
	}
	if params.ResourceID != "" {
		add("resource_id =", params.ResourceID)
	}
	if params.UserID != "" {
		add("user_id =", params.UserID)
	}
	if params.From != nil {
		add("timestamp >=", *params.From)
	}
	if params.To != nil {
		add("timestamp <=", *params.To)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs " + where
	if err := tenant.NewScope(s.db, tc, true).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("count audit records: %w", err))
	}

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	query := fmt.Sprintf(
		"SELECT %s FROM audit_logs %s ORDER BY timestamp DESC, id DESC LIMIT $%d OFFSET $%d",
		recordColumns, where, len(args)-1, len(args),
	)

	rows, err := tenant.NewScope(s.db, tc, true).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("list audit records: %w", err))
	}
	defer rows.Close()

	result := &ListResult{Page: params.Page, PageSize: params.PageSize, TotalItems: total, Records: []*Record{}}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	return result, nil
}

// ItemTrail returns the full audit trail for one check item in
// chronological order: entries on the item itself plus entries that tagged
// the item in extra_data.
func (s *Service) ItemTrail(ctx context.Context, tc tenant.Context, itemID string) ([]*Record, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_logs
		WHERE tenant_id = $1
		  AND (resource_id = $2 OR extra_data->>'check_item_id' = $2)
		ORDER BY timestamp ASC, id ASC`, recordColumns)

	rows, err := tenant.NewScope(s.db, tc, true).QueryContext(ctx, query, tc.TenantID, itemID)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("item trail: %w", err))
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	return records, nil
}

// ExportJob is a queued audit-packet generation job. The PDF renderer is a
// separate worker; this service only registers the job and audits the
// request.
type ExportJob struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	CheckItemID string    `json:"check_item_id,omitempty"`
	Status      string    `json:"status"`
	RequestedBy string    `json:"requested_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateExportJob registers an audit-packet job and writes the
// EXPORT_REQUESTED chain entry.
func (s *Service) CreateExportJob(ctx context.Context, tc tenant.Context, checkItemID string) (*ExportJob, error) {
	job := &ExportJob{
		ID:          uuid.New().String(),
		TenantID:    tc.TenantID,
		CheckItemID: checkItemID,
		Status:      "pending",
		RequestedBy: tc.UserID,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO audit_export_jobs (id, tenant_id, check_item_id, status, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tenant.NewScope(s.db, tc, true).ExecContext(ctx, query,
		job.ID, job.TenantID, nullable(job.CheckItemID), job.Status, job.RequestedBy, job.CreatedAt)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("create export job: %w", err))
	}

	_, err = s.Record(ctx, tc, Event{
		Action:       ActionExportRequested,
		ResourceType: "audit_export_job",
		ResourceID:   job.ID,
		Description:  "Audit packet generation requested",
		Extra:        map[string]interface{}{"check_item_id": checkItemID},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}
