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

package fraud

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/tenant"
)

// Repository persists fraud events, shared artifacts, alerts, and
// per-tenant sharing config.
type Repository struct {
	db *sql.DB
}

// NewRepository creates the fraud repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// scope routes a statement through the tenant isolation guard.
func (r *Repository) scope(tc tenant.Context) *tenant.Scope {
	return tenant.NewScope(r.db, tc, true)
}

// InsertEvent stores the private full-detail event.
func (r *Repository) InsertEvent(ctx context.Context, e *FraudEvent) error {
	_, err := r.scope(tenant.System(e.TenantID)).ExecContext(ctx, `
		INSERT INTO fraud_events (id, tenant_id, check_item_id, fraud_type, channel,
			amount, routing_number, payee_name, account_number, check_number,
			event_date, description, reported_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.TenantID, nullable(e.CheckItemID), e.FraudType, nullable(e.Channel),
		e.Amount, nullable(e.RoutingNumber), nullable(e.PayeeName),
		nullable(e.AccountNumber), nullable(e.CheckNumber),
		e.EventDate, nullable(e.Description), e.ReportedBy, e.CreatedAt,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("insert fraud event: %w", err))
	}
	return nil
}

// InsertArtifact stores the hashed cross-tenant artifact.
func (r *Repository) InsertArtifact(ctx context.Context, a *FraudSharedArtifact) error {
	_, err := r.scope(tenant.System(a.TenantID)).ExecContext(ctx, `
		INSERT INTO fraud_shared_artifacts (id, tenant_id, event_id, routing_hash,
			payee_hash, account_hash, check_number_hash, fingerprint, amount_bucket,
			month_bucket, fraud_type, channel, sharing_level, pepper_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.TenantID, a.EventID, nullable(a.RoutingHash), nullable(a.PayeeHash),
		nullable(a.AccountHash), nullable(a.CheckNumberHash), nullable(a.Fingerprint),
		a.AmountBucket, a.MonthBucket, a.FraudType, nullable(a.Channel),
		a.SharingLevel, a.PepperVersion, a.CreatedAt,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("insert shared artifact: %w", err))
	}
	return nil
}

// IndicatorMatch is one indicator's hit count against the network.
type IndicatorMatch struct {
	Reason          string
	Count           int
	DistinctTenants int
}

// MatchIndicator counts network-match artifacts from other tenants whose
// column equals the hash, across the eligible pepper versions.
func (r *Repository) MatchIndicator(ctx context.Context, ownTenant, column, hash string, versions []string) (*IndicatorMatch, error) {
	allowed := map[string]string{
		"routing_hash":      "routing_number",
		"payee_hash":        "payee_name",
		"account_hash":      "account_number",
		"check_number_hash": "check_number",
		"fingerprint":       "fingerprint",
	}
	reason, ok := allowed[column]
	if !ok {
		return nil, errs.ErrInternal.WithMessage("unknown indicator column %q", column)
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(DISTINCT tenant_id)
		FROM fraud_shared_artifacts
		WHERE tenant_id <> $1 AND sharing_level = $2
		  AND pepper_version = ANY($3) AND %s = $4`, column)

	m := &IndicatorMatch{Reason: reason}
	err := r.db.QueryRowContext(ctx, query,
		ownTenant, SharingNetworkMatch, pq.Array(versions), hash,
	).Scan(&m.Count, &m.DistinctTenants)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("match %s: %w", column, err))
	}
	return m, nil
}

// InsertAlert stores a per-tenant match alert.
func (r *Repository) InsertAlert(ctx context.Context, a *NetworkMatchAlert) error {
	reasons, err := json.Marshal(a.MatchReasons)
	if err != nil {
		return errs.ErrInternal.WithCause(err)
	}
	_, err = r.scope(tenant.System(a.TenantID)).ExecContext(ctx, `
		INSERT INTO network_match_alerts (id, tenant_id, event_id, check_item_id,
			match_reasons, match_count, distinct_institutions, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.TenantID, a.EventID, nullable(a.CheckItemID),
		reasons, a.MatchCount, a.DistinctInstitutions, a.Status, a.CreatedAt,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("insert match alert: %w", err))
	}
	return nil
}

// ListAlerts returns the tenant's alerts, newest first.
func (r *Repository) ListAlerts(ctx context.Context, tc tenant.Context, status string) ([]*NetworkMatchAlert, error) {
	rows, err := r.scope(tc).QueryContext(ctx, `
		SELECT id, tenant_id, event_id, check_item_id, match_reasons, match_count,
		       distinct_institutions, status, acknowledged_by, acknowledged_at, created_at
		FROM network_match_alerts
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`,
		tc.TenantID, status,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("list alerts: %w", err))
	}
	defer rows.Close()

	var alerts []*NetworkMatchAlert
	for rows.Next() {
		var (
			a           NetworkMatchAlert
			itemID      sql.NullString
			ackBy       sql.NullString
			ackAt       sql.NullTime
			reasonsJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.EventID, &itemID, &reasonsJSON,
			&a.MatchCount, &a.DistinctInstitutions, &a.Status, &ackBy, &ackAt, &a.CreatedAt); err != nil {
			return nil, errs.ErrDatabase.WithCause(fmt.Errorf("scan alert: %w", err))
		}
		a.CheckItemID = itemID.String
		a.AcknowledgedBy = ackBy.String
		if ackAt.Valid {
			a.AcknowledgedAt = &ackAt.Time
		}
		if len(reasonsJSON) > 0 {
			if err := json.Unmarshal(reasonsJSON, &a.MatchReasons); err != nil {
				return nil, errs.ErrInternal.WithCause(err)
			}
		}
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	return alerts, nil
}

// ResolveAlert moves an alert to acknowledged or dismissed.
func (r *Repository) ResolveAlert(ctx context.Context, tc tenant.Context, id, userID, status string, at time.Time) error {
	res, err := r.scope(tc).ExecContext(ctx, `
		UPDATE network_match_alerts
		SET status = $3, acknowledged_by = $4, acknowledged_at = $5
		WHERE tenant_id = $1 AND id = $2 AND status = 'new'`,
		tc.TenantID, id, status, userID, at,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("resolve alert: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound.WithMessage("Alert not found or already resolved")
	}
	return nil
}

// GetConfig loads the tenant's sharing config, nil when never configured.
func (r *Repository) GetConfig(ctx context.Context, tc tenant.Context) (*TenantFraudConfig, error) {
	var (
		c        TenantFraudConfig
		versions []byte
	)
	err := r.scope(tc).QueryRowContext(ctx, `
		SELECT tenant_id, sharing_enabled, default_sharing_level,
		       eligible_pepper_versions, updated_at
		FROM tenant_fraud_configs WHERE tenant_id = $1`,
		tc.TenantID,
	).Scan(&c.TenantID, &c.SharingEnabled, &c.DefaultSharingLevel, &versions, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("get fraud config: %w", err))
	}
	if len(versions) > 0 {
		if err := json.Unmarshal(versions, &c.EligiblePepperVersns); err != nil {
			return nil, errs.ErrInternal.WithCause(err)
		}
	}
	return &c, nil
}

// UpsertConfig writes the tenant's sharing config.
func (r *Repository) UpsertConfig(ctx context.Context, c *TenantFraudConfig) error {
	versions, err := json.Marshal(c.EligiblePepperVersns)
	if err != nil {
		return errs.ErrInternal.WithCause(err)
	}
	_, err = r.scope(tenant.System(c.TenantID)).ExecContext(ctx, `
		INSERT INTO tenant_fraud_configs (tenant_id, sharing_enabled,
			default_sharing_level, eligible_pepper_versions, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id) DO UPDATE SET
			sharing_enabled = EXCLUDED.sharing_enabled,
			default_sharing_level = EXCLUDED.default_sharing_level,
			eligible_pepper_versions = EXCLUDED.eligible_pepper_versions,
			updated_at = EXCLUDED.updated_at`,
		c.TenantID, c.SharingEnabled, c.DefaultSharingLevel, versions, c.UpdatedAt,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("upsert fraud config: %w", err))
	}
	return nil
}

// Stats aggregates shared artifacts for one fraud type and month across
// the whole network. Artifacts shared at aggregate level or above count.
func (r *Repository) Stats(ctx context.Context, fraudType, monthBucket string) (total, distinctTenants int, byBucket map[string]int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT tenant_id)
		FROM fraud_shared_artifacts
		WHERE fraud_type = $1 AND month_bucket = $2 AND sharing_level >= $3`,
		fraudType, monthBucket, SharingAggregate,
	).Scan(&total, &distinctTenants)
	if err != nil {
		return 0, 0, nil, errs.ErrDatabase.WithCause(fmt.Errorf("fraud stats: %w", err))
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT amount_bucket, COUNT(*)
		FROM fraud_shared_artifacts
		WHERE fraud_type = $1 AND month_bucket = $2 AND sharing_level >= $3
		GROUP BY amount_bucket`,
		fraudType, monthBucket, SharingAggregate,
	)
	if err != nil {
		return 0, 0, nil, errs.ErrDatabase.WithCause(fmt.Errorf("fraud stats buckets: %w", err))
	}
	defer rows.Close()

	byBucket = map[string]int{}
	for rows.Next() {
		var bucket string
		var n int
		if err := rows.Scan(&bucket, &n); err != nil {
			return 0, 0, nil, errs.ErrDatabase.WithCause(err)
		}
		byBucket[bucket] = n
	}
	if err := rows.Err(); err != nil {
		return 0, 0, nil, errs.ErrDatabase.WithCause(err)
	}
	return total, distinctTenants, byBucket, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
