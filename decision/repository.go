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

package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/tenant"
)

// Repository persists decisions and the decision-driven item updates.
type Repository struct {
	db *sql.DB
}

// NewRepository creates the decision repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// scope routes a statement through the tenant isolation guard.
func (r *Repository) scope(tc tenant.Context) *tenant.Scope {
	return tenant.NewScope(r.db, tc, true)
}

const decisionColumns = `id, tenant_id, check_item_id, decision_type, action, user_id,
	previous_status, new_status, is_dual_control_required, dual_control_approver_id,
	notes, reason_codes, ai_assisted, ai_analysis_id, evidence_snapshot, created_at`

// latestEvidenceHashTx returns the newest decision's evidence hash for
// the item, empty for the first decision.
func (r *Repository) latestEvidenceHashTx(ctx context.Context, tx *sql.Tx, tc tenant.Context, itemID string) (string, error) {
	var hash sql.NullString
	err := tenant.NewScope(tx, tc, true).QueryRowContext(ctx, `
		SELECT evidence_snapshot->>'evidence_hash' FROM decisions
		WHERE tenant_id = $1 AND check_item_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		tc.TenantID, itemID,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errs.ErrDatabase.WithCause(fmt.Errorf("latest evidence hash: %w", err))
	}
	return hash.String, nil
}

// insertTx writes the immutable decision row.
func (r *Repository) insertTx(ctx context.Context, tx *sql.Tx, d *Decision) error {
	reasonJSON, err := json.Marshal(d.ReasonCodes)
	if err != nil {
		return errs.ErrInternal.WithCause(err)
	}
	evidenceJSON, err := json.Marshal(d.EvidenceSnapshot)
	if err != nil {
		return errs.ErrInternal.WithCause(err)
	}
	_, err = tenant.NewScope(tx, tenant.System(d.TenantID), true).ExecContext(ctx, `
		INSERT INTO decisions (id, tenant_id, check_item_id, decision_type, action,
			user_id, previous_status, new_status, is_dual_control_required,
			dual_control_approver_id, notes, reason_codes, ai_assisted,
			ai_analysis_id, evidence_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		d.ID, d.TenantID, d.CheckItemID, d.DecisionType, d.Action, d.UserID,
		d.PreviousStatus, d.NewStatus, d.IsDualControlRequired,
		nullable(d.DualControlApproverID), nullable(d.Notes), reasonJSON,
		d.AIAssisted, nullable(d.AIAnalysisID), evidenceJSON, d.CreatedAt,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("insert decision: %w", err))
	}
	return nil
}

// updateItemTx applies the decision outcome to the locked item row.
func (r *Repository) updateItemTx(ctx context.Context, tx *sql.Tx, tc tenant.Context, itemID, status, pendingDecisionID string) error {
	res, err := tenant.NewScope(tx, tc, true).ExecContext(ctx, `
		UPDATE check_items SET status = $3,
			pending_dual_control_decision_id = NULLIF($4, ''),
			updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tc.TenantID, itemID, status, pendingDecisionID,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("update item from decision: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDecision(row rowScanner) (*Decision, error) {
	var (
		d                       Decision
		approver, notes, aiID   sql.NullString
		reasonJSON, evidenceRaw []byte
	)
	err := row.Scan(
		&d.ID, &d.TenantID, &d.CheckItemID, &d.DecisionType, &d.Action, &d.UserID,
		&d.PreviousStatus, &d.NewStatus, &d.IsDualControlRequired, &approver,
		&notes, &reasonJSON, &d.AIAssisted, &aiID, &evidenceRaw, &d.CreatedAt,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("scan decision: %w", err))
	}
	d.DualControlApproverID = approver.String
	d.Notes = notes.String
	d.AIAnalysisID = aiID.String
	if len(reasonJSON) > 0 {
		if err := json.Unmarshal(reasonJSON, &d.ReasonCodes); err != nil {
			return nil, errs.ErrInternal.WithCause(err)
		}
	}
	if len(evidenceRaw) > 0 {
		if err := json.Unmarshal(evidenceRaw, &d.EvidenceSnapshot); err != nil {
			return nil, errs.ErrInternal.WithCause(err)
		}
	}
	return &d, nil
}

// GetByID loads one decision inside the tenant scope.
func (r *Repository) GetByID(ctx context.Context, tc tenant.Context, id string) (*Decision, error) {
	query := fmt.Sprintf(`SELECT %s FROM decisions WHERE tenant_id = $1 AND id = $2`, decisionColumns)
	d, err := scanDecision(r.scope(tc).QueryRowContext(ctx, query, tc.TenantID, id))
	if err != nil {
		if errIsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// ListForItem returns the item's decisions in chain order.
func (r *Repository) ListForItem(ctx context.Context, tc tenant.Context, itemID string) ([]*Decision, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM decisions
		WHERE tenant_id = $1 AND check_item_id = $2
		ORDER BY created_at ASC, id ASC`, decisionColumns)

	rows, err := r.scope(tc).QueryContext(ctx, query, tc.TenantID, itemID)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("list decisions: %w", err))
	}
	defer rows.Close()

	var decisions []*Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	return decisions, nil
}

func errIsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
