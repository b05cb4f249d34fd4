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

package checks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/tenant"
)

// Repository persists check items and view sessions.
type Repository struct {
	db *sql.DB
}

// NewRepository creates the check item repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// scope binds a statement to the caller's tenant. Every production query
// runs through it; unscoped statements against tenant tables are refused
// before they reach the database.
func (r *Repository) scope(tc tenant.Context) *tenant.Scope {
	return tenant.NewScope(r.db, tc, true)
}

// DB exposes the handle for packages that join against check_items in
// their own transactions.
func (r *Repository) DB() *sql.DB { return r.db }

const itemColumns = `id, tenant_id, external_item_id, amount, currency, account_id,
	account_masked, routing_number, check_number, presented_date, check_date,
	micr_line, payee_name, item_type, status, risk_level, priority, account_type,
	account_context, upstream_flags, ai_recommendation, ai_confidence,
	ai_explanation, ai_analysis_id, assigned_reviewer_id, assigned_approver_id,
	queue_id, sla_due_at, sla_breached, requires_dual_control,
	pending_dual_control_decision_id, dual_control_reason, policy_version_id,
	created_at, updated_at`

// accountContextJSON is the storage shape of the derived account snapshot.
type accountContextJSON struct {
	TenureDays          *float64 `json:"tenure_days,omitempty"`
	CurrentBalance      *float64 `json:"current_balance,omitempty"`
	AvailableBalance    *float64 `json:"available_balance,omitempty"`
	AvgCheckAmount30d   *float64 `json:"avg_check_amount_30d,omitempty"`
	MaxCheckAmount90d   *float64 `json:"max_check_amount_90d,omitempty"`
	TotalCheckAmount7d  *float64 `json:"total_check_amount_7d,omitempty"`
	CheckCount7d        *float64 `json:"check_count_7d,omitempty"`
	ReturnCount90d      *float64 `json:"return_count_90d,omitempty"`
	OverdraftCount90d   *float64 `json:"overdraft_count_90d,omitempty"`
	NSFCount90d         *float64 `json:"nsf_count_90d,omitempty"`
	ImageQualityScore   *float64 `json:"image_quality_score,omitempty"`
	DaysSinceCheckDate  *float64 `json:"days_since_check_date,omitempty"`
	DuplicateCheckCount *float64 `json:"duplicate_check_count,omitempty"`
}

func contextFromItem(item *CheckItem) accountContextJSON {
	return accountContextJSON{
		TenureDays:          item.AccountTenureDays,
		CurrentBalance:      item.CurrentBalance,
		AvailableBalance:    item.AvailableBalance,
		AvgCheckAmount30d:   item.AvgCheckAmount30d,
		MaxCheckAmount90d:   item.MaxCheckAmount90d,
		TotalCheckAmount7d:  item.TotalCheckAmount7d,
		CheckCount7d:        item.CheckCount7d,
		ReturnCount90d:      item.ReturnCount90d,
		OverdraftCount90d:   item.OverdraftCount90d,
		NSFCount90d:         item.NSFCount90d,
		ImageQualityScore:   item.ImageQualityScore,
		DaysSinceCheckDate:  item.DaysSinceCheckDate,
		DuplicateCheckCount: item.DuplicateCheckCount,
	}
}

func (c accountContextJSON) applyTo(item *CheckItem) {
	item.AccountTenureDays = c.TenureDays
	item.CurrentBalance = c.CurrentBalance
	item.AvailableBalance = c.AvailableBalance
	item.AvgCheckAmount30d = c.AvgCheckAmount30d
	item.MaxCheckAmount90d = c.MaxCheckAmount90d
	item.TotalCheckAmount7d = c.TotalCheckAmount7d
	item.CheckCount7d = c.CheckCount7d
	item.ReturnCount90d = c.ReturnCount90d
	item.OverdraftCount90d = c.OverdraftCount90d
	item.NSFCount90d = c.NSFCount90d
	item.ImageQualityScore = c.ImageQualityScore
	item.DaysSinceCheckDate = c.DaysSinceCheckDate
	item.DuplicateCheckCount = c.DuplicateCheckCount
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*CheckItem, error) {
	var (
		item                                 CheckItem
		checkDate, slaDueAt                  sql.NullTime
		micr, payee, accountType             sql.NullString
		aiRec, aiExp, aiID                   sql.NullString
		aiConf                               sql.NullFloat64
		reviewer, approver, queueID          sql.NullString
		pendingDecision, dualReason, version sql.NullString
		contextJSON, flagsJSON               []byte
	)
	err := row.Scan(
		&item.ID, &item.TenantID, &item.ExternalItemID, &item.Amount, &item.Currency,
		&item.AccountID, &item.AccountMasked, &item.RoutingNumber, &item.CheckNumber,
		&item.PresentedDate, &checkDate, &micr, &payee, &item.ItemType, &item.Status,
		&item.RiskLevel, &item.Priority, &accountType, &contextJSON, &flagsJSON,
		&aiRec, &aiConf, &aiExp, &aiID, &reviewer, &approver, &queueID, &slaDueAt,
		&item.SLABreached, &item.RequiresDualControl, &pendingDecision, &dualReason,
		&version, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("scan check item: %w", err))
	}
	if checkDate.Valid {
		item.CheckDate = &checkDate.Time
	}
	if slaDueAt.Valid {
		item.SLADueAt = &slaDueAt.Time
	}
	item.MICRLine = micr.String
	item.PayeeName = payee.String
	item.AccountType = accountType.String
	item.AIRecommendation = aiRec.String
	if aiConf.Valid {
		v := aiConf.Float64
		item.AIConfidence = &v
	}
	item.AIExplanation = aiExp.String
	item.AIAnalysisID = aiID.String
	item.AssignedReviewerID = reviewer.String
	item.AssignedApproverID = approver.String
	item.QueueID = queueID.String
	item.PendingDualControlDecisionID = pendingDecision.String
	item.DualControlReason = dualReason.String
	item.PolicyVersionID = version.String

	if len(contextJSON) > 0 {
		var accountContext accountContextJSON
		if err := json.Unmarshal(contextJSON, &accountContext); err != nil {
			return nil, errs.ErrInternal.WithCause(fmt.Errorf("decode account context: %w", err))
		}
		accountContext.applyTo(&item)
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &item.UpstreamFlags); err != nil {
			return nil, errs.ErrInternal.WithCause(fmt.Errorf("decode upstream flags: %w", err))
		}
	}
	return &item, nil
}

// Upsert inserts or refreshes an item keyed on (tenant_id,
// external_item_id). Returns whether a new row was created. Workflow
// fields (status, assignments, dual-control state) are never overwritten
// on update.
func (r *Repository) Upsert(ctx context.Context, item *CheckItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	contextJSON, err := json.Marshal(contextFromItem(item))
	if err != nil {
		return false, errs.ErrInternal.WithCause(err)
	}
	flagsJSON, err := json.Marshal(item.UpstreamFlags)
	if err != nil {
		return false, errs.ErrInternal.WithCause(err)
	}

	query := `
		INSERT INTO check_items (id, tenant_id, external_item_id, amount, currency,
			account_id, account_masked, routing_number, check_number, presented_date,
			check_date, micr_line, payee_name, item_type, status, risk_level, priority,
			account_type, account_context, upstream_flags, queue_id, sla_due_at,
			requires_dual_control, dual_control_reason, policy_version_id,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, NOW(), NOW())
		ON CONFLICT (tenant_id, external_item_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			account_masked = EXCLUDED.account_masked,
			check_date = EXCLUDED.check_date,
			micr_line = EXCLUDED.micr_line,
			payee_name = EXCLUDED.payee_name,
			account_context = EXCLUDED.account_context,
			upstream_flags = EXCLUDED.upstream_flags,
			updated_at = NOW()
		RETURNING id, (created_at = updated_at) AS inserted`

	var inserted bool
	err = r.scope(tenant.System(item.TenantID)).QueryRowContext(ctx, query,
		item.ID, item.TenantID, item.ExternalItemID, item.Amount, item.Currency,
		item.AccountID, item.AccountMasked, item.RoutingNumber, item.CheckNumber,
		item.PresentedDate, nullableTime(item.CheckDate), nullable(item.MICRLine),
		nullable(item.PayeeName), item.ItemType, item.Status, item.RiskLevel,
		item.Priority, nullable(item.AccountType), contextJSON, flagsJSON,
		nullable(item.QueueID), nullableTime(item.SLADueAt),
		item.RequiresDualControl, nullable(item.DualControlReason),
		nullable(item.PolicyVersionID),
	).Scan(&item.ID, &inserted)
	if err != nil {
		return false, errs.ErrDatabase.WithCause(fmt.Errorf("upsert check item: %w", err))
	}
	return inserted, nil
}

// GetByID loads one item inside the tenant scope.
func (r *Repository) GetByID(ctx context.Context, tc tenant.Context, id string) (*CheckItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM check_items WHERE tenant_id = $1 AND id = $2`, itemColumns)
	item, err := scanItem(r.scope(tc).QueryRowContext(ctx, query, tc.TenantID, id))
	if err != nil {
		if errIsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

// GetForUpdateTx locks one item row for a decision transaction.
func (r *Repository) GetForUpdateTx(ctx context.Context, tx *sql.Tx, tc tenant.Context, id string) (*CheckItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM check_items WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, itemColumns)
	item, err := scanItem(tenant.NewScope(tx, tc, true).QueryRowContext(ctx, query, tc.TenantID, id))
	if err != nil {
		if errIsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func errIsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// filterClause builds the WHERE predicate shared by List and Adjacent.
func filterClause(tc tenant.Context, params ListParams) (string, []interface{}) {
	clauses := []string{"tenant_id = $1"}
	args := []interface{}{tc.TenantID}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if len(params.Statuses) > 0 {
		add("status = ANY(string_to_array($%d, ','))", strings.Join(params.Statuses, ","))
	}
	if len(params.RiskLevels) > 0 {
		add("risk_level = ANY(string_to_array($%d, ','))", strings.Join(params.RiskLevels, ","))
	}
	if params.AmountMin != nil {
		add("amount >= $%d", *params.AmountMin)
	}
	if params.AmountMax != nil {
		add("amount <= $%d", *params.AmountMax)
	}
	if params.QueueID != "" {
		add("queue_id = $%d", params.QueueID)
	}
	if params.AssignedTo != "" {
		args = append(args, params.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("(assigned_reviewer_id = $%d OR assigned_approver_id = $%d)", len(args), len(args)))
	}
	if params.HasAIFlags != nil {
		if *params.HasAIFlags {
			clauses = append(clauses, "ai_recommendation IS NOT NULL AND ai_recommendation <> 'likely_legitimate'")
		} else {
			clauses = append(clauses, "(ai_recommendation IS NULL OR ai_recommendation = 'likely_legitimate')")
		}
	}
	if params.SLABreached != nil {
		add("sla_breached = $%d", *params.SLABreached)
	}
	if params.DateFrom != nil {
		add("presented_date >= $%d", *params.DateFrom)
	}
	if params.DateTo != nil {
		add("presented_date <= $%d", *params.DateTo)
	}
	return strings.Join(clauses, " AND "), args
}

// List returns one filtered page.
func (r *Repository) List(ctx context.Context, tc tenant.Context, params ListParams) (*ListResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 25
	}

	where, args := filterClause(tc, params)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM check_items WHERE %s", where)
	if err := r.scope(tc).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("count check items: %w", err))
	}

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	query := fmt.Sprintf(`
		SELECT %s FROM check_items
		WHERE %s
		ORDER BY priority DESC, presented_date ASC, id ASC
		LIMIT $%d OFFSET $%d`,
		itemColumns, where, len(args)-1, len(args))

	rows, err := r.scope(tc).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("list check items: %w", err))
	}
	defer rows.Close()

	items := []*CheckItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	return &ListResult{Items: items, Total: total, Page: params.Page, PageSize: params.PageSize}, nil
}

// Adjacent returns the predecessor and successor of one item under the
// caller's filter, ordered like List.
func (r *Repository) Adjacent(ctx context.Context, tc tenant.Context, itemID string, params ListParams) (*AdjacentResult, error) {
	where, args := filterClause(tc, params)
	args = append(args, itemID)

	query := fmt.Sprintf(`
		SELECT prev_id, next_id FROM (
			SELECT id,
			       LAG(id) OVER w AS prev_id,
			       LEAD(id) OVER w AS next_id
			FROM check_items
			WHERE %s
			WINDOW w AS (ORDER BY priority DESC, presented_date ASC, id ASC)
		) ordered
		WHERE id = $%d`, where, len(args))

	var prev, next sql.NullString
	err := r.scope(tc).QueryRowContext(ctx, query, args...).Scan(&prev, &next)
	if err == sql.ErrNoRows {
		// Item exists outside the filter or not at all; no neighbors.
		return &AdjacentResult{}, nil
	}
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("adjacent check items: %w", err))
	}
	return &AdjacentResult{PrevID: prev.String, NextID: next.String}, nil
}

// CountDuplicateChecks counts prior items on the same account with the
// same check number, excluding the item being ingested.
func (r *Repository) CountDuplicateChecks(ctx context.Context, tenantID, accountID, checkNumber, externalItemID string) (int, error) {
	var count int
	err := r.scope(tenant.System(tenantID)).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM check_items
		WHERE tenant_id = $1 AND account_id = $2 AND check_number = $3
		  AND external_item_id <> $4`,
		tenantID, accountID, checkNumber, externalItemID,
	).Scan(&count)
	if err != nil {
		return 0, errs.ErrDatabase.WithCause(fmt.Errorf("count duplicate checks: %w", err))
	}
	return count, nil
}

// UpdateAssignment sets reviewer, approver, or queue. Empty strings leave
// the field untouched.
func (r *Repository) UpdateAssignment(ctx context.Context, tc tenant.Context, itemID, reviewerID, approverID, queueID string) error {
	res, err := r.scope(tc).ExecContext(ctx, `
		UPDATE check_items SET
			assigned_reviewer_id = COALESCE(NULLIF($3, ''), assigned_reviewer_id),
			assigned_approver_id = COALESCE(NULLIF($4, ''), assigned_approver_id),
			queue_id = COALESCE(NULLIF($5, ''), queue_id),
			updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tc.TenantID, itemID, reviewerID, approverID, queueID,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("assign check item: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateStatus is the admin path for direct status writes. The decision
// state machine validates the transition before calling it.
func (r *Repository) UpdateStatus(ctx context.Context, tc tenant.Context, itemID, status string) error {
	res, err := r.scope(tc).ExecContext(ctx, `
		UPDATE check_items SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tc.TenantID, itemID, status,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("update check item status: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateAdvisory copies the latest analysis summary onto the item.
func (r *Repository) UpdateAdvisory(ctx context.Context, tc tenant.Context, itemID, analysisID, recommendation, explanation string, confidence float64) error {
	_, err := r.scope(tc).ExecContext(ctx, `
		UPDATE check_items SET
			ai_analysis_id = $3, ai_recommendation = $4,
			ai_explanation = $5, ai_confidence = $6, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tc.TenantID, itemID, analysisID, recommendation, explanation, confidence,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("update advisory fields: %w", err))
	}
	return nil
}

// MarkSLABreaches flags items past their SLA due time. Returns the number
// of newly breached items.
func (r *Repository) MarkSLABreaches(ctx context.Context, tc tenant.Context, now time.Time) ([]string, error) {
	rows, err := r.scope(tc).QueryContext(ctx, `
		UPDATE check_items SET sla_breached = TRUE, updated_at = NOW()
		WHERE tenant_id = $1 AND sla_breached = FALSE
		  AND sla_due_at IS NOT NULL AND sla_due_at < $2
		  AND status IN ('new', 'in_review', 'pending_dual_control', 'escalated')
		RETURNING id`,
		tc.TenantID, now,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("mark sla breaches: %w", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.ErrDatabase.WithCause(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StartItemView opens an append-only view session.
func (r *Repository) StartItemView(ctx context.Context, tc tenant.Context, itemID string) (*ItemView, error) {
	view := &ItemView{
		ID:            uuid.New().String(),
		TenantID:      tc.TenantID,
		CheckItemID:   itemID,
		UserID:        tc.UserID,
		ViewStartedAt: time.Now().UTC(),
	}
	_, err := r.scope(tc).ExecContext(ctx, `
		INSERT INTO item_views (id, tenant_id, check_item_id, user_id, view_started_at,
		                        image_viewed, image_zoomed)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE)`,
		view.ID, view.TenantID, view.CheckItemID, view.UserID, view.ViewStartedAt,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("start item view: %w", err))
	}
	return view, nil
}

// EndItemView closes a view session and records interaction flags. A
// closed session stays closed.
func (r *Repository) EndItemView(ctx context.Context, tc tenant.Context, viewID string, imageViewed, imageZoomed bool) error {
	res, err := r.scope(tc).ExecContext(ctx, `
		UPDATE item_views SET view_ended_at = NOW(),
			image_viewed = image_viewed OR $3,
			image_zoomed = image_zoomed OR $4
		WHERE tenant_id = $1 AND id = $2 AND view_ended_at IS NULL`,
		tc.TenantID, viewID, imageViewed, imageZoomed,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("end item view: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
