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

package policy

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

// Repository persists policies, versions, and rules.
type Repository struct {
	db *sql.DB
}

// NewRepository creates the policy repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// scope routes a statement through the tenant isolation guard. Versions
// and rules carry no tenant column; their isolation rides the join to
// policies.
func (r *Repository) scope(tc tenant.Context) *tenant.Scope {
	return tenant.NewScope(r.db, tc, true)
}

// ActiveVersion selects the current version of the ACTIVE policy that
// applies to the account type: applies_to_account_types contains the type
// or is empty, effective date reached, default policies preferred, newest
// effective date breaking ties. Returns (nil, "", nil) when no policy
// applies.
func (r *Repository) ActiveVersion(ctx context.Context, tc tenant.Context, accountType string) (*Version, string, error) {
	query := `
		SELECT v.id, v.policy_id, v.version_number, v.effective_date, v.is_current, v.created_at
		FROM policy_versions v
		JOIN policies p ON p.id = v.policy_id
		WHERE p.tenant_id = $1
		  AND p.status = 'ACTIVE'
		  AND v.is_current = TRUE
		  AND v.effective_date <= NOW()
		  AND (p.applies_to_account_types IS NULL
		       OR p.applies_to_account_types = '[]'::jsonb
		       OR p.applies_to_account_types @> jsonb_build_array($2::text))
		ORDER BY p.is_default DESC, v.effective_date DESC
		LIMIT 1`

	var v Version
	err := r.scope(tc).QueryRowContext(ctx, query, tc.TenantID, accountType).Scan(
		&v.ID, &v.PolicyID, &v.VersionNumber, &v.EffectiveDate, &v.IsCurrent, &v.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", errs.ErrDatabase.WithCause(fmt.Errorf("select active policy version: %w", err))
	}

	rules, err := r.versionRules(ctx, v.ID)
	if err != nil {
		return nil, "", err
	}
	v.Rules = rules
	return &v, v.PolicyID, nil
}

// versionRules loads a version's enabled rules in evaluation order.
func (r *Repository) versionRules(ctx context.Context, versionID string) ([]*Rule, error) {
	query := `
		SELECT id, version_id, name, rule_type, priority, is_enabled,
		       conditions, actions, amount_threshold, created_at
		FROM policy_rules
		WHERE version_id = $1 AND is_enabled = TRUE
		ORDER BY priority DESC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("load policy rules: %w", err))
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	return rules, nil
}

func scanRule(rows *sql.Rows) (*Rule, error) {
	var (
		rule                     Rule
		conditionsJSON, actsJSON []byte
		threshold                sql.NullFloat64
	)
	err := rows.Scan(
		&rule.ID, &rule.VersionID, &rule.Name, &rule.RuleType, &rule.Priority,
		&rule.IsEnabled, &conditionsJSON, &actsJSON, &threshold, &rule.CreatedAt,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("scan policy rule: %w", err))
	}
	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
			return nil, errs.ErrInternal.WithCause(fmt.Errorf("decode rule conditions: %w", err))
		}
	}
	if len(actsJSON) > 0 {
		if err := json.Unmarshal(actsJSON, &rule.Actions); err != nil {
			return nil, errs.ErrInternal.WithCause(fmt.Errorf("decode rule actions: %w", err))
		}
	}
	if threshold.Valid {
		v := threshold.Float64
		rule.AmountThreshold = &v
	}
	return &rule, nil
}

// List returns the tenant's policies with their current version metadata.
func (r *Repository) List(ctx context.Context, tc tenant.Context) ([]*Policy, error) {
	query := `
		SELECT p.id, p.tenant_id, p.name, p.description, p.status, p.is_default,
		       p.applies_to_account_types, p.created_at, p.updated_at
		FROM policies p
		WHERE p.tenant_id = $1 AND p.status <> 'ARCHIVED'
		ORDER BY p.name`

	rows, err := r.scope(tc).QueryContext(ctx, query, tc.TenantID)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("list policies: %w", err))
	}
	defer rows.Close()

	var policies []*Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	return policies, nil
}

// Get fetches one policy with its current version and rules.
func (r *Repository) Get(ctx context.Context, tc tenant.Context, id string) (*Policy, error) {
	query := `
		SELECT p.id, p.tenant_id, p.name, p.description, p.status, p.is_default,
		       p.applies_to_account_types, p.created_at, p.updated_at
		FROM policies p
		WHERE p.tenant_id = $1 AND p.id = $2`

	rows, err := r.scope(tc).QueryContext(ctx, query, tc.TenantID, id)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("get policy: %w", err))
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	p, err := scanPolicy(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	versionQuery := `
		SELECT id, policy_id, version_number, effective_date, is_current, created_at
		FROM policy_versions
		WHERE policy_id = $1 AND is_current = TRUE`
	var v Version
	err = r.db.QueryRowContext(ctx, versionQuery, p.ID).Scan(
		&v.ID, &v.PolicyID, &v.VersionNumber, &v.EffectiveDate, &v.IsCurrent, &v.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return p, nil
	}
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("get current version: %w", err))
	}
	v.Rules, err = r.versionRules(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	p.CurrentVersion = &v
	return p, nil
}

func scanPolicy(rows *sql.Rows) (*Policy, error) {
	var (
		p            Policy
		description  sql.NullString
		accountTypes []byte
	)
	err := rows.Scan(
		&p.ID, &p.TenantID, &p.Name, &description, &p.Status, &p.IsDefault,
		&accountTypes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("scan policy: %w", err))
	}
	p.Description = description.String
	if len(accountTypes) > 0 {
		if err := json.Unmarshal(accountTypes, &p.AppliesToAccountTypes); err != nil {
			return nil, errs.ErrInternal.WithCause(fmt.Errorf("decode account types: %w", err))
		}
	}
	return &p, nil
}

// Create inserts a policy with its first version and rules in one
// transaction. The policy starts in DRAFT; Activate makes it live.
func (r *Repository) Create(ctx context.Context, tc tenant.Context, p *Policy, rules []*Rule) (*Policy, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	p.ID = uuid.New().String()
	p.TenantID = tc.TenantID
	p.Status = StatusDraft
	p.CreatedAt = now
	p.UpdatedAt = now

	accountTypes, err := json.Marshal(p.AppliesToAccountTypes)
	if err != nil {
		return nil, errs.ErrInternal.WithCause(err)
	}

	_, err = tenant.NewScope(tx, tc, true).ExecContext(ctx, `
		INSERT INTO policies (id, tenant_id, name, description, status, is_default,
		                      applies_to_account_types, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.TenantID, p.Name, p.Description, p.Status, p.IsDefault,
		accountTypes, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("insert policy: %w", err))
	}

	version := &Version{
		ID:            uuid.New().String(),
		PolicyID:      p.ID,
		VersionNumber: 1,
		EffectiveDate: now,
		IsCurrent:     true,
		CreatedBy:     tc.UserID,
		CreatedAt:     now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO policy_versions (id, policy_id, version_number, effective_date,
		                             is_current, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		version.ID, version.PolicyID, version.VersionNumber, version.EffectiveDate,
		version.IsCurrent, version.CreatedBy, version.CreatedAt,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("insert policy version: %w", err))
	}

	if err := insertRulesTx(ctx, tx, version.ID, rules, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	version.Rules = rules
	p.CurrentVersion = version
	return p, nil
}

// NewVersion appends a version carrying a fresh rule set. The new version
// becomes current only when activated.
func (r *Repository) NewVersion(ctx context.Context, tc tenant.Context, policyID string, effectiveDate time.Time, rules []*Rule) (*Version, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	defer tx.Rollback()

	var nextNumber int
	err = tenant.NewScope(tx, tc, true).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(v.version_number), 0) + 1
		FROM policy_versions v
		JOIN policies p ON p.id = v.policy_id
		WHERE p.tenant_id = $1 AND v.policy_id = $2`,
		tc.TenantID, policyID,
	).Scan(&nextNumber)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("next version number: %w", err))
	}

	now := time.Now().UTC()
	version := &Version{
		ID:            uuid.New().String(),
		PolicyID:      policyID,
		VersionNumber: nextNumber,
		EffectiveDate: effectiveDate,
		IsCurrent:     false,
		CreatedBy:     tc.UserID,
		CreatedAt:     now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO policy_versions (id, policy_id, version_number, effective_date,
		                             is_current, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		version.ID, version.PolicyID, version.VersionNumber, version.EffectiveDate,
		version.IsCurrent, version.CreatedBy, version.CreatedAt,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("insert policy version: %w", err))
	}

	if err := insertRulesTx(ctx, tx, version.ID, rules, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	version.Rules = rules
	return version, nil
}

func insertRulesTx(ctx context.Context, tx *sql.Tx, versionID string, rules []*Rule, now time.Time) error {
	for i, rule := range rules {
		rule.ID = uuid.New().String()
		rule.VersionID = versionID
		// Offset creation times so (priority desc, created_at asc) stays a
		// total order matching submission order.
		rule.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		if !rule.IsEnabled {
			rule.IsEnabled = true
		}

		conditions, err := json.Marshal(rule.Conditions)
		if err != nil {
			return errs.ErrInternal.WithCause(err)
		}
		actions, err := json.Marshal(rule.Actions)
		if err != nil {
			return errs.ErrInternal.WithCause(err)
		}

		var threshold interface{}
		if rule.AmountThreshold != nil {
			threshold = *rule.AmountThreshold
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO policy_rules (id, version_id, name, rule_type, priority,
			                          is_enabled, conditions, actions, amount_threshold, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rule.ID, rule.VersionID, rule.Name, rule.RuleType, rule.Priority,
			rule.IsEnabled, conditions, actions, threshold, rule.CreatedAt,
		)
		if err != nil {
			return errs.ErrDatabase.WithCause(fmt.Errorf("insert policy rule: %w", err))
		}
	}
	return nil
}

// Activate makes one version current and its policy ACTIVE. All sibling
// versions lose is_current in the same transaction, keeping the
// one-current-per-policy invariant.
func (r *Repository) Activate(ctx context.Context, tc tenant.Context, policyID, versionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.ErrDatabase.WithCause(err)
	}
	defer tx.Rollback()

	res, err := tenant.NewScope(tx, tc, true).ExecContext(ctx, `
		UPDATE policy_versions SET is_current = FALSE
		WHERE policy_id = $1
		  AND policy_id IN (SELECT id FROM policies WHERE tenant_id = $2)`,
		policyID, tc.TenantID,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("clear current versions: %w", err))
	}
	if _, err := res.RowsAffected(); err != nil {
		return errs.ErrDatabase.WithCause(err)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE policy_versions SET is_current = TRUE
		WHERE id = $1 AND policy_id = $2`,
		versionID, policyID,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("set current version: %w", err))
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return errs.ErrNotFound.WithMessage("Policy version not found")
	}

	_, err = tenant.NewScope(tx, tc, true).ExecContext(ctx, `
		UPDATE policies SET status = 'ACTIVE', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tc.TenantID, policyID,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("activate policy: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return errs.ErrDatabase.WithCause(err)
	}
	return nil
}

// Archive retires a policy. Versions and rules stay for decisions that
// reference them; the audit chain records the delete.
func (r *Repository) Archive(ctx context.Context, tc tenant.Context, policyID string) error {
	res, err := r.scope(tc).ExecContext(ctx, `
		UPDATE policies SET status = 'ARCHIVED', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tc.TenantID, policyID,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("archive policy: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}
