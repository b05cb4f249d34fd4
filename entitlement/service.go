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

package entitlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"clearcheck/platform/auth"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

// ReviewPermission is the fallback grant for the review path. Approval and
// override always require an explicit entitlement.
const ReviewPermission = "check_item:review"

// Service resolves and checks entitlements against items.
type Service struct {
	db  *sql.DB
	log *logger.Logger
}

// NewService creates the entitlement service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, log: logger.New("entitlement")}
}

// CheckApproval reports whether the user may finalize an approval decision
// on the item.
func (s *Service) CheckApproval(ctx context.Context, tc tenant.Context, user *auth.User, item ItemScope) (*CheckResult, error) {
	candidates, err := s.activeEntitlements(ctx, tc, user.ID, TypeApprove)
	if err != nil {
		return nil, err
	}
	result := resolve(candidates, item)
	s.logDenied(tc, user.ID, TypeApprove, result)
	return result, nil
}

// CheckReview reports whether the user may record a review recommendation.
// A user with the review permission but no explicit entitlement is allowed
// by default.
func (s *Service) CheckReview(ctx context.Context, tc tenant.Context, user *auth.User, item ItemScope) (*CheckResult, error) {
	candidates, err := s.activeEntitlements(ctx, tc, user.ID, TypeReview)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		if user.HasPermission(ReviewPermission) {
			return &CheckResult{Allowed: true}, nil
		}
		return &CheckResult{Allowed: false, Reasons: []string{"No review entitlement or permission"}}, nil
	}
	result := resolve(candidates, item)
	s.logDenied(tc, user.ID, TypeReview, result)
	return result, nil
}

// CheckOverride reports whether the user may override a finalized decision.
func (s *Service) CheckOverride(ctx context.Context, tc tenant.Context, user *auth.User, item ItemScope) (*CheckResult, error) {
	candidates, err := s.activeEntitlements(ctx, tc, user.ID, TypeOverride)
	if err != nil {
		return nil, err
	}
	result := resolve(candidates, item)
	s.logDenied(tc, user.ID, TypeOverride, result)
	return result, nil
}

func (s *Service) logDenied(tc tenant.Context, userID string, typ Type, result *CheckResult) {
	if result.Allowed {
		return
	}
	s.log.Info(tc.TenantID, tc.RequestID, "Entitlement check denied", map[string]interface{}{
		"user_id":          userID,
		"entitlement_type": string(typ),
		"reasons":          result.Reasons,
	})
}

// activeEntitlements loads the user's direct and role-inherited grants of
// one type that are active and inside their effective window.
func (s *Service) activeEntitlements(ctx context.Context, tc tenant.Context, userID string, typ Type) ([]*Entitlement, error) {
	query := `
		SELECT e.id, e.tenant_id, e.user_id, e.role_id, e.entitlement_type,
		       e.is_active, e.min_amount, e.max_amount,
		       e.allowed_account_types, e.allowed_queue_ids,
		       e.allowed_risk_levels, e.allowed_business_lines,
		       e.effective_from, e.effective_until, e.created_at
		FROM approval_entitlements e
		WHERE e.tenant_id = $1
		  AND e.entitlement_type = $2
		  AND e.is_active = TRUE
		  AND e.effective_from <= NOW()
		  AND (e.effective_until IS NULL OR e.effective_until > NOW())
		  AND (e.user_id = $3 OR e.role_id IN (SELECT role_id FROM user_roles WHERE user_id = $3))
		ORDER BY e.created_at ASC`

	rows, err := tenant.NewScope(s.db, tc, true).QueryContext(ctx, query, tc.TenantID, string(typ), userID)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("load entitlements: %w", err))
	}
	defer rows.Close()

	var out []*Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	return out, nil
}

func scanEntitlement(rows *sql.Rows) (*Entitlement, error) {
	var (
		e                    Entitlement
		userID, roleID       sql.NullString
		minAmount, maxAmount sql.NullFloat64
		accountTypes, queues sql.NullString
		risks, lines         sql.NullString
		until                sql.NullTime
		typ                  string
	)
	err := rows.Scan(
		&e.ID, &e.TenantID, &userID, &roleID, &typ,
		&e.IsActive, &minAmount, &maxAmount,
		&accountTypes, &queues, &risks, &lines,
		&e.EffectiveFrom, &until, &e.CreatedAt,
	)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("scan entitlement: %w", err))
	}

	e.UserID = userID.String
	e.RoleID = roleID.String
	e.Type = Type(typ)
	if minAmount.Valid {
		v := minAmount.Float64
		e.MinAmount = &v
	}
	if maxAmount.Valid {
		v := maxAmount.Float64
		e.MaxAmount = &v
	}
	if until.Valid {
		t := until.Time
		e.EffectiveUntil = &t
	}

	for _, col := range []struct {
		raw sql.NullString
		dst *[]string
	}{
		{accountTypes, &e.AllowedAccountTypes},
		{queues, &e.AllowedQueueIDs},
		{risks, &e.AllowedRiskLevels},
		{lines, &e.AllowedBusinessLines},
	} {
		if col.raw.Valid && col.raw.String != "" {
			if err := json.Unmarshal([]byte(col.raw.String), col.dst); err != nil {
				return nil, errs.ErrInternal.WithCause(fmt.Errorf("decode entitlement scope: %w", err))
			}
		}
	}
	return &e, nil
}
