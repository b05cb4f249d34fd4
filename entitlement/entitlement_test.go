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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcheck/platform/auth"
	"clearcheck/platform/tenant"
)

func f(v float64) *float64 { return &v }

func item(amount float64) ItemScope {
	return ItemScope{
		TenantID:    "t1",
		Amount:      amount,
		AccountType: "checking",
		QueueID:     "q1",
		RiskLevel:   "medium",
	}
}

func TestEvaluateScopeOrder(t *testing.T) {
	tests := []struct {
		name   string
		ent    Entitlement
		item   ItemScope
		allow  bool
		reason string
	}{
		{
			name:  "unbounded entitlement allows anything",
			ent:   Entitlement{ID: "e1", TenantID: "t1"},
			item:  item(1000000),
			allow: true,
		},
		{
			name:   "amount above max",
			ent:    Entitlement{TenantID: "t1", MaxAmount: f(10000)},
			item:   item(12000),
			allow:  false,
			reason: "Amount 12000.00 exceeds entitlement maximum 10000.00",
		},
		{
			name:   "amount below min",
			ent:    Entitlement{TenantID: "t1", MinAmount: f(500)},
			item:   item(100),
			allow:  false,
			reason: "Amount 100.00 below entitlement minimum 500.00",
		},
		{
			name:  "amount bounds inclusive",
			ent:   Entitlement{TenantID: "t1", MinAmount: f(100), MaxAmount: f(100)},
			item:  item(100),
			allow: true,
		},
		{
			name:   "account type not covered",
			ent:    Entitlement{TenantID: "t1", AllowedAccountTypes: []string{"savings"}},
			item:   item(100),
			allow:  false,
			reason: `Account type "checking" not covered`,
		},
		{
			name:   "queue not covered",
			ent:    Entitlement{TenantID: "t1", AllowedQueueIDs: []string{"q9"}},
			item:   item(100),
			allow:  false,
			reason: "Queue not covered",
		},
		{
			name:   "risk level not covered",
			ent:    Entitlement{TenantID: "t1", AllowedRiskLevels: []string{"low"}},
			item:   item(100),
			allow:  false,
			reason: `Risk level "medium" not covered`,
		},
		{
			name:   "foreign tenant denies",
			ent:    Entitlement{TenantID: "t2"},
			item:   item(100),
			allow:  false,
			reason: "Entitlement belongs to a different tenant",
		},
		{
			name:  "all scopes matching",
			ent:   Entitlement{TenantID: "t1", MaxAmount: f(5000), AllowedAccountTypes: []string{"checking"}, AllowedQueueIDs: []string{"q1"}, AllowedRiskLevels: []string{"low", "medium"}},
			item:  item(4999.99),
			allow: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := evaluate(&tt.ent, tt.item)
			assert.Equal(t, tt.allow, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestResolveFirstAllowWins(t *testing.T) {
	candidates := []*Entitlement{
		{ID: "e1", TenantID: "t1", MaxAmount: f(100)},
		{ID: "e2", TenantID: "t1", MaxAmount: f(50000)},
		{ID: "e3", TenantID: "t1"},
	}
	result := resolve(candidates, item(10000))
	assert.True(t, result.Allowed)
	assert.Equal(t, "e2", result.EntitlementID)
}

func TestResolveCollectsDistinctDenialReasons(t *testing.T) {
	candidates := []*Entitlement{
		{ID: "e1", TenantID: "t1", MaxAmount: f(100)},
		{ID: "e2", TenantID: "t1", MaxAmount: f(100)},
		{ID: "e3", TenantID: "t1", AllowedRiskLevels: []string{"low"}},
	}
	result := resolve(candidates, item(10000))
	require.False(t, result.Allowed)
	assert.Equal(t, []string{
		"Amount 10000.00 exceeds entitlement maximum 100.00",
		`Risk level "medium" not covered`,
	}, result.Reasons)
}

func TestResolveEmptyDeniesWithStandardReason(t *testing.T) {
	result := resolve(nil, item(100))
	require.False(t, result.Allowed)
	assert.Equal(t, []string{"No approval entitlement found"}, result.Reasons)
}

func entitlementColumns() []string {
	return []string{
		"id", "tenant_id", "user_id", "role_id", "entitlement_type",
		"is_active", "min_amount", "max_amount",
		"allowed_account_types", "allowed_queue_ids",
		"allowed_risk_levels", "allowed_business_lines",
		"effective_from", "effective_until", "created_at",
	}
}

func TestCheckApprovalLoadsDirectAndRoleGrants(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT e.id, .* FROM approval_entitlements").
		WithArgs("t1", "approve", "u2").
		WillReturnRows(sqlmock.NewRows(entitlementColumns()).
			AddRow("e1", "t1", "u2", nil, "approve", true, nil, 25000.0,
				`["checking","savings"]`, nil, nil, nil, now.Add(-time.Hour), nil, now.Add(-time.Hour)))

	svc := NewService(db)
	user := &auth.User{ID: "u2", TenantID: "t1"}
	result, err := svc.CheckApproval(context.Background(), tenant.Context{TenantID: "t1"}, user, item(10000))
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Equal(t, "e1", result.EntitlementID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckReviewFallsBackToPermission(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT e.id, .* FROM approval_entitlements").
		WillReturnRows(sqlmock.NewRows(entitlementColumns()))

	svc := NewService(db)
	user := &auth.User{ID: "u1", TenantID: "t1", Permissions: []string{ReviewPermission}}
	result, err := svc.CheckReview(context.Background(), tenant.Context{TenantID: "t1"}, user, item(100))
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	// Without the permission the fallback does not apply.
	mock.ExpectQuery("SELECT e.id, .* FROM approval_entitlements").
		WillReturnRows(sqlmock.NewRows(entitlementColumns()))
	bare := &auth.User{ID: "u3", TenantID: "t1"}
	result, err = svc.CheckReview(context.Background(), tenant.Context{TenantID: "t1"}, bare, item(100))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestCheckOverrideRequiresExplicitEntitlement(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT e.id, .* FROM approval_entitlements").
		WithArgs("t1", "override", "u1").
		WillReturnRows(sqlmock.NewRows(entitlementColumns()))

	svc := NewService(db)
	// Even a user holding every permission gets no override fallback.
	user := &auth.User{ID: "u1", TenantID: "t1", Permissions: []string{ReviewPermission, "check_item:decide"}}
	result, err := svc.CheckOverride(context.Background(), tenant.Context{TenantID: "t1"}, user, item(100))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}
