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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcheck/platform/tenant"
)

func f(v float64) *float64 { return &v }

func baseFacts() Facts {
	return Facts{
		Amount:      1000,
		Currency:    "USD",
		ItemType:    "check",
		AccountType: "checking",
	}
}

func singleRuleVersion(conditions []Condition, actions []Action) *Version {
	return &Version{
		ID: "v1",
		Rules: []*Rule{
			{
				ID:         "r1",
				Name:       "rule-1",
				RuleType:   RuleTypeThreshold,
				Priority:   10,
				IsEnabled:  true,
				Conditions: conditions,
				Actions:    actions,
			},
		},
	}
}

func TestEvaluateConditionOperators(t *testing.T) {
	facts := baseFacts()
	facts.AvgCheckAmount30d = f(250)
	facts.CheckNumber = "1042"

	tests := []struct {
		name  string
		cond  Condition
		match bool
	}{
		{"equals numeric", Condition{Field: "amount", Operator: "equals", Value: 1000.0}, true},
		{"equals int literal", Condition{Field: "amount", Operator: "equals", Value: 1000}, true},
		{"equals string", Condition{Field: "currency", Operator: "equals", Value: "USD"}, true},
		{"not_equals", Condition{Field: "currency", Operator: "not_equals", Value: "EUR"}, true},
		{"greater_than false on equal", Condition{Field: "amount", Operator: "greater_than", Value: 1000.0}, false},
		{"less_than", Condition{Field: "amount", Operator: "less_than", Value: 1001.0}, true},
		{"greater_or_equal on equal", Condition{Field: "amount", Operator: "greater_or_equal", Value: 1000.0}, true},
		{"less_or_equal on equal", Condition{Field: "amount", Operator: "less_or_equal", Value: 1000.0}, true},
		{"in", Condition{Field: "account_type", Operator: "in", Value: []interface{}{"checking", "savings"}}, true},
		{"in miss", Condition{Field: "account_type", Operator: "in", Value: []interface{}{"savings"}}, false},
		{"not_in", Condition{Field: "account_type", Operator: "not_in", Value: []interface{}{"savings"}}, true},
		{"contains case-insensitive", Condition{Field: "currency", Operator: "contains", Value: "us"}, true},
		{"between inclusive lower", Condition{Field: "amount", Operator: "between", Value: []interface{}{1000.0, 2000.0}}, true},
		{"between inclusive upper", Condition{Field: "amount", Operator: "between", Value: []interface{}{500.0, 1000.0}}, true},
		{"between outside", Condition{Field: "amount", Operator: "between", Value: []interface{}{1001.0, 2000.0}}, false},
		{"between malformed bounds", Condition{Field: "amount", Operator: "between", Value: []interface{}{1000.0}}, false},
		{"ratio computed", Condition{Field: "amount_vs_avg_ratio", Operator: "greater_than", Value: 3.0}, true},
		{"unknown operator", Condition{Field: "amount", Operator: "almost_equals", Value: 1000.0}, false},
		{"unknown field", Condition{Field: "moon_phase", Operator: "equals", Value: "full"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, evaluateCondition(tt.cond, facts))
		})
	}
}

func TestNullRatioConditionsAreFalse(t *testing.T) {
	facts := baseFacts()
	// No history supplied: every ratio denominator is absent.
	conds := []Condition{
		{Field: "amount_vs_avg_ratio", Operator: "less_than", Value: 1000000.0},
		{Field: "amount_vs_max_ratio", Operator: "greater_than", Value: 0.0},
		{Field: "amount_vs_balance_ratio", Operator: "not_equals", Value: 1.0},
		{Field: "velocity_7d_ratio", Operator: "equals", Value: 0.0},
	}
	for _, cond := range conds {
		assert.False(t, evaluateCondition(cond, facts), cond.Field)
	}

	// Zero denominator is NULL too, not infinity.
	facts.CurrentBalance = f(0)
	cond := Condition{Field: "amount_vs_balance_ratio", Operator: "greater_than", Value: 0.0}
	assert.False(t, evaluateCondition(cond, facts))
}

func TestAbsentOptionalFactIsFalse(t *testing.T) {
	facts := baseFacts()
	cond := Condition{Field: "return_count_90d", Operator: "less_than", Value: 100.0}
	assert.False(t, evaluateCondition(cond, facts))

	facts.ReturnCount90d = f(2)
	assert.True(t, evaluateCondition(cond, facts))
}

func TestRuleConditionsAreConjunctive(t *testing.T) {
	version := singleRuleVersion(
		[]Condition{
			{Field: "amount", Operator: "greater_than", Value: 500.0},
			{Field: "currency", Operator: "equals", Value: "EUR"},
		},
		[]Action{{Action: "require_dual_control"}},
	)
	result := EvaluateVersion(version, baseFacts())
	assert.Empty(t, result.RulesTriggered)
	assert.False(t, result.RequiresDualControl)
}

func TestRulesEvaluateIndependently(t *testing.T) {
	version := &Version{
		ID: "v1",
		Rules: []*Rule{
			{ID: "r1", Name: "misses", Priority: 100, IsEnabled: true,
				Conditions: []Condition{{Field: "currency", Operator: "equals", Value: "EUR"}},
				Actions:    []Action{{Action: "set_risk_level", Params: map[string]interface{}{"level": "critical"}}}},
			{ID: "r2", Name: "hits", Priority: 1, IsEnabled: true,
				Conditions: []Condition{{Field: "amount", Operator: "greater_than", Value: 500.0}},
				Actions:    []Action{{Action: "set_risk_level", Params: map[string]interface{}{"level": "medium"}}}},
			{ID: "r3", Name: "disabled", Priority: 50, IsEnabled: false,
				Actions: []Action{{Action: "require_dual_control"}}},
		},
	}
	result := EvaluateVersion(version, baseFacts())
	assert.Equal(t, []string{"hits"}, result.RulesTriggered)
	assert.Equal(t, RiskMedium, result.RiskLevel)
	assert.False(t, result.RequiresDualControl)
}

func TestRiskLevelHighestWins(t *testing.T) {
	version := &Version{
		ID: "v1",
		Rules: []*Rule{
			{ID: "r1", Name: "high", Priority: 10, IsEnabled: true,
				Actions: []Action{{Action: "set_risk_level", Params: map[string]interface{}{"level": "high"}}}},
			{ID: "r2", Name: "medium-later", Priority: 1, IsEnabled: true,
				Actions: []Action{{Action: "set_risk_level", Params: map[string]interface{}{"level": "medium"}}}},
		},
	}
	result := EvaluateVersion(version, baseFacts())
	assert.Equal(t, RiskHigh, result.RiskLevel)
}

func TestRoutingLastWriterWinsUnderPriorityOrder(t *testing.T) {
	now := time.Now()
	version := &Version{
		ID: "v1",
		Rules: []*Rule{
			// Lower priority runs later and wins the queue.
			{ID: "r2", Name: "fallback-queue", Priority: 1, IsEnabled: true, CreatedAt: now,
				Actions: []Action{{Action: "route_to_queue", Params: map[string]interface{}{"queue_id": "q-review"}}}},
			{ID: "r1", Name: "first-queue", Priority: 100, IsEnabled: true, CreatedAt: now,
				Actions: []Action{{Action: "route_to_queue", Params: map[string]interface{}{"queue_id": "q-fraud"}}}},
		},
	}
	result := EvaluateVersion(version, baseFacts())
	assert.Equal(t, []string{"first-queue", "fallback-queue"}, result.RulesTriggered)
	assert.Equal(t, "q-review", result.RoutingQueueID)
}

func TestEqualPriorityOrdersByCreatedAt(t *testing.T) {
	base := time.Now()
	version := &Version{
		ID: "v1",
		Rules: []*Rule{
			{ID: "r2", Name: "second", Priority: 10, IsEnabled: true, CreatedAt: base.Add(time.Second)},
			{ID: "r1", Name: "first", Priority: 10, IsEnabled: true, CreatedAt: base},
		},
	}
	result := EvaluateVersion(version, baseFacts())
	assert.Equal(t, []string{"first", "second"}, result.RulesTriggered)
}

func TestAddFlagDeduplicates(t *testing.T) {
	version := &Version{
		ID: "v1",
		Rules: []*Rule{
			{ID: "r1", Name: "a", Priority: 2, IsEnabled: true,
				Actions: []Action{{Action: "add_flag", Params: map[string]interface{}{"flag": "velocity"}}}},
			{ID: "r2", Name: "b", Priority: 1, IsEnabled: true,
				Actions: []Action{{Action: "add_flag", Params: map[string]interface{}{"flag": "velocity"}}}},
		},
	}
	result := EvaluateVersion(version, baseFacts())
	assert.Equal(t, []string{"velocity"}, result.Flags)
}

func TestRequireReasonAccumulates(t *testing.T) {
	version := &Version{
		ID: "v1",
		Rules: []*Rule{
			{ID: "r1", Name: "a", Priority: 2, IsEnabled: true,
				Actions: []Action{{Action: "require_reason", Params: map[string]interface{}{"category": "large_amount"}}}},
			{ID: "r2", Name: "b", Priority: 1, IsEnabled: true,
				Actions: []Action{{Action: "require_reason", Params: map[string]interface{}{"category": "new_account"}}}},
		},
	}
	result := EvaluateVersion(version, baseFacts())
	assert.Equal(t, []string{"large_amount", "new_account"}, result.RequiredReasonCategories)
}

func TestAmountThresholdGatesRule(t *testing.T) {
	version := singleRuleVersion(nil, []Action{{Action: "require_dual_control"}})
	version.Rules[0].AmountThreshold = f(5000)

	result := EvaluateVersion(version, baseFacts())
	assert.False(t, result.RequiresDualControl)

	facts := baseFacts()
	facts.Amount = 5000
	result = EvaluateVersion(version, facts)
	assert.True(t, result.RequiresDualControl)
}

func TestEvaluateDefaultWhenNoPolicy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT v.id, .* FROM policy_versions").
		WithArgs("t1", "checking").
		WillReturnRows(sqlmock.NewRows([]string{"id", "policy_id", "version_number", "effective_date", "is_current", "created_at"}))

	engine := NewEngine(db, 5000)
	tc := tenant.Context{TenantID: "t1", RequestID: "req-1"}

	facts := baseFacts()
	facts.Amount = 4999.99
	result, err := engine.Evaluate(context.Background(), tc, "checking", facts)
	require.NoError(t, err)
	assert.False(t, result.RequiresDualControl)
	assert.Equal(t, RiskLow, result.RiskLevel)

	mock.ExpectQuery("SELECT v.id, .* FROM policy_versions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "policy_id", "version_number", "effective_date", "is_current", "created_at"}))
	facts.Amount = 5000
	result, err = engine.Evaluate(context.Background(), tc, "checking", facts)
	require.NoError(t, err)
	assert.True(t, result.RequiresDualControl)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateAmountFloorOverridesRules(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT v.id, .* FROM policy_versions").
		WithArgs("t1", "checking").
		WillReturnRows(sqlmock.NewRows([]string{"id", "policy_id", "version_number", "effective_date", "is_current", "created_at"}).
			AddRow("v1", "p1", 1, now.Add(-time.Hour), true, now.Add(-time.Hour)))
	// The version has no rules, so nothing requires dual control on its own.
	mock.ExpectQuery("SELECT id, version_id, .* FROM policy_rules").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "version_id", "name", "rule_type", "priority", "is_enabled",
			"conditions", "actions", "amount_threshold", "created_at",
		}))

	engine := NewEngine(db, 5000)
	facts := baseFacts()
	facts.Amount = 7500
	result, err := engine.Evaluate(context.Background(), tenant.Context{TenantID: "t1"}, "checking", facts)
	require.NoError(t, err)
	assert.True(t, result.RequiresDualControl)
	assert.Equal(t, "p1", result.PolicyID)
	assert.Equal(t, "v1", result.PolicyVersionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
