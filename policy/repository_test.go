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

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/tenant"
)

func ruleColumns() []string {
	return []string{
		"id", "version_id", "name", "rule_type", "priority", "is_enabled",
		"conditions", "actions", "amount_threshold", "created_at",
	}
}

func TestActiveVersionDecodesRules(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT v.id, .* FROM policy_versions").
		WithArgs("t1", "checking").
		WillReturnRows(sqlmock.NewRows([]string{"id", "policy_id", "version_number", "effective_date", "is_current", "created_at"}).
			AddRow("v1", "p1", 3, now.Add(-24*time.Hour), true, now.Add(-24*time.Hour)))
	mock.ExpectQuery("SELECT id, version_id, .* FROM policy_rules").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows(ruleColumns()).
			AddRow("r1", "v1", "high-ratio", "escalation", 100, true,
				`[{"field":"amount_vs_avg_ratio","operator":"greater_than","value":3}]`,
				`[{"action":"set_risk_level","params":{"level":"high"}}]`,
				nil, now).
			AddRow("r2", "v1", "big-check", "dual_control", 50, true,
				`[]`, `[{"action":"require_dual_control"}]`, 10000.0, now))

	repo := NewRepository(db)
	version, policyID, err := repo.ActiveVersion(context.Background(), tenant.Context{TenantID: "t1"}, "checking")
	require.NoError(t, err)
	require.NotNil(t, version)

	assert.Equal(t, "p1", policyID)
	assert.Equal(t, 3, version.VersionNumber)
	require.Len(t, version.Rules, 2)
	assert.Equal(t, "amount_vs_avg_ratio", version.Rules[0].Conditions[0].Field)
	assert.Equal(t, "set_risk_level", version.Rules[0].Actions[0].Action)
	require.NotNil(t, version.Rules[1].AmountThreshold)
	assert.Equal(t, 10000.0, *version.Rules[1].AmountThreshold)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveVersionNoneApplies(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT v.id, .* FROM policy_versions").
		WithArgs("t1", "money_market").
		WillReturnRows(sqlmock.NewRows([]string{"id", "policy_id", "version_number", "effective_date", "is_current", "created_at"}))

	repo := NewRepository(db)
	version, policyID, err := repo.ActiveVersion(context.Background(), tenant.Context{TenantID: "t1"}, "money_market")
	require.NoError(t, err)
	assert.Nil(t, version)
	assert.Empty(t, policyID)
}

func TestDecodedRulesEvaluate(t *testing.T) {
	// JSON-decoded condition values arrive as float64; the engine must
	// compare them against facts without type coercion surprises.
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT v.id, .* FROM policy_versions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "policy_id", "version_number", "effective_date", "is_current", "created_at"}).
			AddRow("v1", "p1", 1, now, true, now))
	mock.ExpectQuery("SELECT id, version_id, .* FROM policy_rules").
		WillReturnRows(sqlmock.NewRows(ruleColumns()).
			AddRow("r1", "v1", "route-large", "routing", 10, true,
				`[{"field":"amount","operator":"between","value":[1000,2000]}]`,
				`[{"action":"route_to_queue","params":{"queue_id":"q-large"}},{"action":"add_flag","params":{"flag":"amount_band"}}]`,
				nil, now))

	engine := NewEngine(db, 5000)
	facts := baseFacts()
	facts.Amount = 1500
	result, err := engine.Evaluate(context.Background(), tenant.Context{TenantID: "t1"}, "checking", facts)
	require.NoError(t, err)
	assert.Equal(t, []string{"route-large"}, result.RulesTriggered)
	assert.Equal(t, "q-large", result.RoutingQueueID)
	assert.Equal(t, []string{"amount_band"}, result.Flags)
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name    string
		rules   []*Rule
		wantErr bool
	}{
		{"nil rules ok", nil, false},
		{"valid rule", []*Rule{{Name: "r", Conditions: []Condition{{Field: "amount", Operator: "equals", Value: 1.0}}, Actions: []Action{{Action: "add_flag"}}}}, false},
		{"missing name", []*Rule{{}}, true},
		{"missing condition field", []*Rule{{Name: "r", Conditions: []Condition{{Operator: "equals"}}}}, true},
		{"unknown operator", []*Rule{{Name: "r", Conditions: []Condition{{Field: "amount", Operator: "matches"}}}}, true},
		{"unknown action", []*Rule{{Name: "r", Actions: []Action{{Action: "page_oncall"}}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRules(tt.rules)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
