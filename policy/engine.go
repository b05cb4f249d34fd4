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
	"sort"
	"strings"

	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

// Engine evaluates the active policy version for a tenant against item
// facts.
type Engine struct {
	repo                 *Repository
	dualControlThreshold float64
	log                  *logger.Logger
}

// NewEngine creates the policy engine.
func NewEngine(db *sql.DB, dualControlThreshold float64) *Engine {
	return &Engine{
		repo:                 NewRepository(db),
		dualControlThreshold: dualControlThreshold,
		log:                  logger.New("policy"),
	}
}

// Repo exposes the repository for the CRUD service.
func (e *Engine) Repo() *Repository { return e.repo }

// Evaluate selects the active policy version for the tenant and account
// type and runs its rules. With no applicable policy it falls back to the
// amount-threshold default.
func (e *Engine) Evaluate(ctx context.Context, tc tenant.Context, accountType string, facts Facts) (*EvaluationResult, error) {
	version, policyID, err := e.repo.ActiveVersion(ctx, tc, accountType)
	if err != nil {
		return nil, err
	}
	if version == nil {
		result := e.defaultResult(facts)
		e.log.Debug(tc.TenantID, tc.RequestID, "No active policy, default gates applied", map[string]interface{}{
			"account_type":          accountType,
			"requires_dual_control": result.RequiresDualControl,
		})
		return result, nil
	}

	result := EvaluateVersion(version, facts)
	result.PolicyID = policyID
	// The amount floor applies regardless of what the rules said.
	if facts.Amount >= e.dualControlThreshold {
		result.RequiresDualControl = true
	}

	e.log.Debug(tc.TenantID, tc.RequestID, "Policy evaluated", map[string]interface{}{
		"policy_version_id": version.ID,
		"rules_triggered":   result.RulesTriggered,
		"risk_level":        result.RiskLevel,
	})
	return result, nil
}

func (e *Engine) defaultResult(facts Facts) *EvaluationResult {
	return &EvaluationResult{
		RulesTriggered:      []string{},
		RequiresDualControl: facts.Amount >= e.dualControlThreshold,
		RiskLevel:           RiskLow,
	}
}

// EvaluateVersion runs every enabled rule of a version against the facts.
// Rules run independently in (priority desc, created_at asc) order; each
// triggered rule contributes its actions.
func EvaluateVersion(version *Version, facts Facts) *EvaluationResult {
	result := &EvaluationResult{
		RulesTriggered: []string{},
		RiskLevel:      RiskLow,
	}

	rules := make([]*Rule, 0, len(version.Rules))
	for _, r := range version.Rules {
		if r.IsEnabled {
			rules = append(rules, r)
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})

	for _, rule := range rules {
		if !ruleMatches(rule, facts) {
			continue
		}
		result.RulesTriggered = append(result.RulesTriggered, rule.Name)
		for _, action := range rule.Actions {
			applyAction(action, result)
		}
	}

	result.PolicyVersionID = version.ID
	return result
}

// ruleMatches requires every condition to hold.
func ruleMatches(rule *Rule, facts Facts) bool {
	if rule.AmountThreshold != nil && facts.Amount < *rule.AmountThreshold {
		return false
	}
	for _, cond := range rule.Conditions {
		if !evaluateCondition(cond, facts) {
			return false
		}
	}
	return true
}

func applyAction(action Action, result *EvaluationResult) {
	switch action.Action {
	case "require_dual_control":
		result.RequiresDualControl = true
	case "set_risk_level":
		if level, ok := action.Params["level"].(string); ok {
			result.RiskLevel = HigherRisk(result.RiskLevel, level)
		}
	case "route_to_queue":
		// Last writer wins under the stable rule order.
		if queueID, ok := action.Params["queue_id"].(string); ok {
			result.RoutingQueueID = queueID
		}
	case "require_reason":
		if category, ok := action.Params["category"].(string); ok {
			result.RequiredReasonCategories = append(result.RequiredReasonCategories, category)
		}
	case "add_flag":
		if flag, ok := action.Params["flag"].(string); ok && !containsString(result.Flags, flag) {
			result.Flags = append(result.Flags, flag)
		}
	}
}

// evaluateCondition compares one fact against the condition value. A NULL
// fact (absent field or zero-denominator ratio) is always false.
func evaluateCondition(cond Condition, facts Facts) bool {
	value, ok := fieldValue(cond.Field, facts)
	if !ok {
		return false
	}

	switch cond.Operator {
	case "equals":
		return compareEqual(value, cond.Value)
	case "not_equals":
		return !compareEqual(value, cond.Value)
	case "greater_than":
		return compareNumeric(value, cond.Value, func(a, b float64) bool { return a > b })
	case "less_than":
		return compareNumeric(value, cond.Value, func(a, b float64) bool { return a < b })
	case "greater_or_equal":
		return compareNumeric(value, cond.Value, func(a, b float64) bool { return a >= b })
	case "less_or_equal":
		return compareNumeric(value, cond.Value, func(a, b float64) bool { return a <= b })
	case "in":
		return valueInList(cond.Value, value)
	case "not_in":
		return !valueInList(cond.Value, value)
	case "contains":
		return strings.Contains(
			strings.ToLower(fmt.Sprint(value)),
			strings.ToLower(fmt.Sprint(cond.Value)),
		)
	case "between":
		bounds, ok := cond.Value.([]interface{})
		if !ok || len(bounds) != 2 {
			return false
		}
		// Inclusive on both bounds.
		return compareNumeric(value, bounds[0], func(a, b float64) bool { return a >= b }) &&
			compareNumeric(value, bounds[1], func(a, b float64) bool { return a <= b })
	default:
		return false
	}
}

// fieldValue resolves a condition field name. The second return is false
// for unknown fields, absent optional facts, and undefined ratios.
func fieldValue(field string, facts Facts) (interface{}, bool) {
	switch field {
	case "amount":
		return facts.Amount, true
	case "currency":
		return facts.Currency, true
	case "item_type":
		return facts.ItemType, true
	case "account_type":
		return facts.AccountType, true
	case "check_number":
		return facts.CheckNumber, true
	case "routing_number":
		return facts.RoutingNumber, true
	case "account_tenure_days":
		return optional(facts.AccountTenureDays)
	case "current_balance":
		return optional(facts.CurrentBalance)
	case "available_balance":
		return optional(facts.AvailableBalance)
	case "avg_check_amount_30d":
		return optional(facts.AvgCheckAmount30d)
	case "max_check_amount_90d":
		return optional(facts.MaxCheckAmount90d)
	case "total_check_amount_7d":
		return optional(facts.TotalCheckAmount7d)
	case "check_count_7d":
		return optional(facts.CheckCount7d)
	case "return_count_90d":
		return optional(facts.ReturnCount90d)
	case "overdraft_count_90d":
		return optional(facts.OverdraftCount90d)
	case "nsf_count_90d":
		return optional(facts.NSFCount90d)
	case "image_quality_score":
		return optional(facts.ImageQualityScore)
	case "days_since_check_date":
		return optional(facts.DaysSinceCheckDate)
	case "duplicate_check_count":
		return optional(facts.DuplicateCheckCount)
	case "amount_vs_avg_ratio":
		return ratio(facts.Amount, facts.AvgCheckAmount30d)
	case "amount_vs_max_ratio":
		return ratio(facts.Amount, facts.MaxCheckAmount90d)
	case "amount_vs_balance_ratio":
		return ratio(facts.Amount, facts.CurrentBalance)
	case "velocity_7d_ratio":
		return ratio(facts.Amount, facts.TotalCheckAmount7d)
	case "upstream_flag_count":
		return float64(len(facts.UpstreamFlags)), true
	default:
		return nil, false
	}
}

func optional(v *float64) (interface{}, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

// ratio is NULL when the denominator is absent or zero.
func ratio(numerator float64, denominator *float64) (interface{}, bool) {
	if denominator == nil || *denominator == 0 {
		return nil, false
	}
	return numerator / *denominator, true
}

// compareEqual compares numerically when both sides convert, by string
// form otherwise.
func compareEqual(a, b interface{}) bool {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareNumeric(a, b interface{}, cmp func(a, b float64) bool) bool {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if !aok || !bok {
		return false
	}
	return cmp(af, bf)
}

// toFloat64 upcasts all comparisons to double precision. Rules operate on
// ratios and thresholds, not exact cents.
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func valueInList(list, item interface{}) bool {
	switch l := list.(type) {
	case []string:
		for _, v := range l {
			if compareEqual(v, item) {
				return true
			}
		}
	case []interface{}:
		for _, v := range l {
			if compareEqual(v, item) {
				return true
			}
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
