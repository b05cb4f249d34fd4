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

import "time"

// Policy status values.
const (
	StatusDraft    = "DRAFT"
	StatusActive   = "ACTIVE"
	StatusArchived = "ARCHIVED"
)

// Rule types.
const (
	RuleTypeThreshold   = "threshold"
	RuleTypeDualControl = "dual_control"
	RuleTypeEscalation  = "escalation"
	RuleTypeRouting     = "routing"
)

// Risk levels ordered by severity.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Policy is the tenant-scoped container for versions.
type Policy struct {
	ID                    string    `json:"id"`
	TenantID              string    `json:"tenant_id"`
	Name                  string    `json:"name"`
	Description           string    `json:"description,omitempty"`
	Status                string    `json:"status"`
	IsDefault             bool      `json:"is_default"`
	AppliesToAccountTypes []string  `json:"applies_to_account_types,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`

	CurrentVersion *Version `json:"current_version,omitempty"`
}

// Version is one effective-dated rule set. Exactly one version per policy
// has IsCurrent set.
type Version struct {
	ID            string    `json:"id"`
	PolicyID      string    `json:"policy_id"`
	VersionNumber int       `json:"version_number"`
	EffectiveDate time.Time `json:"effective_date"`
	IsCurrent     bool      `json:"is_current"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	Rules []*Rule `json:"rules,omitempty"`
}

// Rule is one named condition/action set.
type Rule struct {
	ID              string      `json:"id"`
	VersionID       string      `json:"version_id"`
	Name            string      `json:"name"`
	RuleType        string      `json:"rule_type"`
	Priority        int         `json:"priority"`
	IsEnabled       bool        `json:"is_enabled"`
	Conditions      []Condition `json:"conditions"`
	Actions         []Action    `json:"actions"`
	AmountThreshold *float64    `json:"amount_threshold,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Condition compares one item fact against a value.
type Condition struct {
	Field     string      `json:"field"`
	Operator  string      `json:"operator"`
	Value     interface{} `json:"value"`
	ValueType string      `json:"value_type,omitempty"`
}

// Action is emitted when every condition of a rule holds.
type Action struct {
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// EvaluationResult is the engine's output for one item.
type EvaluationResult struct {
	PolicyID                 string   `json:"policy_id,omitempty"`
	PolicyVersionID          string   `json:"policy_version_id,omitempty"`
	RulesTriggered           []string `json:"rules_triggered"`
	RequiresDualControl      bool     `json:"requires_dual_control"`
	RiskLevel                string   `json:"risk_level"`
	RoutingQueueID           string   `json:"routing_queue_id,omitempty"`
	RequiredReasonCategories []string `json:"required_reason_categories,omitempty"`
	Flags                    []string `json:"flags,omitempty"`
}

// Facts is the closed set of item attributes rules may read. Pointer
// fields are absent when the upstream feed did not supply them; a
// condition over an absent field is false.
type Facts struct {
	Amount        float64
	Currency      string
	ItemType      string
	AccountType   string
	CheckNumber   string
	RoutingNumber string

	AccountTenureDays *float64
	CurrentBalance    *float64
	AvailableBalance  *float64

	AvgCheckAmount30d   *float64
	MaxCheckAmount90d   *float64
	TotalCheckAmount7d  *float64
	CheckCount7d        *float64
	ReturnCount90d      *float64
	OverdraftCount90d   *float64
	NSFCount90d         *float64
	ImageQualityScore   *float64
	DaysSinceCheckDate  *float64
	DuplicateCheckCount *float64

	UpstreamFlags []string
}

// riskSeverity orders risk levels for highest-wins merging.
var riskSeverity = map[string]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// HigherRisk returns the more severe of two levels. Unknown levels rank
// lowest.
func HigherRisk(a, b string) string {
	if riskSeverity[b] > riskSeverity[a] {
		return b
	}
	return a
}
