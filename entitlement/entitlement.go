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
	"fmt"
	"time"
)

// Type classifies what an entitlement permits.
type Type string

const (
	TypeReview   Type = "review"
	TypeApprove  Type = "approve"
	TypeOverride Type = "override"
)

// Entitlement is one scoped grant, held directly by a user or inherited
// through a role. NULL scope fields mean unbounded.
type Entitlement struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`
	RoleID   string `json:"role_id,omitempty"`
	Type     Type   `json:"entitlement_type"`
	IsActive bool   `json:"is_active"`

	MinAmount *float64 `json:"min_amount,omitempty"`
	MaxAmount *float64 `json:"max_amount,omitempty"`

	AllowedAccountTypes  []string `json:"allowed_account_types,omitempty"`
	AllowedQueueIDs      []string `json:"allowed_queue_ids,omitempty"`
	AllowedRiskLevels    []string `json:"allowed_risk_levels,omitempty"`
	AllowedBusinessLines []string `json:"allowed_business_lines,omitempty"`

	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ItemScope is the slice of a check item an entitlement is matched
// against.
type ItemScope struct {
	TenantID     string
	Amount       float64
	AccountType  string
	QueueID      string
	RiskLevel    string
	BusinessLine string
}

// CheckResult reports whether some entitlement covers the item. On denial,
// Reasons carries the distinct reasons every candidate gave.
type CheckResult struct {
	Allowed       bool     `json:"allowed"`
	EntitlementID string   `json:"entitlement_id,omitempty"`
	Reasons       []string `json:"reasons,omitempty"`
}

// evaluate matches one entitlement against an item. Scope checks run in a
// fixed order and the first failing scope names the denial reason.
func evaluate(e *Entitlement, item ItemScope) (bool, string) {
	if e.MinAmount != nil && item.Amount < *e.MinAmount {
		return false, fmt.Sprintf("Amount %.2f below entitlement minimum %.2f", item.Amount, *e.MinAmount)
	}
	if e.MaxAmount != nil && item.Amount > *e.MaxAmount {
		return false, fmt.Sprintf("Amount %.2f exceeds entitlement maximum %.2f", item.Amount, *e.MaxAmount)
	}
	if len(e.AllowedAccountTypes) > 0 && !contains(e.AllowedAccountTypes, item.AccountType) {
		return false, fmt.Sprintf("Account type %q not covered", item.AccountType)
	}
	if len(e.AllowedQueueIDs) > 0 && !contains(e.AllowedQueueIDs, item.QueueID) {
		return false, "Queue not covered"
	}
	if len(e.AllowedRiskLevels) > 0 && !contains(e.AllowedRiskLevels, item.RiskLevel) {
		return false, fmt.Sprintf("Risk level %q not covered", item.RiskLevel)
	}
	if len(e.AllowedBusinessLines) > 0 && !contains(e.AllowedBusinessLines, item.BusinessLine) {
		return false, fmt.Sprintf("Business line %q not covered", item.BusinessLine)
	}
	if e.TenantID != "" && e.TenantID != item.TenantID {
		return false, "Entitlement belongs to a different tenant"
	}
	return true, ""
}

// resolve applies the first-allow rule over candidate entitlements and
// collects distinct denial reasons when none allows.
func resolve(candidates []*Entitlement, item ItemScope) *CheckResult {
	if len(candidates) == 0 {
		return &CheckResult{Allowed: false, Reasons: []string{"No approval entitlement found"}}
	}

	seen := map[string]bool{}
	var reasons []string
	for _, e := range candidates {
		ok, reason := evaluate(e, item)
		if ok {
			return &CheckResult{Allowed: true, EntitlementID: e.ID}
		}
		if !seen[reason] {
			seen[reason] = true
			reasons = append(reasons, reason)
		}
	}
	return &CheckResult{Allowed: false, Reasons: reasons}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
