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

import "time"

// Decision types.
const (
	TypeReviewRecommendation = "review_recommendation"
	TypeApprovalDecision     = "approval_decision"
	TypeOverride             = "override"
)

// Decision actions.
const (
	ActionApprove       = "approve"
	ActionReturn        = "return"
	ActionReject        = "reject"
	ActionEscalate      = "escalate"
	ActionHold          = "hold"
	ActionNeedsMoreInfo = "needs_more_info"
)

// Decision is one immutable reviewer or approver action.
type Decision struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	CheckItemID string `json:"check_item_id"`

	DecisionType string `json:"decision_type"`
	Action       string `json:"action"`
	UserID       string `json:"user_id"`

	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`

	IsDualControlRequired bool     `json:"is_dual_control_required"`
	DualControlApproverID string   `json:"dual_control_approver_id,omitempty"`
	Notes                 string   `json:"notes,omitempty"`
	ReasonCodes           []string `json:"reason_codes,omitempty"`
	AIAssisted            bool     `json:"ai_assisted"`
	AIAnalysisID          string   `json:"ai_analysis_id,omitempty"`

	EvidenceSnapshot map[string]interface{} `json:"evidence_snapshot"`

	CreatedAt time.Time `json:"created_at"`
}

// Request is the input for a new decision.
type Request struct {
	CheckItemID     string   `json:"check_item_id"`
	Action          string   `json:"action"`
	Notes           string   `json:"notes"`
	ReasonCodes     []string `json:"reason_codes"`
	AIAssisted      bool     `json:"ai_assisted"`
	AIAnalysisID    string   `json:"ai_analysis_id"`
	AIFlagsReviewed []string `json:"ai_flags_reviewed"`
}

// Result is what a successful decision returns.
type Result struct {
	Decision   *Decision `json:"decision"`
	ItemStatus string    `json:"item_status"`
	// PendingDualControl is set when the decision was recorded as a
	// review recommendation awaiting a second approver.
	PendingDualControl bool `json:"pending_dual_control"`
}

func validAction(action string) bool {
	switch action {
	case ActionApprove, ActionReturn, ActionReject, ActionEscalate, ActionHold, ActionNeedsMoreInfo:
		return true
	}
	return false
}
