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

import "time"

// Item statuses. Transitions are owned by the decision state machine.
const (
	StatusNew                = "new"
	StatusInReview           = "in_review"
	StatusPendingDualControl = "pending_dual_control"
	StatusApproved           = "approved"
	StatusReturned           = "returned"
	StatusRejected           = "rejected"
	StatusEscalated          = "escalated"
	StatusClosed             = "closed"
)

// Item types.
const (
	ItemTypeOnUs    = "on_us"
	ItemTypeTransit = "transit"
)

// IsTerminal reports whether a status permits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusApproved, StatusReturned, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// CheckItem is one presented check. (tenant_id, external_item_id) is
// unique; re-ingesting the same external item updates the row.
type CheckItem struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	ExternalItemID string `json:"external_item_id"`

	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	AccountID     string     `json:"account_id"`
	AccountMasked string     `json:"account_masked"`
	RoutingNumber string     `json:"routing_number"`
	CheckNumber   string     `json:"check_number"`
	PresentedDate time.Time  `json:"presented_date"`
	CheckDate     *time.Time `json:"check_date,omitempty"`
	MICRLine      string     `json:"micr_line,omitempty"`
	PayeeName     string     `json:"payee_name,omitempty"`
	ItemType      string     `json:"item_type"`

	Status    string `json:"status"`
	RiskLevel string `json:"risk_level"`
	Priority  int    `json:"priority"`

	// Account-context snapshot captured at ingest.
	AccountTenureDays   *float64 `json:"account_tenure_days,omitempty"`
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
	UpstreamFlags       []string `json:"upstream_flags,omitempty"`
	AccountType         string   `json:"account_type,omitempty"`

	// Advisory fields copied from the latest analysis.
	AIRecommendation string   `json:"ai_recommendation,omitempty"`
	AIConfidence     *float64 `json:"ai_confidence,omitempty"`
	AIExplanation    string   `json:"ai_explanation,omitempty"`
	AIAnalysisID     string   `json:"ai_analysis_id,omitempty"`

	AssignedReviewerID string     `json:"assigned_reviewer_id,omitempty"`
	AssignedApproverID string     `json:"assigned_approver_id,omitempty"`
	QueueID            string     `json:"queue_id,omitempty"`
	SLADueAt           *time.Time `json:"sla_due_at,omitempty"`
	SLABreached        bool       `json:"sla_breached"`

	RequiresDualControl          bool   `json:"requires_dual_control"`
	PendingDualControlDecisionID string `json:"pending_dual_control_decision_id,omitempty"`
	DualControlReason            string `json:"dual_control_reason,omitempty"`
	PolicyVersionID              string `json:"policy_version_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListParams is the filter union for listing and adjacent navigation.
type ListParams struct {
	Statuses    []string
	RiskLevels  []string
	AmountMin   *float64
	AmountMax   *float64
	QueueID     string
	AssignedTo  string
	HasAIFlags  *bool
	SLABreached *bool
	DateFrom    *time.Time
	DateTo      *time.Time

	Page     int
	PageSize int
}

// ListResult is one page of items.
type ListResult struct {
	Items    []*CheckItem `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// AdjacentResult is the prev/next navigation pair under the caller's
// filter.
type AdjacentResult struct {
	PrevID string `json:"prev_id,omitempty"`
	NextID string `json:"next_id,omitempty"`
}

// SyncResult summarizes one provider sync run.
type SyncResult struct {
	Fetched  int      `json:"fetched"`
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	ItemIDs  []string `json:"item_ids"`
	Duration string   `json:"duration"`
}

// ItemView is one append-only reviewer view session.
type ItemView struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	CheckItemID   string     `json:"check_item_id"`
	UserID        string     `json:"user_id"`
	ViewStartedAt time.Time  `json:"view_started_at"`
	ViewEndedAt   *time.Time `json:"view_ended_at,omitempty"`
	ImageViewed   bool       `json:"image_viewed"`
	ImageZoomed   bool       `json:"image_zoomed"`
}
