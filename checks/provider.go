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

import (
	"context"
	"time"
)

// PresentedItem is one check as reported by the core-banking provider.
type PresentedItem struct {
	ExternalItemID string     `json:"external_item_id"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	AccountID      string     `json:"account_id"`
	AccountMasked  string     `json:"account_masked"`
	RoutingNumber  string     `json:"routing_number"`
	CheckNumber    string     `json:"check_number"`
	PresentedDate  time.Time  `json:"presented_date"`
	CheckDate      *time.Time `json:"check_date,omitempty"`
	MICRLine       string     `json:"micr_line,omitempty"`
	PayeeName      string     `json:"payee_name,omitempty"`
	ItemType       string     `json:"item_type"`
	UpstreamFlags  []string   `json:"upstream_flags,omitempty"`
}

// AccountContext is the provider's view of the paying account at
// presentment time. Pointer fields are absent when the provider has no
// data for them.
type AccountContext struct {
	AccountType       string   `json:"account_type"`
	TenureDays        *float64 `json:"tenure_days,omitempty"`
	CurrentBalance    *float64 `json:"current_balance,omitempty"`
	AvailableBalance  *float64 `json:"available_balance,omitempty"`
	AvgCheckAmount30d *float64 `json:"avg_check_amount_30d,omitempty"`
	MaxCheckAmount90d *float64 `json:"max_check_amount_90d,omitempty"`
	TotalCheck7d      *float64 `json:"total_check_amount_7d,omitempty"`
	CheckCount7d      *float64 `json:"check_count_7d,omitempty"`
	ReturnCount90d    *float64 `json:"return_count_90d,omitempty"`
	OverdraftCount90d *float64 `json:"overdraft_count_90d,omitempty"`
	NSFCount90d       *float64 `json:"nsf_count_90d,omitempty"`
	ImageQuality      *float64 `json:"image_quality_score,omitempty"`
}

// CheckItemProvider is the core-banking capability ingest pulls from.
// Implementations: connectors/corebank demo generator and HTTP client.
type CheckItemProvider interface {
	// FetchPresentedItems returns items presented since the last sync with
	// amount >= amountMin.
	FetchPresentedItems(ctx context.Context, tenantID string, amountMin float64) ([]*PresentedItem, error)

	// FetchAccountContext returns behavior stats for one account, nil when
	// the provider has no account data.
	FetchAccountContext(ctx context.Context, tenantID, accountID string) (*AccountContext, error)
}
