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

package fraud

import "time"

// Sharing levels for shared artifacts.
const (
	SharingPrivate      = 0
	SharingAggregate    = 1
	SharingNetworkMatch = 2
)

// Fraud types.
const (
	TypeCounterfeit   = "counterfeit"
	TypeForgery       = "forgery"
	TypeAlteration    = "alteration"
	TypeKiting        = "kiting"
	TypeDuplicate     = "duplicate_deposit"
	TypeAccountTakeov = "account_takeover"
	TypeOther         = "other"
)

// Match alert statuses.
const (
	AlertStatusNew          = "new"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusDismissed    = "dismissed"
)

// FraudEvent is the private, full-detail record. It never leaves the
// owning tenant; only derived hashes do.
type FraudEvent struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	CheckItemID string `json:"check_item_id,omitempty"`

	FraudType string  `json:"fraud_type"`
	Channel   string  `json:"channel,omitempty"`
	Amount    float64 `json:"amount"`

	RoutingNumber string `json:"routing_number,omitempty"`
	PayeeName     string `json:"payee_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	CheckNumber   string `json:"check_number,omitempty"`

	EventDate   time.Time `json:"event_date"`
	Description string    `json:"description,omitempty"`
	ReportedBy  string    `json:"reported_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// FraudSharedArtifact is the cross-tenant shape: hashed indicators plus
// coarsened buckets. TenantID stays server-side for dedup and counting
// and is never exposed to other tenants.
type FraudSharedArtifact struct {
	ID       string `json:"id"`
	TenantID string `json:"-"`
	EventID  string `json:"-"`

	RoutingHash     string `json:"routing_hash,omitempty"`
	PayeeHash       string `json:"payee_hash,omitempty"`
	AccountHash     string `json:"account_hash,omitempty"`
	CheckNumberHash string `json:"check_number_hash,omitempty"`
	Fingerprint     string `json:"fingerprint,omitempty"`

	AmountBucket string `json:"amount_bucket"`
	MonthBucket  string `json:"month_bucket"`
	FraudType    string `json:"fraud_type"`
	Channel      string `json:"channel,omitempty"`

	SharingLevel  int    `json:"sharing_level"`
	PepperVersion string `json:"pepper_version"`

	CreatedAt time.Time `json:"created_at"`
}

// NetworkMatchAlert tells one tenant that an indicator it submitted
// matches network fraud activity. Only aggregate reasons and counts are
// carried; matching artifact IDs are never surfaced.
type NetworkMatchAlert struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	EventID     string `json:"event_id"`
	CheckItemID string `json:"check_item_id,omitempty"`

	MatchReasons         []string `json:"match_reasons"`
	MatchCount           int      `json:"match_count"`
	DistinctInstitutions int      `json:"distinct_institutions"`

	Status         string     `json:"status"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TenantFraudConfig holds a tenant's sharing opt-in and the pepper
// versions it will match against.
type TenantFraudConfig struct {
	TenantID             string    `json:"tenant_id"`
	SharingEnabled       bool      `json:"sharing_enabled"`
	DefaultSharingLevel  int       `json:"default_sharing_level"`
	EligiblePepperVersns []string  `json:"eligible_pepper_versions"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// EventInput is the submission payload for a fraud event.
type EventInput struct {
	CheckItemID   string    `json:"check_item_id,omitempty"`
	FraudType     string    `json:"fraud_type"`
	Channel       string    `json:"channel,omitempty"`
	Amount        float64   `json:"amount"`
	RoutingNumber string    `json:"routing_number,omitempty"`
	PayeeName     string    `json:"payee_name,omitempty"`
	AccountNumber string    `json:"account_number,omitempty"`
	CheckNumber   string    `json:"check_number,omitempty"`
	EventDate     time.Time `json:"event_date"`
	Description   string    `json:"description,omitempty"`
}

// NetworkStats is the aggregate view over shared artifacts. Suppressed
// is set instead of Counts when fewer distinct institutions contributed
// than the privacy threshold.
type NetworkStats struct {
	FraudType            string         `json:"fraud_type,omitempty"`
	MonthBucket          string         `json:"month_bucket,omitempty"`
	ArtifactCount        int            `json:"artifact_count,omitempty"`
	DistinctInstitutions int            `json:"distinct_institutions,omitempty"`
	ByAmountBucket       map[string]int `json:"by_amount_bucket,omitempty"`
	Suppressed           bool           `json:"suppressed"`
}

func validFraudType(t string) bool {
	switch t {
	case TypeCounterfeit, TypeForgery, TypeAlteration, TypeKiting, TypeDuplicate, TypeAccountTakeov, TypeOther:
		return true
	}
	return false
}

func validSharingLevel(l int) bool {
	return l == SharingPrivate || l == SharingAggregate || l == SharingNetworkMatch
}
