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

package advisor

import (
	"encoding/json"
	"time"
)

// Recommendation values.
const (
	RecommendLikelyLegitimate = "likely_legitimate"
	RecommendNeedsReview      = "needs_review"
	RecommendHighRisk         = "high_risk"
	RecommendAnomalyDetected  = "anomaly_detected"
	RecommendInsufficientData = "insufficient_data"
)

// Scorer identity. Bump ModelVersion when factor weights change.
const (
	ModelID      = "clearcheck-heuristic"
	ModelVersion = "1.2.0"
)

// RiskFactor is one weighted contribution to the score.
type RiskFactor struct {
	Factor      string  `json:"factor"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
}

// Analysis is one stored advisory result. IsAdvisory and
// RequiresHumanReview are not fields: MarshalJSON emits them as constant
// true and they cannot be set false from anywhere.
type Analysis struct {
	ID                   string             `json:"id"`
	TenantID             string             `json:"tenant_id"`
	CheckItemID          string             `json:"check_item_id"`
	ModelID              string             `json:"model_id"`
	ModelVersion         string             `json:"model_version"`
	AnalyzedAt           time.Time          `json:"analyzed_at"`
	Recommendation       string             `json:"recommendation"`
	Confidence           float64            `json:"confidence"`
	RiskScore            float64            `json:"risk_score"`
	RiskFactors          []RiskFactor       `json:"risk_factors"`
	Flags                []string           `json:"flags"`
	Explanation          string             `json:"explanation"`
	ConfidenceByCategory map[string]float64 `json:"confidence_by_category"`
}

// MarshalJSON locks the advisory booleans to true.
func (a *Analysis) MarshalJSON() ([]byte, error) {
	type alias Analysis
	return json.Marshal(struct {
		*alias
		IsAdvisory          bool `json:"is_advisory"`
		RequiresHumanReview bool `json:"requires_human_review"`
	}{
		alias:               (*alias)(a),
		IsAdvisory:          true,
		RequiresHumanReview: true,
	})
}

// UnmarshalJSON rejects stored payloads claiming the advisory booleans
// are false.
func (a *Analysis) UnmarshalJSON(data []byte) error {
	type alias Analysis
	aux := struct {
		*alias
		IsAdvisory          *bool `json:"is_advisory"`
		RequiresHumanReview *bool `json:"requires_human_review"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.IsAdvisory != nil && !*aux.IsAdvisory {
		return errAdvisoryViolation
	}
	if aux.RequiresHumanReview != nil && !*aux.RequiresHumanReview {
		return errAdvisoryViolation
	}
	return nil
}
