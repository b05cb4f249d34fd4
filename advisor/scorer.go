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
	"errors"
	"fmt"
	"strings"
	"time"

	"clearcheck/platform/policy"
)

var errAdvisoryViolation = errors.New("advisor: analysis must remain advisory")

// Factor weights and bounds.
const (
	amountAnomalyRatio  = 3.0
	amountAnomalyWeight = 0.25
	anomalyExtremeRatio = 5.0

	newAccountDays       = 30.0
	newAccountWeight     = 0.15
	youngAccountDays     = 90.0
	youngAccountWeight   = 0.075
	returnWeightPer      = 0.10
	returnWeightCap      = 0.30
	balanceShortWeight   = 0.20
	upstreamFlagWeight   = 0.05
	upstreamFlagCap      = 0.20
	highRiskThreshold    = 0.6
	needsReviewThreshold = 0.3
)

// Scorer is the deterministic heuristic advisor.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates the scorer.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score computes the advisory analysis for one item's facts. It never
// errors: absent inputs lower coverage and can yield insufficient_data.
func (s *Scorer) Score(itemID string, facts policy.Facts) *Analysis {
	a := &Analysis{
		CheckItemID:  itemID,
		ModelID:      ModelID,
		ModelVersion: ModelVersion,
		AnalyzedAt:   s.now().UTC(),
		RiskFactors:  []RiskFactor{},
		Flags:        []string{},
	}

	anomalous := false

	if facts.AvgCheckAmount30d != nil && *facts.AvgCheckAmount30d > 0 {
		ratio := facts.Amount / *facts.AvgCheckAmount30d
		if ratio > amountAnomalyRatio {
			a.addFactor("amount_anomaly", amountAnomalyWeight, ratio,
				fmt.Sprintf("Amount is %.1fx the 30-day average", ratio))
			a.Flags = append(a.Flags, "amount_anomaly")
		}
		if ratio > anomalyExtremeRatio {
			anomalous = true
		}
	}

	if facts.AccountTenureDays != nil {
		tenure := *facts.AccountTenureDays
		switch {
		case tenure < newAccountDays:
			a.addFactor("new_account", newAccountWeight, tenure,
				fmt.Sprintf("Account opened %.0f days ago", tenure))
			a.Flags = append(a.Flags, "new_account")
		case tenure < youngAccountDays:
			a.addFactor("new_account", youngAccountWeight, tenure,
				fmt.Sprintf("Account opened %.0f days ago", tenure))
		}
	}

	if facts.ReturnCount90d != nil && *facts.ReturnCount90d > 0 {
		returns := *facts.ReturnCount90d
		weight := returns * returnWeightPer
		if weight > returnWeightCap {
			weight = returnWeightCap
		}
		a.addFactor("return_history", weight, returns,
			fmt.Sprintf("%.0f returned items in the last 90 days", returns))
		a.Flags = append(a.Flags, "return_history")
	}

	if facts.CurrentBalance != nil && facts.Amount > *facts.CurrentBalance {
		a.addFactor("balance_shortfall", balanceShortWeight, facts.Amount-*facts.CurrentBalance,
			"Amount exceeds current balance")
		a.Flags = append(a.Flags, "balance_shortfall")
	}

	if n := len(facts.UpstreamFlags); n > 0 {
		weight := float64(n) * upstreamFlagWeight
		if weight > upstreamFlagCap {
			weight = upstreamFlagCap
		}
		a.addFactor("upstream_flags", weight, float64(n),
			fmt.Sprintf("Upstream processing raised %d flags", n))
		a.Flags = append(a.Flags, facts.UpstreamFlags...)
	}

	for _, f := range a.RiskFactors {
		a.RiskScore += f.Weight
	}
	if a.RiskScore > 1.0 {
		a.RiskScore = 1.0
	}

	coverage := scoreCoverage(facts)
	a.Confidence = 0.5 + 0.45*coverage
	a.ConfidenceByCategory = map[string]float64{
		"amount":  categoryConfidence(facts.AvgCheckAmount30d),
		"account": categoryConfidence(facts.AccountTenureDays),
		"balance": categoryConfidence(facts.CurrentBalance),
		"history": categoryConfidence(facts.ReturnCount90d),
	}

	switch {
	case coverage == 0:
		a.Recommendation = RecommendInsufficientData
		a.Confidence = 0.5
	case anomalous:
		a.Recommendation = RecommendAnomalyDetected
	case a.RiskScore >= highRiskThreshold:
		a.Recommendation = RecommendHighRisk
	case a.RiskScore >= needsReviewThreshold:
		a.Recommendation = RecommendNeedsReview
	default:
		a.Recommendation = RecommendLikelyLegitimate
	}

	a.Explanation = buildExplanation(a)
	return a
}

func (a *Analysis) addFactor(name string, weight, value float64, description string) {
	a.RiskFactors = append(a.RiskFactors, RiskFactor{
		Factor:      name,
		Weight:      weight,
		Description: description,
		Value:       value,
	})
}

// scoreCoverage is the fraction of optional account-context inputs that
// were supplied. Zero coverage means no basis for a recommendation.
func scoreCoverage(facts policy.Facts) float64 {
	inputs := []*float64{
		facts.AccountTenureDays,
		facts.CurrentBalance,
		facts.AvgCheckAmount30d,
		facts.ReturnCount90d,
	}
	present := 0
	for _, v := range inputs {
		if v != nil {
			present++
		}
	}
	return float64(present) / float64(len(inputs))
}

func categoryConfidence(v *float64) float64 {
	if v == nil {
		return 0
	}
	return 0.9
}

func buildExplanation(a *Analysis) string {
	if a.Recommendation == RecommendInsufficientData {
		return "No account context was available for this item; review it manually."
	}
	if len(a.RiskFactors) == 0 {
		return "No risk factors triggered. The item is consistent with account history."
	}
	parts := make([]string, 0, len(a.RiskFactors))
	for _, f := range a.RiskFactors {
		parts = append(parts, f.Description)
	}
	return fmt.Sprintf("Risk score %.2f. %s.", a.RiskScore, strings.Join(parts, "; "))
}
