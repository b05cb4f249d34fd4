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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcheck/platform/policy"
)

func f(v float64) *float64 { return &v }

func healthyFacts(amount float64) policy.Facts {
	return policy.Facts{
		Amount:            amount,
		Currency:          "USD",
		AccountType:       "checking",
		AccountTenureDays: f(1200),
		CurrentBalance:    f(50000),
		AvgCheckAmount30d: f(900),
		ReturnCount90d:    f(0),
	}
}

func factorWeight(a *Analysis, name string) (float64, bool) {
	for _, fa := range a.RiskFactors {
		if fa.Factor == name {
			return fa.Weight, true
		}
	}
	return 0, false
}

func TestScoreCleanItemIsLikelyLegitimate(t *testing.T) {
	a := NewScorer().Score("item-1", healthyFacts(1000))
	assert.Equal(t, RecommendLikelyLegitimate, a.Recommendation)
	assert.Equal(t, 0.0, a.RiskScore)
	assert.Empty(t, a.RiskFactors)
	assert.InDelta(t, 0.95, a.Confidence, 0.001)
}

func TestScoreFactorWeights(t *testing.T) {
	facts := policy.Facts{
		Amount:            4000,
		AccountTenureDays: f(10),
		CurrentBalance:    f(1000),
		AvgCheckAmount30d: f(1000),
		ReturnCount90d:    f(5),
		UpstreamFlags:     []string{"dup_suspect", "image_blur", "micr_mismatch", "stale_date", "endorse_missing"},
	}
	a := NewScorer().Score("item-1", facts)

	w, ok := factorWeight(a, "amount_anomaly")
	require.True(t, ok)
	assert.Equal(t, 0.25, w)

	w, ok = factorWeight(a, "new_account")
	require.True(t, ok)
	assert.Equal(t, 0.15, w)

	// 5 returns would be 0.50; capped at 0.30.
	w, ok = factorWeight(a, "return_history")
	require.True(t, ok)
	assert.Equal(t, 0.30, w)

	w, ok = factorWeight(a, "balance_shortfall")
	require.True(t, ok)
	assert.Equal(t, 0.20, w)

	// 5 flags would be 0.25; capped at 0.20.
	w, ok = factorWeight(a, "upstream_flags")
	require.True(t, ok)
	assert.Equal(t, 0.20, w)

	// Sum 1.10 capped at 1.0.
	assert.Equal(t, 1.0, a.RiskScore)
	assert.Equal(t, RecommendHighRisk, a.Recommendation)
}

func TestScoreYoungAccountHalfPenalty(t *testing.T) {
	facts := healthyFacts(1000)
	facts.AccountTenureDays = f(60)
	a := NewScorer().Score("item-1", facts)
	w, ok := factorWeight(a, "new_account")
	require.True(t, ok)
	assert.Equal(t, 0.075, w)
}

func TestScoreExtremeRatioIsAnomaly(t *testing.T) {
	facts := healthyFacts(10000)
	// 10000 / 900 > 5x the 30-day average.
	a := NewScorer().Score("item-1", facts)
	assert.Equal(t, RecommendAnomalyDetected, a.Recommendation)
	assert.Contains(t, a.Flags, "amount_anomaly")
}

func TestScoreNoContextIsInsufficientData(t *testing.T) {
	a := NewScorer().Score("item-1", policy.Facts{Amount: 1000, Currency: "USD"})
	assert.Equal(t, RecommendInsufficientData, a.Recommendation)
	assert.Equal(t, 0.5, a.Confidence)
	assert.Equal(t, 0.0, a.ConfidenceByCategory["account"])
}

func TestScoreDeterministic(t *testing.T) {
	facts := healthyFacts(4500)
	facts.ReturnCount90d = f(2)
	s := NewScorer()
	a := s.Score("item-1", facts)
	b := s.Score("item-1", facts)
	assert.Equal(t, a.RiskScore, b.RiskScore)
	assert.Equal(t, a.Recommendation, b.Recommendation)
	assert.Equal(t, a.RiskFactors, b.RiskFactors)
}

func TestMarshalForcesAdvisoryBooleans(t *testing.T) {
	a := NewScorer().Score("item-1", healthyFacts(1000))
	raw, err := json.Marshal(a)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, true, decoded["is_advisory"])
	assert.Equal(t, true, decoded["requires_human_review"])
}

func TestUnmarshalRejectsNonAdvisoryPayload(t *testing.T) {
	var a Analysis
	err := json.Unmarshal([]byte(`{"id":"a1","is_advisory":false}`), &a)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"id":"a1","requires_human_review":false}`), &a)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"id":"a1","is_advisory":true,"requires_human_review":true}`), &a)
	assert.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
}
