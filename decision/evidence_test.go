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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() map[string]interface{} {
	return map[string]interface{}{
		"check_item": map[string]interface{}{
			"id":     "item-1",
			"amount": 1250.50,
			"status": "in_review",
		},
		"decision": map[string]interface{}{
			"action":  "approve",
			"user_id": "u1",
		},
	}
}

func TestSealEvidenceIsDeterministic(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, h1, err := sealEvidence(sampleSnapshot(), "", now)
	require.NoError(t, err)
	_, h2, err := sealEvidence(sampleSnapshot(), "", now)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestSealAttachesMetadata(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)

	sealed, hash, err := sealEvidence(sampleSnapshot(), "", now)
	require.NoError(t, err)

	assert.Equal(t, hash, sealed[keyEvidenceHash])
	assert.Equal(t, sealVersion, sealed[keySealVersion])
	assert.Equal(t, now.Format(time.RFC3339Nano), sealed[keySealTimestamp])
	// The first decision in a chain records an explicit nil link.
	assert.Contains(t, sealed, keyPreviousHash)
	assert.Nil(t, sealed[keyPreviousHash])
}

func TestSealTimestampDoesNotAffectHash(t *testing.T) {
	_, h1, err := sealEvidence(sampleSnapshot(), "", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, h2, err := sealEvidence(sampleSnapshot(), "", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestPreviousHashChangesHash(t *testing.T) {
	now := time.Now()
	_, first, err := sealEvidence(sampleSnapshot(), "", now)
	require.NoError(t, err)
	_, chained, err := sealEvidence(sampleSnapshot(), first, now)
	require.NoError(t, err)
	assert.NotEqual(t, first, chained)
}

func TestVerifyEvidenceDetectsTampering(t *testing.T) {
	sealed, _, err := sealEvidence(sampleSnapshot(), "", time.Now())
	require.NoError(t, err)

	ok, err := VerifyEvidence(sealed)
	require.NoError(t, err)
	assert.True(t, ok)

	sealed["check_item"].(map[string]interface{})["amount"] = 9999.99
	ok, err = VerifyEvidence(sealed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyEvidenceRequiresSeal(t *testing.T) {
	_, err := VerifyEvidence(sampleSnapshot())
	assert.Error(t, err)
}

func chainedDecisions(t *testing.T, n int) []*Decision {
	t.Helper()
	now := time.Now()
	previous := ""
	decisions := make([]*Decision, 0, n)
	for i := 0; i < n; i++ {
		sealed, hash, err := sealEvidence(sampleSnapshot(), previous, now)
		require.NoError(t, err)
		decisions = append(decisions, &Decision{
			ID:               "d" + string(rune('1'+i)),
			EvidenceSnapshot: sealed,
		})
		previous = hash
	}
	return decisions
}

func TestVerifyDecisionChainAccepts(t *testing.T) {
	decisions := chainedDecisions(t, 3)
	assert.Empty(t, VerifyDecisionChain(decisions))
}

func TestVerifyDecisionChainFlagsTamperedSnapshot(t *testing.T) {
	decisions := chainedDecisions(t, 3)
	decisions[1].EvidenceSnapshot["decision"].(map[string]interface{})["action"] = "reject"

	breaks := VerifyDecisionChain(decisions)
	require.Len(t, breaks, 1)
	assert.Equal(t, decisions[1].ID, breaks[0].DecisionID)
	assert.Equal(t, 1, breaks[0].Position)
	assert.Equal(t, "evidence hash mismatch", breaks[0].Reason)
}

func TestVerifyDecisionChainFlagsBrokenLink(t *testing.T) {
	decisions := chainedDecisions(t, 3)
	// Rewriting a middle hash breaks its own seal and the next link.
	decisions[1].EvidenceSnapshot[keyEvidenceHash] = "forged"

	breaks := VerifyDecisionChain(decisions)
	require.Len(t, breaks, 2)
	assert.Equal(t, decisions[1].ID, breaks[0].DecisionID)
	assert.Equal(t, decisions[2].ID, breaks[1].DecisionID)
	assert.Equal(t, "previous evidence hash mismatch", breaks[1].Reason)
}
