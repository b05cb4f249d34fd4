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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"clearcheck/platform/shared/canonical"
	"clearcheck/platform/shared/errs"
)

// Seal metadata keys. sealVersion identifies the hashing scheme; bump it
// if the canonical encoding ever changes.
const (
	sealVersion = "sha256-v1"

	keyEvidenceHash  = "evidence_hash"
	keyPreviousHash  = "previous_evidence_hash"
	keySealVersion   = "seal_version"
	keySealTimestamp = "seal_timestamp"
)

// sealEvidence hashes the snapshot (canonical JSON, sorted keys, RFC 3339
// UTC) and attaches the seal fields. previousHash is empty for the item's
// first decision and stored as nil.
func sealEvidence(snapshot map[string]interface{}, previousHash string, now time.Time) (map[string]interface{}, string, error) {
	body := make(map[string]interface{}, len(snapshot)+1)
	for k, v := range snapshot {
		switch k {
		case keyEvidenceHash, keySealVersion, keySealTimestamp:
			// Seal fields never participate in their own hash.
			continue
		}
		body[k] = v
	}
	if previousHash != "" {
		body[keyPreviousHash] = previousHash
	} else {
		body[keyPreviousHash] = nil
	}

	encoded, err := canonical.Marshal(body)
	if err != nil {
		return nil, "", errs.ErrInternal.WithCause(fmt.Errorf("canonicalize evidence: %w", err))
	}
	sum := sha256.Sum256(encoded)
	hash := hex.EncodeToString(sum[:])

	sealed := make(map[string]interface{}, len(body)+3)
	for k, v := range body {
		sealed[k] = v
	}
	sealed[keyEvidenceHash] = hash
	sealed[keySealVersion] = sealVersion
	sealed[keySealTimestamp] = now.UTC().Format(time.RFC3339Nano)
	return sealed, hash, nil
}

// VerifyEvidence recomputes one snapshot's hash against its stored seal.
func VerifyEvidence(sealed map[string]interface{}) (bool, error) {
	stored, _ := sealed[keyEvidenceHash].(string)
	if stored == "" {
		return false, errs.ErrValidation.WithMessage("Evidence snapshot has no seal")
	}
	body := make(map[string]interface{}, len(sealed))
	for k, v := range sealed {
		switch k {
		case keyEvidenceHash, keySealVersion, keySealTimestamp:
			continue
		}
		body[k] = v
	}
	encoded, err := canonical.Marshal(body)
	if err != nil {
		return false, errs.ErrInternal.WithCause(err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]) == stored, nil
}

// ChainBreak describes one failed link in an item's decision chain.
type ChainBreak struct {
	DecisionID string `json:"decision_id"`
	Position   int    `json:"position"`
	Reason     string `json:"reason"`
}

// VerifyDecisionChain checks every snapshot's own hash and each link to
// its predecessor. Decisions must be in created_at ascending order.
func VerifyDecisionChain(decisions []*Decision) []ChainBreak {
	var breaks []ChainBreak
	previousHash := ""
	for i, d := range decisions {
		ok, err := VerifyEvidence(d.EvidenceSnapshot)
		if err != nil || !ok {
			breaks = append(breaks, ChainBreak{
				DecisionID: d.ID,
				Position:   i,
				Reason:     "evidence hash mismatch",
			})
		}
		stored, _ := d.EvidenceSnapshot[keyPreviousHash].(string)
		if stored != previousHash {
			breaks = append(breaks, ChainBreak{
				DecisionID: d.ID,
				Position:   i,
				Reason:     "previous evidence hash mismatch",
			})
		}
		previousHash, _ = d.EvidenceSnapshot[keyEvidenceHash].(string)
	}
	return breaks
}
