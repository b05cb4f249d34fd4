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

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Indicator field prefixes. Prefixing prevents cross-field hash collisions
// (a routing number can never match an account hash).
const (
	prefixRouting     = "routing:"
	prefixPayee       = "payee:"
	prefixAccount     = "account:"
	prefixCheck       = "check:"
	prefixFingerprint = "fingerprint:"
)

// Pepper is one network secret with its version tag.
type Pepper struct {
	Secret  string
	Version string
}

// Hasher mints indicator hashes with the current pepper and matches
// against current and prior during rotation.
type Hasher struct {
	current Pepper
	prior   *Pepper
}

// NewHasher creates a hasher. prior may be nil outside rotation windows.
func NewHasher(current Pepper, prior *Pepper) *Hasher {
	return &Hasher{current: current, prior: prior}
}

// CurrentVersion is the pepper version stored alongside minted artifacts.
func (h *Hasher) CurrentVersion() string { return h.current.Version }

// MatchVersions lists every pepper version an incoming hash may carry.
func (h *Hasher) MatchVersions() []string {
	versions := []string{h.current.Version}
	if h.prior != nil {
		versions = append(versions, h.prior.Version)
	}
	return versions
}

func hmacHex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *Hasher) mint(prefix, normalized string) string {
	return hmacHex(h.current.Secret, prefix+normalized)
}

// HashRouting hashes a normalized routing number.
func (h *Hasher) HashRouting(normalized string) string {
	return h.mint(prefixRouting, normalized)
}

// HashPayee hashes a normalized payee name.
func (h *Hasher) HashPayee(normalized string) string {
	return h.mint(prefixPayee, normalized)
}

// HashAccount hashes a normalized account partial.
func (h *Hasher) HashAccount(normalized string) string {
	return h.mint(prefixAccount, normalized)
}

// HashCheckNumber hashes a normalized check number.
func (h *Hasher) HashCheckNumber(normalized string) string {
	return h.mint(prefixCheck, normalized)
}

// Matches reports whether a stored hash equals the indicator under the
// current or, during rotation, the prior pepper.
func (h *Hasher) Matches(stored, prefix, normalized string) bool {
	if hmac.Equal([]byte(stored), []byte(hmacHex(h.current.Secret, prefix+normalized))) {
		return true
	}
	if h.prior != nil {
		return hmac.Equal([]byte(stored), []byte(hmacHex(h.prior.Secret, prefix+normalized)))
	}
	return false
}

// FingerprintInput carries the normalized fields available for the
// composite fingerprint. Empty fields are omitted.
type FingerprintInput struct {
	Routing     string
	Amount      float64
	HasAmount   bool
	Date        time.Time
	HasDate     bool
	CheckNumber string
}

// Fingerprint computes the composite check fingerprint: prefixed
// components sorted and pipe-joined, then HMAC'd under the current pepper.
func (h *Hasher) Fingerprint(in FingerprintInput) string {
	var components []string
	if in.Routing != "" {
		components = append(components, prefixRouting+in.Routing)
	}
	if in.HasAmount {
		components = append(components, "amount:"+AmountBucket(in.Amount))
	}
	if in.HasDate {
		components = append(components, "date:"+MonthBucket(in.Date))
	}
	if in.CheckNumber != "" {
		components = append(components, prefixCheck+in.CheckNumber)
	}
	sort.Strings(components)
	return hmacHex(h.current.Secret, prefixFingerprint+strings.Join(components, "|"))
}

// amountBucketBounds are the coarsened dollar bands shared artifacts
// carry instead of exact amounts.
var amountBucketBounds = []struct {
	upper float64
	label string
}{
	{100, "0-100"},
	{500, "100-500"},
	{1000, "500-1000"},
	{5000, "1000-5000"},
	{10000, "5000-10000"},
	{25000, "10000-25000"},
	{50000, "25000-50000"},
}

// AmountBucket coarsens an amount to its shared band.
func AmountBucket(amount float64) string {
	for _, b := range amountBucketBounds {
		if amount < b.upper {
			return b.label
		}
	}
	return "50000+"
}

// MonthBucket coarsens a date to "yyyy_mm" in UTC.
func MonthBucket(t time.Time) string {
	return fmt.Sprintf("%04d_%02d", t.UTC().Year(), int(t.UTC().Month()))
}
