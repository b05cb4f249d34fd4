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
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"clearcheck/platform/shared/errs"
)

// businessSuffixes are stripped from payee names as whole words.
var businessSuffixes = map[string]bool{
	"LLC": true, "INC": true, "CORP": true, "CO": true, "LTD": true,
	"LP": true, "LLP": true, "PC": true, "PLC": true, "DBA": true, "AKA": true,
}

// stripMarks removes Unicode combining marks after NFD decomposition, so
// "José" and "Jose" normalize identically.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeRouting strips non-digits and requires exactly nine.
func NormalizeRouting(s string) (string, error) {
	d := digitsOnly(s)
	if len(d) != 9 {
		return "", errs.ErrValidation.WithMessage("Routing number must have exactly 9 digits, got %d", len(d))
	}
	return d, nil
}

// NormalizePayee canonicalizes a payee name: upper-case, combining marks
// and punctuation removed, business suffixes stripped as whole words,
// whitespace collapsed. Byte-exact reproducibility is the contract; the
// same payee must hash identically on every institution.
func NormalizePayee(s string) string {
	cleaned, _, err := transform.String(stripMarks, s)
	if err != nil {
		cleaned = s
	}
	cleaned = strings.ToUpper(cleaned)

	// Punctuation is deleted outright, so "L.L.C." collapses to the
	// strippable LLC suffix.
	var b strings.Builder
	for _, r := range cleaned {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if businessSuffixes[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// NormalizeAccount emits the privacy-preserving partial "L{len}-{last4}".
// Fewer than four digits is rejected rather than padded.
func NormalizeAccount(s string) (string, error) {
	d := digitsOnly(s)
	if len(d) < 4 {
		return "", errs.ErrValidation.WithMessage("Account number must have at least 4 digits")
	}
	return fmt.Sprintf("L%d-%s", len(d), d[len(d)-4:]), nil
}

// NormalizeCheckNumber strips non-digits and leading zeros, preserving a
// single "0" for all-zero input.
func NormalizeCheckNumber(s string) string {
	d := strings.TrimLeft(digitsOnly(s), "0")
	if d == "" && digitsOnly(s) != "" {
		return "0"
	}
	return d
}
