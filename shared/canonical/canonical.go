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

// Package canonical produces a deterministic JSON encoding for hashing:
// recursively sorted object keys, no insignificant whitespace, UTF-8, and
// RFC 3339 UTC timestamps. Both the audit hash chain and decision evidence
// seals hash this encoding, so its byte layout is part of the stored-data
// contract and must not change.
package canonical

import (
	"encoding/json"
	"fmt"
)

// Marshal returns the canonical JSON encoding of v.
//
// The value is first round-tripped through encoding/json so that structs
// collapse to maps; encoding/json then emits map keys in sorted order with
// no whitespace, which gives a stable byte sequence for any equal value.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical: normalize: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical: remarshal: %w", err)
	}
	return out, nil
}

// MarshalString is Marshal returning a string, with "null" for nil values.
// Used when building pipe-separated hash preimages.
func MarshalString(v interface{}) (string, error) {
	if v == nil {
		return "null", nil
	}
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
