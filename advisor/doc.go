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

// Package advisor produces the advisory risk analysis attached to check
// items. The scorer is deterministic: weighted bounded factors summed and
// capped at 1.0. Output never drives workflow state; every analysis
// serializes with is_advisory and requires_human_review locked to true,
// and decisions citing an analysis are validated against the stored
// record.
//
// An optional Bedrock-backed narrative generator rewrites the explanation
// text. It never changes the score, recommendation, or flags.
package advisor
