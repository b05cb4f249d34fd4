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

// Package policy implements the versioned, effective-dated rule engine that
// routes and gates check items.
//
// A Policy has one or more PolicyVersions; exactly one version per policy
// is current. A version carries ordered PolicyRules. Rules are evaluated
// independently (every enabled rule whose conditions all hold contributes
// its actions) in (priority desc, created_at asc) order. Conditions within
// one rule are conjunctive.
//
// Condition fields read from a closed set of item facts plus four derived
// ratios. A ratio with a missing or zero denominator is NULL and any
// condition over it evaluates to false.
package policy
