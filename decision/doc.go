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

// Package decision implements the workflow state machine: reviewer
// recommendations, dual-control approvals, and supervisor overrides.
//
// Every decision runs inside one transaction that locks the item row,
// validates the transition and entitlement, seals an evidence snapshot
// hash-chained to the item's previous decision, inserts the immutable
// Decision row, updates the item, and writes the chained audit entry. On
// rollback a DECISION_FAILED audit record is written in a separate
// transaction so failures leave a trace.
package decision
