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

// Package checks owns the check-item lifecycle: ingest from the external
// core-banking provider, derived account-context fields, policy
// application, routing, and the filtered read side reviewers work from.
//
// Ingest upserts on (tenant_id, external_item_id), so re-syncing the same
// window is idempotent. Status transitions after ingest belong to the
// decision package.
package checks
