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

/*
Package tenant carries the per-request tenant context and enforces the
tenant-isolation contract on database access.

Every query against a tenant-scoped table must include a tenant_id predicate
bound to the caller's tenant. The Scope wrapper validates this before the
query reaches the database and fails closed: a query without a matching
predicate returns an IsolationError instead of executing. Single-key
get-by-id reads are allowed, but callers must pass the returned row's
tenant_id through VerifyRow, which converts a mismatch into not-found.

Violations are logged to the dedicated security channel. In strict mode
(any non-development environment) the request is aborted; permissive mode
logs a warning and lets the query run, and exists for development only.
*/
package tenant
