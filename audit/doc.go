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
Package audit writes the append-only, per-tenant hash-chained audit log and
verifies its integrity.

Every record carries an integrity_hash over its own canonical serialization
and a previous_hash pointing at the predecessor's integrity_hash within the
same tenant chain (the first record points at "genesis"). Rehashing the
chain detects any after-the-fact modification.

Writes for one tenant are serialized with a Postgres transaction-scoped
advisory lock keyed on the tenant ID, keeping each chain linear under
concurrent writers. Chains of different tenants are independent.

The application database role has INSERT and SELECT only on audit_logs;
UPDATE and DELETE are denied and additionally blocked by a trigger (see
scripts/schema.sql). Retention is by partition drop, never row deletes.
*/
package audit
