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
Package errs defines the closed error taxonomy used across all ClearCheck
services.

Every error that crosses a component boundary is an *errs.Error carrying a
hierarchical code (category prefix + number), a suggested HTTP status, and a
client-safe message. The dispatch layer maps these to the wire format; raw
internal errors are never serialized to clients outside development.

Categories:

	AUTH_1xxx   authentication (credentials, tokens, MFA, lockout, CSRF)
	AUTHZ_2xxx  authorization (permissions, entitlements, dual control)
	VAL_3xxx    request validation
	RES_4xxx    resource lifecycle (not found, expired, conflict)
	BIZ_5xxx    business rules (state machine, policy, AI acknowledgment)
	SYS_6xxx    system failures (internal, database, external, rate limit)

Use errors.Is with the package sentinels, or errs.CodeOf to extract the code
from a wrapped chain.
*/
package errs
