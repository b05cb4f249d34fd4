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

// Package auth implements the authentication and session layer: password
// login with failed-attempt lockout, TOTP MFA, access/refresh token
// issuance with mandatory rotation, CSRF pairing, per-user IP allowlists,
// and the short-lived signed tokens that gate check image fetches.
//
// Two signing keys are in play. SECRET_KEY signs access and refresh
// tokens; IMAGE_SIGNING_KEY signs image URL tokens. The keys are kept
// separate so a leaked image URL can never be replayed as an API
// credential, and config validation rejects them being equal outside
// development.
package auth
