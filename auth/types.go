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

package auth

import "time"

// User is one operator account. Usernames are unique per tenant and the
// login lookup resolves them globally, so the pair is effectively a global
// handle.
type User struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name,omitempty"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	MFAEnabled   bool       `json:"mfa_enabled"`
	MFASecret    string     `json:"-"`
	AllowedIPs   []string   `json:"-"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`

	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`

	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasPermission checks the user's resolved permission set.
func (u *User) HasPermission(perm string) bool {
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// HasRole checks the user's resolved role set.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Session is one live refresh-token handle. The raw refresh token is never
// stored; TokenHash is sha256(raw) hex.
type Session struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	UserID            string     `json:"user_id"`
	TokenHash         string     `json:"-"`
	DeviceFingerprint string     `json:"device_fingerprint,omitempty"`
	IPAddress         string     `json:"ip_address,omitempty"`
	UserAgent         string     `json:"user_agent,omitempty"`
	ExpiresAt         time.Time  `json:"expires_at"`
	IsActive          bool       `json:"is_active"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// LoginRequest is the login payload. MFACode is required only when the
// account has MFA enabled.
type LoginRequest struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	MFACode           string `json:"mfa_code,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
}

// TokenTriple is one issued access/refresh/CSRF set. The handler decides
// transport: access token in the body, refresh and CSRF in cookies.
type TokenTriple struct {
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	ExpiresIn    int
	SessionID    string
}

// LoginResult is what a successful login returns to the handler.
type LoginResult struct {
	Tokens TokenTriple
	User   *User
}

// RequestMeta carries the transport facts the service audits with.
type RequestMeta struct {
	IPAddress         string
	UserAgent         string
	RequestID         string
	DeviceFingerprint string
}
