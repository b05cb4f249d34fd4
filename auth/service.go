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

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"clearcheck/platform/audit"
	"clearcheck/platform/shared/config"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

// dummyHash keeps the password comparison on the unknown-user path taking
// the same time as a real comparison.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

const minPasswordLength = 12

// Service implements login, refresh rotation, logout, and password change.
type Service struct {
	users    *UserRepository
	sessions *SessionRepository
	tokens   *TokenIssuer
	auditor  *audit.Service
	cfg      *config.Config
	log      *logger.Logger
}

// NewService wires the auth service.
func NewService(db *sql.DB, cfg *config.Config, auditor *audit.Service) *Service {
	return &Service{
		users:    NewUserRepository(db),
		sessions: NewSessionRepository(db),
		tokens:   NewTokenIssuer(cfg),
		auditor:  auditor,
		cfg:      cfg,
		log:      logger.New("auth"),
	}
}

// Tokens exposes the issuer for the dispatch middleware and image service.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Users exposes the user repository for the admin endpoints.
func (s *Service) Users() *UserRepository { return s.users }

// Login authenticates a user and issues a token triple. Wrong password,
// unknown user, and denied IP all return the same invalid-credentials
// error; only the lockout state discloses anything further, and then only
// the unlock time.
func (s *Service) Login(ctx context.Context, meta RequestMeta, req LoginRequest) (*LoginResult, error) {
	user, err := s.users.FindByIdentifier(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Burn a comparison so unknown users cost the same as wrong
		// passwords.
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(req.Password))
		s.auditLoginFailed(ctx, tenant.Context{RequestID: meta.RequestID, IPAddress: meta.IPAddress, UserAgent: meta.UserAgent},
			"unknown user", map[string]interface{}{"identifier": req.Username})
		return nil, errs.ErrInvalidCredentials
	}

	tc := tenant.Context{
		TenantID:  user.TenantID,
		UserID:    user.ID,
		Username:  user.Username,
		RequestID: meta.RequestID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		s.auditLoginFailed(ctx, tc, "account locked", nil)
		return nil, errs.ErrAccountLocked.WithDetails(map[string]interface{}{
			"locked_until": user.LockedUntil.UTC().Format(time.RFC3339),
		})
	}
	if !user.IsActive {
		s.auditLoginFailed(ctx, tc, "account inactive", nil)
		return nil, errs.ErrAccountInactive
	}

	if !IPAllowed(user.AllowedIPs, meta.IPAddress) {
		logger.Security().Warn(tc.TenantID, tc.RequestID, "Login denied by IP allowlist", map[string]interface{}{
			"user_id": user.ID,
			"ip":      meta.IPAddress,
		})
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionUnauthorizedAccess,
			ResourceType: "user",
			ResourceID:   user.ID,
			Description:  "Login attempt from address outside the allowlist",
		})
		return nil, errs.ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, s.handleAuthFailure(ctx, tc, user, "wrong password", errs.ErrInvalidCredentials)
	}

	if user.MFAEnabled {
		if req.MFACode == "" {
			return nil, errs.ErrMFARequired
		}
		if !VerifyTOTP(user.MFASecret, req.MFACode) {
			s.auditEvent(ctx, tc, audit.Event{
				Action:       audit.ActionMFAChallengeFailed,
				ResourceType: "user",
				ResourceID:   user.ID,
			})
			return nil, s.handleAuthFailure(ctx, tc, user, "invalid MFA code", errs.ErrMFAInvalid)
		}
	}

	if err := s.users.ResetLoginFailures(ctx, user.ID); err != nil {
		return nil, err
	}

	triple, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	tc.SessionID = triple.SessionID

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionLoginSuccess,
		ResourceType: "user",
		ResourceID:   user.ID,
	})
	s.log.Info(tc.TenantID, tc.RequestID, "Login succeeded", map[string]interface{}{
		"user_id": user.ID,
	})
	return &LoginResult{Tokens: triple, User: user}, nil
}

// handleAuthFailure counts one failure toward lockout and returns the
// caller's error.
func (s *Service) handleAuthFailure(ctx context.Context, tc tenant.Context, user *User, reason string, cause *errs.Error) error {
	attempts, lockedUntil, err := s.users.RecordLoginFailure(ctx, user.ID)
	if err != nil {
		return err
	}

	extra := map[string]interface{}{"failed_attempts": attempts}
	s.auditLoginFailed(ctx, tc, reason, extra)

	if lockedUntil != nil && attempts >= MaxFailedAttempts {
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionAccountLocked,
			ResourceType: "user",
			ResourceID:   user.ID,
			Extra:        map[string]interface{}{"locked_until": lockedUntil.UTC().Format(time.RFC3339)},
		})
		logger.Security().Warn(tc.TenantID, tc.RequestID, "Account locked after repeated failures", map[string]interface{}{
			"user_id": user.ID,
		})
	}
	return cause
}

func (s *Service) issueSession(ctx context.Context, user *User, meta RequestMeta) (TokenTriple, error) {
	session := &Session{
		TenantID:          user.TenantID,
		UserID:            user.ID,
		DeviceFingerprint: meta.DeviceFingerprint,
		IPAddress:         meta.IPAddress,
		UserAgent:         meta.UserAgent,
		ExpiresAt:         time.Now().UTC().Add(s.tokens.RefreshTTL()),
	}
	// The session ID goes into the refresh token, so allocate it first.
	session.ID = uuid.New().String()

	refresh, err := s.tokens.MintRefresh(user.ID, user.TenantID, session.ID)
	if err != nil {
		return TokenTriple{}, err
	}
	session.TokenHash = HashToken(refresh)
	if err := s.sessions.Create(ctx, session); err != nil {
		return TokenTriple{}, err
	}

	access, err := s.tokens.MintAccess(user, session.ID)
	if err != nil {
		return TokenTriple{}, err
	}
	csrf, err := NewCSRFToken()
	if err != nil {
		return TokenTriple{}, err
	}

	return TokenTriple{
		AccessToken:  access,
		RefreshToken: refresh,
		CSRFToken:    csrf,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
		SessionID:    session.ID,
	}, nil
}

// Refresh rotates a session: the presented refresh token is revoked and a
// fresh triple issued. A revoked or expired session never rotates.
func (s *Service) Refresh(ctx context.Context, meta RequestMeta, rawRefresh, csrfHeader, csrfCookie string) (*LoginResult, error) {
	if csrfHeader == "" || csrfCookie == "" ||
		subtle.ConstantTimeCompare([]byte(csrfHeader), []byte(csrfCookie)) != 1 {
		return nil, errs.ErrCSRFFailed
	}

	claims, err := s.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.FindByTokenHash(ctx, HashToken(rawRefresh))
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, errs.ErrTokenInvalid
	}
	if !session.IsActive || session.ExpiresAt.Before(time.Now()) {
		return nil, errs.ErrSessionExpired
	}

	tc := tenant.Context{
		TenantID:  session.TenantID,
		UserID:    session.UserID,
		RequestID: meta.RequestID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		SessionID: session.ID,
	}

	user, err := s.users.GetByID(ctx, tc, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, errs.ErrAccountInactive
	}
	tc.Username = user.Username

	// Rotation is mandatory; the presented token dies here whether or not
	// issuing the replacement succeeds.
	if err := s.sessions.Revoke(ctx, session.ID); err != nil {
		return nil, err
	}

	triple, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionTokenRefreshed,
		ResourceType: "user_session",
		ResourceID:   session.ID,
		Extra:        map[string]interface{}{"new_session_id": triple.SessionID},
	})
	return &LoginResult{Tokens: triple, User: user}, nil
}

// Logout revokes the presented session. It succeeds even when the token is
// already dead so clients can always clear state.
func (s *Service) Logout(ctx context.Context, meta RequestMeta, rawRefresh string) error {
	if rawRefresh == "" {
		return nil
	}
	session, err := s.sessions.FindByTokenHash(ctx, HashToken(rawRefresh))
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, session.ID); err != nil {
		return err
	}

	tc := tenant.Context{
		TenantID:  session.TenantID,
		UserID:    session.UserID,
		RequestID: meta.RequestID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		SessionID: session.ID,
	}
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionLogout,
		ResourceType: "user_session",
		ResourceID:   session.ID,
	})
	return nil
}

// ChangePassword re-verifies the current password, stores the new hash,
// and revokes every active session of the user.
func (s *Service) ChangePassword(ctx context.Context, tc tenant.Context, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return errs.ErrValidation.WithMessage("Password must be at least %d characters", minPasswordLength)
	}

	user, err := s.users.GetByID(ctx, tc, tc.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return errs.ErrNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)) != nil {
		return errs.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return errs.ErrInternal.WithCause(err)
	}
	if err := s.users.UpdatePassword(ctx, tc, user.ID, string(hash)); err != nil {
		return err
	}

	revoked, err := s.sessions.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return err
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionPasswordChanged,
		ResourceType: "user",
		ResourceID:   user.ID,
		Extra:        map[string]interface{}{"sessions_revoked": revoked},
	})
	return nil
}

// Authenticate resolves a bearer access token to its user. The user must
// still be active and belong to the token's tenant.
func (s *Service) Authenticate(ctx context.Context, rawAccess string) (*User, *Claims, error) {
	claims, err := s.tokens.VerifyAccess(rawAccess)
	if err != nil {
		return nil, nil, err
	}

	tc := tenant.Context{TenantID: claims.TenantID}
	user, err := s.users.GetByID(ctx, tc, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !user.IsActive {
		return nil, nil, errs.ErrAccountInactive
	}
	if user.TenantID != claims.TenantID {
		return nil, nil, errs.ErrTokenInvalid
	}
	return user, claims, nil
}

func (s *Service) auditLoginFailed(ctx context.Context, tc tenant.Context, reason string, extra map[string]interface{}) {
	if extra == nil {
		extra = map[string]interface{}{}
	}
	extra["reason"] = reason
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionLoginFailed,
		ResourceType: "user",
		ResourceID:   tc.UserID,
		Extra:        extra,
	})
}

// auditEvent records to the chain; an audit write failure is logged but
// never blocks the auth flow itself.
func (s *Service) auditEvent(ctx context.Context, tc tenant.Context, e audit.Event) {
	if _, err := s.auditor.Record(ctx, tc, e); err != nil {
		s.log.Error(tc.TenantID, tc.RequestID, "Audit write failed", map[string]interface{}{
			"action": string(e.Action),
			"error":  err.Error(),
		})
	}
}
