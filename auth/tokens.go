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
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"clearcheck/platform/shared/config"
	"clearcheck/platform/shared/errs"
)

// Token types carried in the "type" claim. Verification rejects a token
// presented for the wrong purpose even though the signature checks out.
const (
	TokenTypeAccess   = "access"
	TokenTypeRefresh  = "refresh"
	TokenTypeImageURL = "image_url"
)

// Claims is the JWT claim set for every token the platform signs.
type Claims struct {
	jwt.RegisteredClaims

	TokenType   string   `json:"type"`
	TenantID    string   `json:"tenant_id"`
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	SessionID   string   `json:"sid,omitempty"`

	// Image URL token claims.
	ImageID      string `json:"image_id,omitempty"`
	ImageTokenID string `json:"image_token_id,omitempty"`
}

// TokenIssuer mints and verifies the platform's signed tokens.
type TokenIssuer struct {
	secretKey []byte
	imageKey  []byte

	accessTTL  time.Duration
	refreshTTL time.Duration
	imageTTL   time.Duration

	now func() time.Time
}

// NewTokenIssuer creates an issuer from loaded configuration.
func NewTokenIssuer(cfg *config.Config) *TokenIssuer {
	return &TokenIssuer{
		secretKey:  []byte(cfg.SecretKey),
		imageKey:   []byte(cfg.ImageSigningKey),
		accessTTL:  cfg.AccessTokenExpire,
		refreshTTL: cfg.RefreshTokenExpire,
		imageTTL:   cfg.ImageSignedURLTTL,
		now:        time.Now,
	}
}

// AccessTTL reports the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// MintAccess issues a short-lived access token carrying the user's resolved
// roles and permissions.
func (t *TokenIssuer) MintAccess(u *User, sessionID string) (string, error) {
	now := t.now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
			ID:        uuid.New().String(),
		},
		TokenType:   TokenTypeAccess,
		TenantID:    u.TenantID,
		Username:    u.Username,
		Roles:       u.Roles,
		Permissions: u.Permissions,
		SessionID:   sessionID,
	}
	return t.sign(claims, t.secretKey)
}

// MintRefresh issues the long-lived refresh token bound to one session.
// The token itself is opaque to clients; the server keys the session row by
// its hash.
func (t *TokenIssuer) MintRefresh(userID, tenantID, sessionID string) (string, error) {
	now := t.now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
			ID:        uuid.New().String(),
		},
		TokenType: TokenTypeRefresh,
		TenantID:  tenantID,
		SessionID: sessionID,
	}
	return t.sign(claims, t.secretKey)
}

// MintImageURL issues the 90-second bearer that accompanies one image
// fetch. It is signed with the dedicated image key and carries the one-time
// token ID the image endpoint consumes.
func (t *TokenIssuer) MintImageURL(userID, tenantID, imageID, imageTokenID string) (string, error) {
	now := t.now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.imageTTL)),
			ID:        uuid.New().String(),
		},
		TokenType:    TokenTypeImageURL,
		TenantID:     tenantID,
		ImageID:      imageID,
		ImageTokenID: imageTokenID,
	}
	return t.sign(claims, t.imageKey)
}

// VerifyAccess validates an access token and returns its claims.
func (t *TokenIssuer) VerifyAccess(raw string) (*Claims, error) {
	return t.verify(raw, TokenTypeAccess, t.secretKey)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (t *TokenIssuer) VerifyRefresh(raw string) (*Claims, error) {
	return t.verify(raw, TokenTypeRefresh, t.secretKey)
}

// VerifyImageURL validates an image URL token against the image key.
func (t *TokenIssuer) VerifyImageURL(raw string) (*Claims, error) {
	return t.verify(raw, TokenTypeImageURL, t.imageKey)
}

func (t *TokenIssuer) sign(claims *Claims, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", errs.ErrInternal.WithCause(err)
	}
	return signed, nil
}

func (t *TokenIssuer) verify(raw, wantType string, key []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.ErrTokenInvalid.WithMessage("Unexpected signing method")
		}
		return key, nil
	}, jwt.WithTimeFunc(func() time.Time { return t.now() }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.ErrTokenExpired
		}
		return nil, errs.ErrTokenInvalid.WithCause(err)
	}
	if !token.Valid {
		return nil, errs.ErrTokenInvalid
	}
	if claims.TokenType != wantType {
		return nil, errs.ErrTokenInvalid.WithMessage("Wrong token type")
	}
	return claims, nil
}

// NewCSRFToken mints the 32-byte random CSRF value paired with each
// refresh token.
func NewCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errs.ErrInternal.WithCause(err)
	}
	return hex.EncodeToString(buf), nil
}
