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

package images

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"clearcheck/platform/audit"
	"clearcheck/platform/auth"
	"clearcheck/platform/checks"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

// URLSigner mints and verifies the short-lived bearer embedded in every
// signed image URL. Signing uses the dedicated image key, never the API
// token secret.
type URLSigner interface {
	MintImageURL(userID, tenantID, imageID, imageTokenID string) (string, error)
	VerifyImageURL(raw string) (*auth.Claims, error)
}

// Service mints and consumes one-time image tokens.
type Service struct {
	repo       *Repository
	items      *checks.Repository
	store      Store
	signer     URLSigner
	auditor    *audit.Service
	defaultTTL time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// NewService creates the image token service.
func NewService(repo *Repository, items *checks.Repository, store Store, signer URLSigner, auditor *audit.Service, defaultTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		items:      items,
		store:      store,
		signer:     signer,
		auditor:    auditor,
		defaultTTL: defaultTTL,
		log:        logger.New("images"),
		now:        time.Now,
	}
}

// Mint issues one token. When the input names a check item, the item
// must exist inside the caller's tenant; a foreign item reads as absent.
func (s *Service) Mint(ctx context.Context, tc tenant.Context, input MintInput) (*MintedToken, error) {
	if input.ImageID == "" {
		return nil, errs.ErrValidation.WithMessage("image_id is required")
	}
	if input.CheckItemID != "" {
		item, err := s.items.GetByID(ctx, tc, input.CheckItemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, errs.ErrNotFound.WithMessage("Check item not found")
		}
	}

	ttl := s.defaultTTL
	if input.TTLSeconds > 0 {
		ttl = time.Duration(input.TTLSeconds) * time.Second
	}

	now := s.now().UTC()
	token := &AccessToken{
		ID:          uuid.New().String(),
		TenantID:    tc.TenantID,
		ImageID:     input.ImageID,
		CheckItemID: input.CheckItemID,
		CreatedBy:   tc.UserID,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	if err := s.repo.Insert(ctx, token); err != nil {
		return nil, err
	}
	signature, err := s.signer.MintImageURL(tc.UserID, tc.TenantID, token.ImageID, token.ID)
	if err != nil {
		return nil, err
	}
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionImageTokenMinted,
		ResourceType: "image_access_token",
		ResourceID:   token.ID,
		Description:  "One-time image token minted",
		Extra: map[string]interface{}{
			"image_id":      token.ImageID,
			"check_item_id": token.CheckItemID,
			"expires_at":    token.ExpiresAt,
		},
	})
	return &MintedToken{
		TokenID:   token.ID,
		ImageURL:  fmt.Sprintf("/api/v1/images/secure/%s?sig=%s", token.ID, url.QueryEscape(signature)),
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// MintBatch mints up to MaxBatchMint tokens in one call.
func (s *Service) MintBatch(ctx context.Context, tc tenant.Context, inputs []MintInput) ([]*MintedToken, error) {
	if len(inputs) == 0 {
		return nil, errs.ErrValidation.WithMessage("At least one image is required")
	}
	if len(inputs) > MaxBatchMint {
		return nil, errs.ErrValidation.WithMessage("Batch mint is limited to %d tokens", MaxBatchMint)
	}
	minted := make([]*MintedToken, 0, len(inputs))
	for _, in := range inputs {
		m, err := s.Mint(ctx, tc, in)
		if err != nil {
			return nil, err
		}
		minted = append(minted, m)
	}
	return minted, nil
}

// ConsumeMeta carries the transport facts recorded when a token burns.
type ConsumeMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// Consume burns the token and fetches the image. The URL signature is
// the bearer credential: it must verify against the image key and be
// bound to this exact token. The burn commits before the backend fetch:
// an adapter failure afterwards still leaves the token spent.
func (s *Service) Consume(ctx context.Context, tokenID, signature string, meta ConsumeMeta) (*Image, error) {
	existing, err := s.repo.GetByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errs.ErrNotFound.WithMessage("Unknown image token")
	}

	tc := tenant.System(existing.TenantID)
	tc.IPAddress = meta.IPAddress
	tc.UserAgent = meta.UserAgent
	tc.RequestID = meta.RequestID

	claims, err := s.signer.VerifyImageURL(signature)
	if err != nil {
		if errors.Is(err, errs.ErrTokenExpired) {
			s.auditEvent(ctx, tc, audit.Event{
				Action:       audit.ActionImageTokenExpired,
				ResourceType: "image_access_token",
				ResourceID:   tokenID,
				Description:  "Expired image URL signature presented",
			})
			return nil, errs.ErrExpired.WithMessage("Image URL has expired")
		}
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionImageTokenInvalid,
			ResourceType: "image_access_token",
			ResourceID:   tokenID,
			Description:  "Invalid image URL signature presented",
		})
		return nil, errs.ErrTokenInvalid.WithMessage("Invalid image URL signature")
	}
	if claims.ImageTokenID != tokenID || claims.TenantID != existing.TenantID {
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionImageTokenInvalid,
			ResourceType: "image_access_token",
			ResourceID:   tokenID,
			Description:  "Image URL signature bound to a different grant",
		})
		return nil, errs.ErrTokenInvalid.WithMessage("Image URL signature does not match this token")
	}

	now := s.now().UTC()
	if existing.ExpiresAt.Before(now) {
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionImageTokenExpired,
			ResourceType: "image_access_token",
			ResourceID:   tokenID,
			Description:  "Expired image token presented",
		})
		return nil, errs.ErrExpired.WithMessage("Image token has expired")
	}
	if existing.UsedAt != nil {
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionImageTokenInvalid,
			ResourceType: "image_access_token",
			ResourceID:   tokenID,
			Description:  "Already-used image token presented",
		})
		return nil, errs.ErrExpired.WithMessage("Image token has already been used")
	}

	token, burned, err := s.repo.Consume(ctx, tokenID, meta.IPAddress, meta.UserAgent, now)
	if err != nil {
		return nil, err
	}
	if !burned {
		// Lost the race to a concurrent consume.
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionImageTokenInvalid,
			ResourceType: "image_access_token",
			ResourceID:   tokenID,
			Description:  "Already-used image token presented",
		})
		return nil, errs.ErrExpired.WithMessage("Image token has already been used")
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionImageTokenUsed,
		ResourceType: "image_access_token",
		ResourceID:   tokenID,
		Description:  "Image token consumed",
		Extra: map[string]interface{}{
			"image_id":      token.ImageID,
			"check_item_id": token.CheckItemID,
		},
	})

	img, err := s.store.Fetch(ctx, token.TenantID, token.ImageID)
	if err != nil {
		// The token is already burned; the client must re-mint.
		s.log.Error(token.TenantID, meta.RequestID, "image fetch failed after token burn", map[string]interface{}{
			"image_id": token.ImageID,
			"error":    err.Error(),
		})
		return nil, errs.ErrExternalService.WithMessage("Image backend unavailable; request a new token")
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionImageViewed,
		ResourceType: "check_image",
		ResourceID:   token.ImageID,
		Description:  "Check image served",
		Extra:        map[string]interface{}{"check_item_id": token.CheckItemID},
	})
	return img, nil
}

func (s *Service) auditEvent(ctx context.Context, tc tenant.Context, e audit.Event) {
	if _, err := s.auditor.Record(ctx, tc, e); err != nil {
		s.log.Error(tc.TenantID, tc.RequestID, "audit write failed", map[string]interface{}{
			"action": string(e.Action),
			"error":  err.Error(),
		})
	}
}
