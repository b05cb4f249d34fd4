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
	"time"
)

// MaxBatchMint caps one batch mint request.
const MaxBatchMint = 10

// AccessToken is one single-use image grant.
type AccessToken struct {
	ID          string `json:"token_id"`
	TenantID    string `json:"-"`
	ImageID     string `json:"image_id"`
	CheckItemID string `json:"check_item_id,omitempty"`
	CreatedBy   string `json:"-"`

	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	UsedByIP  string     `json:"-"`
	UsedByUA  string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
}

// MintedToken is the mint response shape.
type MintedToken struct {
	TokenID   string    `json:"token_id"`
	ImageURL  string    `json:"image_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MintInput names one image to grant access to.
type MintInput struct {
	CheckItemID string `json:"check_item_id"`
	ImageID     string `json:"image_id"`
	TTLSeconds  int    `json:"ttl_seconds,omitempty"`
}

// Image is fetched bytes plus their media type.
type Image struct {
	Data        []byte
	ContentType string
}

// Store fetches image bytes from a backend. Implementations live in
// connectors and are selected at startup.
type Store interface {
	Fetch(ctx context.Context, tenantID, imageID string) (*Image, error)
}
