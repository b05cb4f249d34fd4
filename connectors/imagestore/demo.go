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

package imagestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"

	"clearcheck/platform/images"
	"clearcheck/platform/shared/errs"
)

// DemoStore renders a deterministic placeholder image per key. It keeps
// demos and tests working with no cloud credentials.
type DemoStore struct{}

// NewDemoStore creates the demo backend.
func NewDemoStore() *DemoStore { return &DemoStore{} }

// Fetch renders a 200x90 PNG whose pattern derives from the key, so the
// same image ID always produces the same bytes.
func (s *DemoStore) Fetch(_ context.Context, tenantID, imageID string) (*images.Image, error) {
	if imageID == "" {
		return nil, errs.ErrNotFound.WithMessage("Image not found")
	}
	seed := sha256.Sum256([]byte(tenantID + "/" + imageID))

	const w, h = 200, 90
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) % (len(seed) - 4)
			v := binary.BigEndian.Uint32(seed[i : i+4])
			shade := uint8(200 + (v+uint32(x*y))%56)
			img.SetRGBA(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	// A dark band where the MICR line would sit.
	for x := 0; x < w; x++ {
		img.SetRGBA(x, h-10, color.RGBA{R: 40, G: 40, B: 40, A: 255})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errs.ErrInternal.WithCause(err)
	}
	return &images.Image{Data: buf.Bytes(), ContentType: "image/png"}, nil
}
