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
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcheck/platform/shared/errs"
)

func TestDemoStoreIsDeterministic(t *testing.T) {
	store := NewDemoStore()

	first, err := store.Fetch(context.Background(), "tenant-1", "img-front-001")
	require.NoError(t, err)
	second, err := store.Fetch(context.Background(), "tenant-1", "img-front-001")
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, "image/png", first.ContentType)
}

func TestDemoStoreVariesByKey(t *testing.T) {
	store := NewDemoStore()

	a, err := store.Fetch(context.Background(), "tenant-1", "img-front-001")
	require.NoError(t, err)
	b, err := store.Fetch(context.Background(), "tenant-2", "img-front-001")
	require.NoError(t, err)

	assert.NotEqual(t, a.Data, b.Data)
}

func TestDemoStoreRendersValidPNG(t *testing.T) {
	store := NewDemoStore()

	img, err := store.Fetch(context.Background(), "tenant-1", "img-back-042")
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	bounds := decoded.Bounds()
	assert.Equal(t, 200, bounds.Dx())
	assert.Equal(t, 90, bounds.Dy())
}

func TestDemoStoreRejectsEmptyImageID(t *testing.T) {
	store := NewDemoStore()

	_, err := store.Fetch(context.Background(), "tenant-1", "")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
