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
	"context"
	"fmt"

	"clearcheck/platform/images"
	"clearcheck/platform/shared/config"
)

// New builds the image store selected by cfg.ImageStoreBackend.
func New(ctx context.Context, cfg *config.Config) (images.Store, error) {
	switch cfg.ImageStoreBackend {
	case "demo":
		return NewDemoStore(), nil
	case "s3":
		return NewS3Store(ctx, cfg.ImageStoreRegion, cfg.ImageStoreBucket, cfg.ImageStoreEndpoint)
	case "gcs":
		return NewGCSStore(ctx, cfg.ImageStoreBucket, cfg.ImageStoreCredentialsFile)
	case "azure":
		return NewAzureStore(cfg.ImageStoreConnectionString, cfg.ImageStoreAccountURL, cfg.ImageStoreBucket)
	default:
		return nil, fmt.Errorf("unknown image store backend %q", cfg.ImageStoreBackend)
	}
}
