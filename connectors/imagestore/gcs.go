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
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"clearcheck/platform/images"
	"clearcheck/platform/shared/errs"
)

// GCSStore serves check images from a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore builds the client from application default credentials,
// or a service-account key file when provided.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Fetch downloads one image object.
func (s *GCSStore) Fetch(ctx context.Context, tenantID, imageID string) (*images.Image, error) {
	key := tenantID + "/" + imageID
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errs.ErrNotFound.WithMessage("Image not found")
		}
		return nil, errs.ErrExternalService.WithCause(fmt.Errorf("gcs open %s: %w", key, err))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errs.ErrExternalService.WithCause(fmt.Errorf("gcs read %s: %w", key, err))
	}
	return &images.Image{Data: data, ContentType: reader.Attrs.ContentType}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error { return s.client.Close() }
