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
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"clearcheck/platform/images"
	"clearcheck/platform/shared/errs"
)

// AzureStore serves check images from an Azure Blob container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore builds the client. A connection string wins; otherwise
// the account URL with DefaultAzureCredential is used.
func NewAzureStore(connectionString, accountURL, container string) (*AzureStore, error) {
	if connectionString != "" {
		client, err := azblob.NewClientFromConnectionString(connectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("create azure blob client: %w", err)
		}
		return &AzureStore{client: client, container: container}, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure blob client: %w", err)
	}
	return &AzureStore{client: client, container: container}, nil
}

// Fetch downloads one image blob.
func (s *AzureStore) Fetch(ctx context.Context, tenantID, imageID string) (*images.Image, error) {
	key := tenantID + "/" + imageID
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, errs.ErrNotFound.WithMessage("Image not found")
		}
		return nil, errs.ErrExternalService.WithCause(fmt.Errorf("azure download %s: %w", key, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.ErrExternalService.WithCause(fmt.Errorf("azure read %s: %w", key, err))
	}
	contentType := ""
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}
	return &images.Image{Data: data, ContentType: contentType}, nil
}
