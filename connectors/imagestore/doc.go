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

// Package imagestore provides the check image storage backends: S3, GCS,
// Azure Blob, and an in-memory demo store for local development. The
// backend is selected once at startup from IMAGE_STORE_BACKEND.
//
// All backends key objects as "{tenant_id}/{image_id}", so tenant
// isolation holds at the object-key level even if a bucket is shared.
package imagestore
