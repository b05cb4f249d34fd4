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

// Package images serves check images through one-time access tokens.
//
// A token is an opaque UUID row consumable exactly once: the consume
// path burns it with a conditional UPDATE and commits before fetching
// the image bytes, so an adapter failure after commit still leaves the
// token spent and the client must re-mint. Responses carry no-store
// cache headers; token URLs must never end up in access logs.
package images
