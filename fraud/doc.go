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

// Package fraud implements opt-in cross-tenant fraud indicator sharing.
//
// Raw event detail never leaves the owning tenant. What crosses tenant
// boundaries is HMAC-SHA256 hashes of normalized indicators under a
// network-wide pepper, plus coarsened month and amount buckets. Matches
// surface as per-tenant alerts carrying aggregate reasons and counts,
// never the matching artifacts themselves, and aggregate statistics are
// suppressed below the privacy threshold of distinct contributing
// institutions.
package fraud
