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

// Package corebank implements the CheckItemProvider capability: the demo
// generator used for local development and tests, and the HTTP client that
// pulls presented items from a real core-banking gateway. The backend is
// selected once at startup from CHECK_PROVIDER_BACKEND.
package corebank
