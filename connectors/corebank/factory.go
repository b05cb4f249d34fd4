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

package corebank

import (
	"fmt"

	"clearcheck/platform/checks"
	"clearcheck/platform/shared/config"
)

// New builds the provider selected by cfg.ProviderBackend.
func New(cfg *config.Config) (checks.CheckItemProvider, error) {
	switch cfg.ProviderBackend {
	case "demo":
		return NewDemoProvider(), nil
	case "http":
		if cfg.ProviderURL == "" {
			return nil, fmt.Errorf("CHECK_PROVIDER_URL is required for the http provider")
		}
		return NewHTTPProvider(cfg.ProviderURL, cfg.ProviderAPIKey)
	default:
		return nil, fmt.Errorf("unknown check provider backend %q", cfg.ProviderBackend)
	}
}
