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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clearcheck/platform/checks"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 10 * 1024 * 1024
	maxRetries      = 3
	retryDelay      = 200 * time.Millisecond
)

// HTTPProvider pulls presented items from a core-banking gateway over REST.
// Expected endpoints:
//
//	GET {base}/tenants/{tenant}/presented-items?amount_min=N
//	GET {base}/tenants/{tenant}/accounts/{account}/context
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logger.Logger
}

// NewHTTPProvider validates the base URL and builds the client.
func NewHTTPProvider(baseURL, apiKey string) (*HTTPProvider, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("provider url must use http or https, got %q", parsed.Scheme)
	}
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     logger.New("corebank"),
	}, nil
}

// FetchPresentedItems pulls the pending batch for one tenant.
func (p *HTTPProvider) FetchPresentedItems(ctx context.Context, tenantID string, amountMin float64) ([]*checks.PresentedItem, error) {
	endpoint := fmt.Sprintf("%s/tenants/%s/presented-items", p.baseURL, url.PathEscape(tenantID))
	if amountMin > 0 {
		endpoint += "?amount_min=" + strconv.FormatFloat(amountMin, 'f', -1, 64)
	}

	var items []*checks.PresentedItem
	if err := p.getJSON(ctx, tenantID, endpoint, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchAccountContext pulls behavior stats for one account. A gateway 404
// means the provider has no data for the account, not an error.
func (p *HTTPProvider) FetchAccountContext(ctx context.Context, tenantID, accountID string) (*checks.AccountContext, error) {
	endpoint := fmt.Sprintf("%s/tenants/%s/accounts/%s/context",
		p.baseURL, url.PathEscape(tenantID), url.PathEscape(accountID))

	var account checks.AccountContext
	err := p.getJSON(ctx, tenantID, endpoint, &account)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, tenantID, endpoint string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay << (attempt - 1)):
			}
		}

		retryable, err := p.doOnce(ctx, tenantID, endpoint, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		p.log.Warn(tenantID, "", "provider request failed, retrying", map[string]interface{}{
			"endpoint": endpoint,
			"attempt":  attempt + 1,
			"error":    err.Error(),
		})
	}
	return lastErr
}

func (p *HTTPProvider) doOnce(ctx context.Context, tenantID, endpoint string, out interface{}) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, errs.ErrExternalService.WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return true, errs.ErrExternalService.WithCause(fmt.Errorf("provider request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return true, errs.ErrExternalService.WithCause(fmt.Errorf("provider read: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(body, out); err != nil {
			return false, errs.ErrExternalService.WithCause(fmt.Errorf("provider decode: %w", err))
		}
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, errs.ErrNotFound.WithMessage("Provider has no data for this resource")
	case resp.StatusCode >= 500:
		return true, errs.ErrExternalService.WithMessage("Provider returned %d", resp.StatusCode)
	default:
		return false, errs.ErrExternalService.WithMessage("Provider returned %d", resp.StatusCode)
	}
}
