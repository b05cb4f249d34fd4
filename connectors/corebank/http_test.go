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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcheck/platform/checks"
	"clearcheck/platform/shared/errs"
)

func TestHTTPProviderRejectsBadScheme(t *testing.T) {
	_, err := NewHTTPProvider("ftp://core.example.com", "")
	require.Error(t, err)
}

func TestHTTPFetchPresentedItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenants/tenant-1/presented-items", r.URL.Path)
		assert.Equal(t, "250", r.URL.Query().Get("amount_min"))
		assert.Equal(t, "key-123", r.Header.Get("X-API-Key"))
		assert.Equal(t, "tenant-1", r.Header.Get("X-Tenant-ID"))
		json.NewEncoder(w).Encode([]*checks.PresentedItem{
			{ExternalItemID: "ext-1", Amount: 1200, Currency: "USD", AccountID: "acct-1"},
		})
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(srv.URL, "key-123")
	require.NoError(t, err)

	items, err := p.FetchPresentedItems(context.Background(), "tenant-1", 250)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ext-1", items[0].ExternalItemID)
	assert.Equal(t, 1200.0, items[0].Amount)
}

func TestHTTPFetchAccountContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenants/tenant-1/accounts/acct-9/context", r.URL.Path)
		balance := 5000.0
		json.NewEncoder(w).Encode(&checks.AccountContext{
			AccountType:    "business",
			CurrentBalance: &balance,
		})
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(srv.URL, "")
	require.NoError(t, err)

	account, err := p.FetchAccountContext(context.Background(), "tenant-1", "acct-9")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "business", account.AccountType)
	assert.Equal(t, 5000.0, *account.CurrentBalance)
}

func TestHTTPAccountNotFoundMeansNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(srv.URL, "")
	require.NoError(t, err)

	account, err := p.FetchAccountContext(context.Background(), "tenant-1", "acct-missing")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestHTTPRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode([]*checks.PresentedItem{})
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(srv.URL, "")
	require.NoError(t, err)

	_, err = p.FetchPresentedItems(context.Background(), "tenant-1", 0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(srv.URL, "")
	require.NoError(t, err)

	_, err = p.FetchPresentedItems(context.Background(), "tenant-1", 0)
	require.ErrorIs(t, err, errs.ErrExternalService)
	assert.Equal(t, int32(1), calls.Load())
}
