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

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterAllowsWithinBudget(t *testing.T) {
	l := NewMemoryLimiter()

	for i := 0; i < 5; i++ {
		allowed, _, err := l.Allow(context.Background(), "k", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, retryAfter, err := l.Allow(context.Background(), "k", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestMemoryLimiterWindowSlides(t *testing.T) {
	l := NewMemoryLimiter()
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		allowed, _, err := l.Allow(context.Background(), "k", 5, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, _, err := l.Allow(context.Background(), "k", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	now = now.Add(61 * time.Second)
	allowed, _, err = l.Allow(context.Background(), "k", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryLimiterIsolatesKeys(t *testing.T) {
	l := NewMemoryLimiter()

	for i := 0; i < 5; i++ {
		_, _, err := l.Allow(context.Background(), "a", 5, time.Minute)
		require.NoError(t, err)
	}
	allowed, _, err := l.Allow(context.Background(), "b", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiterEnforcesLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client)
	for i := 0; i < 5; i++ {
		allowed, _, err := l.Allow(context.Background(), "login:1.2.3.4", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, retryAfter, err := l.Allow(context.Background(), "login:1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)
}

func TestLoginRateLimitReturns429(t *testing.T) {
	s, mock, done := newTestServer(t, &stubAuthn{})
	defer done()

	router := s.buildRouter(Handlers{})
	public := router.PathPrefix("/api/v1").Subrouter()
	public.Use(s.publicRateLimit)
	public.HandleFunc("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)

	for i := 0; i < loginLimitPerMinute; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.9:50000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "attempt %d", i+1)
	}

	expectAuditWrite(mock) // RATE_LIMIT_EXCEEDED

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.9:50000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "SYS_6004")
}

func TestLoginRateLimitIsPerIP(t *testing.T) {
	s, _, done := newTestServer(t, &stubAuthn{})
	defer done()

	router := s.buildRouter(Handlers{})
	public := router.PathPrefix("/api/v1").Subrouter()
	public.Use(s.publicRateLimit)
	public.HandleFunc("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)

	for i := 0; i < loginLimitPerMinute; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.2:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
