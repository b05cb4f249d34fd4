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
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"clearcheck/platform/audit"
	"clearcheck/platform/auth"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/httpx"
	"clearcheck/platform/tenant"
)

// Rate limit budgets. Login is deliberately tight; the authenticated API
// limits are per user and per tenant.
const (
	loginLimitPerMinute  = 5
	userLimitPerMinute   = 120
	tenantLimitPerMinute = 600
	rateWindow           = time.Minute
)

// Limiter counts events per key within a sliding window.
type Limiter interface {
	// Allow records one event and reports whether the key stays within
	// limit, plus how long until the window frees up when it does not.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

// RedisLimiter is the shared limiter for multi-process deployments. It keeps
// a sorted set of event timestamps per key.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter wraps an existing client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow implements Limiter with a Redis sliding window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := time.Now()
	redisKey := "ratelimit:" + key
	minScore := now.Add(-window).UnixNano()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(minScore, 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.Expire(ctx, redisKey, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	if countCmd.Val() < int64(limit) {
		return true, 0, nil
	}

	retryAfter := window
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		oldestAt := time.Unix(0, int64(oldest[0].Score))
		retryAfter = window - now.Sub(oldestAt)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
	}
	return false, retryAfter, nil
}

// MemoryLimiter is the single-process fallback used when Redis is not
// configured.
type MemoryLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

// NewMemoryLimiter creates the in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{events: make(map[string][]time.Time), now: time.Now}
}

// Allow implements Limiter with an in-memory sliding window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)
	kept := l.events[key][:0]
	for _, t := range l.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.events[key] = append(kept, now)

	if len(kept) < limit {
		return true, 0, nil
	}
	retryAfter := window - now.Sub(kept[0])
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter, nil
}

// unauthenticatedLimits are the per-IP budgets on public endpoints.
var unauthenticatedLimits = map[string]int{
	"/api/v1/auth/login":   loginLimitPerMinute,
	"/api/v1/auth/refresh": 30,
}

// publicRateLimit enforces per-IP budgets before authentication.
func (s *Server) publicRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, limited := unauthenticatedLimits[r.URL.Path]
		if !limited {
			next.ServeHTTP(w, r)
			return
		}

		ip := auth.ClientIP(r, s.cfg.TrustedProxyIPs)
		key := "ip:" + ip + ":" + r.URL.Path
		if !s.allow(w, r, key, limit, tenant.Context{IPAddress: ip}) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// apiRateLimit enforces per-user and per-tenant budgets after
// authentication.
func (s *Server) apiRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := tenant.FromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if !s.allow(w, r, "user:"+tc.UserID, userLimitPerMinute, tc) {
			return
		}
		if !s.allow(w, r, "tenant:"+tc.TenantID, tenantLimitPerMinute, tc) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request, key string, limit int, tc tenant.Context) bool {
	allowed, retryAfter, err := s.limiter.Allow(r.Context(), key, limit, rateWindow)
	if err != nil {
		// A broken limiter must not take the API down with it.
		s.log.Warn(tc.TenantID, tc.RequestID, "Rate limiter unavailable, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return true
	}
	if allowed {
		return true
	}

	if _, err := s.auditor.Record(r.Context(), tc, audit.Event{
		Action:      audit.ActionRateLimitExceeded,
		Description: "Rate limit exceeded",
		Extra: map[string]interface{}{
			"key":    key,
			"limit":  limit,
			"path":   r.URL.Path,
			"method": r.Method,
		},
	}); err != nil {
		s.log.Error(tc.TenantID, tc.RequestID, "Rate limit audit write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
	httpx.WriteError(w, r, errs.ErrRateLimitExceeded)
	return false
}
