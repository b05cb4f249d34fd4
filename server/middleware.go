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
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"clearcheck/platform/audit"
	"clearcheck/platform/auth"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/httpx"
	"clearcheck/platform/tenant"
)

// Authenticator resolves a bearer access token to an active user.
// *auth.Service satisfies it; tests substitute a stub.
type Authenticator interface {
	Authenticate(ctx context.Context, rawAccess string) (*auth.User, *auth.Claims, error)
}

// requestID assigns every request an ID, honoring an inbound X-Request-ID.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		r.Header.Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// securityHeaders applies the default response headers. Image routes
// override the cache and referrer policy themselves.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// recoverPanics converts a handler panic into a 500 instead of tearing the
// connection down.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("", r.Header.Get("X-Request-ID"), "Handler panic", map[string]interface{}{
					"panic":  rec,
					"path":   r.URL.Path,
					"method": r.Method,
				})
				httpx.WriteError(w, r, errs.ErrInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate requires a valid bearer access token and binds the resolved
// user and tenant context onto the request.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			httpx.WriteError(w, r, errs.ErrTokenInvalid.WithMessage("Missing bearer token"))
			return
		}

		user, claims, err := s.authn.Authenticate(r.Context(), raw)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		tc := tenant.Context{
			TenantID:  user.TenantID,
			UserID:    user.ID,
			Username:  user.Username,
			RequestID: r.Header.Get("X-Request-ID"),
			IPAddress: auth.ClientIP(r, s.cfg.TrustedProxyIPs),
			UserAgent: r.UserAgent(),
			SessionID: claims.SessionID,
		}
		ctx := tenant.NewContext(r.Context(), tc)
		ctx = auth.NewContext(ctx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission enforces the route's (resource, action) permission and
// audits every denial.
func (s *Server) requirePermission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perm, required := routePermission(r)
		if !required {
			next.ServeHTTP(w, r)
			return
		}

		user := auth.UserFromContext(r.Context())
		if user == nil {
			httpx.WriteError(w, r, errs.ErrTokenInvalid)
			return
		}
		if user.HasPermission(perm.Name()) || user.HasRole(RoleAdmin) {
			next.ServeHTTP(w, r)
			return
		}

		tc, _ := tenant.FromContext(r.Context())
		s.auditDenial(r, tc, perm)
		httpx.WriteError(w, r, errs.ErrPermissionDenied.WithDetails(map[string]interface{}{
			"resource": perm.Resource,
			"action":   perm.Action,
		}))
	})
}

func (s *Server) auditDenial(r *http.Request, tc tenant.Context, perm permission) {
	_, err := s.auditor.Record(r.Context(), tc, audit.Event{
		Action:       audit.ActionPermissionDenied,
		ResourceType: perm.Resource,
		Description:  "Permission denied: " + perm.Name(),
		Extra: map[string]interface{}{
			"resource": perm.Resource,
			"action":   perm.Action,
			"path":     r.URL.Path,
			"method":   r.Method,
		},
	})
	if err != nil {
		s.log.Error(tc.TenantID, tc.RequestID, "Denial audit write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func routePermission(r *http.Request) (permission, bool) {
	route := mux.CurrentRoute(r)
	if route == nil {
		return permission{}, false
	}
	template, err := route.GetPathTemplate()
	if err != nil {
		return permission{}, false
	}
	perm, ok := routePermissions[r.Method+" "+template]
	return perm, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
