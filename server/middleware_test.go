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

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcheck/platform/audit"
	"clearcheck/platform/auth"
	"clearcheck/platform/shared/config"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
)

type stubAuthn struct {
	user *auth.User
	err  error
}

func (s *stubAuthn) Authenticate(_ context.Context, _ string) (*auth.User, *auth.Claims, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.user, &auth.Claims{TenantID: s.user.TenantID, SessionID: "sess-1"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: config.EnvDevelopment,
		Port:        8080,
	}
}

func newTestServer(t *testing.T, authn Authenticator) (*Server, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	s := &Server{
		cfg:     testConfig(),
		db:      db,
		authn:   authn,
		auditor: audit.NewService(db),
		limiter: NewMemoryLimiter(),
		log:     logger.New("server"),
	}
	s.router = s.buildRouter(Handlers{})
	return s, mock, func() { db.Close() }
}

// expectAuditWrite mocks one full chained audit transaction.
func expectAuditWrite(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT integrity_hash FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"integrity_hash"}))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func protectedRoute(s *Server, reached *bool) http.Handler {
	r := s.buildRouter(Handlers{})
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authenticate, s.apiRateLimit, s.requirePermission)
	api.HandleFunc("/checks", func(w http.ResponseWriter, _ *http.Request) {
		*reached = true
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	s, _, done := newTestServer(t, &stubAuthn{})
	defer done()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDHonorsInboundHeader(t *testing.T) {
	s, _, done := newTestServer(t, &stubAuthn{})
	defer done()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	s, _, done := newTestServer(t, &stubAuthn{})
	defer done()

	var reached bool
	router := protectedRoute(s, &reached)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	s, _, done := newTestServer(t, &stubAuthn{err: errs.ErrTokenExpired})
	defer done()

	var reached bool
	router := protectedRoute(s, &reached)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checks", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestPermissionGrantedReachesHandler(t *testing.T) {
	user := &auth.User{
		ID: "u1", TenantID: "t1", Username: "reviewer",
		Permissions: []string{"check_item:read"},
	}
	s, _, done := newTestServer(t, &stubAuthn{user: user})
	defer done()

	var reached bool
	router := protectedRoute(s, &reached)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checks", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestPermissionDeniedIsAudited(t *testing.T) {
	user := &auth.User{ID: "u1", TenantID: "t1", Username: "viewer"}
	s, mock, done := newTestServer(t, &stubAuthn{user: user})
	defer done()

	expectAuditWrite(mock)

	var reached bool
	router := protectedRoute(s, &reached)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checks", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)
	assert.Contains(t, rec.Body.String(), "AUTHZ_2001")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminRoleBypassesPermissionTable(t *testing.T) {
	user := &auth.User{ID: "u1", TenantID: "t1", Username: "root", Roles: []string{RoleAdmin}}
	s, _, done := newTestServer(t, &stubAuthn{user: user})
	defer done()

	var reached bool
	router := protectedRoute(s, &reached)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checks", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestRecoverPanicsReturns500(t *testing.T) {
	s, _, done := newTestServer(t, &stubAuthn{})
	defer done()

	r := s.buildRouter(Handlers{})
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("unexpected")
	}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "SYS_6001")
}

func mintRoute(s *Server, reached *bool) http.Handler {
	r := s.buildRouter(Handlers{})
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authenticate, s.apiRateLimit, s.requirePermission)
	api.HandleFunc("/images/tokens", func(w http.ResponseWriter, _ *http.Request) {
		*reached = true
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)
	return r
}

// The mint route is gated on check_image:view, the permission name role
// seeds carry for image access.
func TestImageMintRequiresCheckImagePermission(t *testing.T) {
	user := &auth.User{
		ID: "u1", TenantID: "t1", Username: "reviewer",
		Permissions: []string{"check_image:view"},
	}
	s, _, done := newTestServer(t, &stubAuthn{user: user})
	defer done()

	var reached bool
	router := mintRoute(s, &reached)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/tokens", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, reached)
}

func TestImageMintDeniedWithoutCheckImagePermission(t *testing.T) {
	user := &auth.User{
		ID: "u1", TenantID: "t1", Username: "reviewer",
		Permissions: []string{"check_item:read"},
	}
	s, mock, done := newTestServer(t, &stubAuthn{user: user})
	defer done()

	var reached bool
	router := mintRoute(s, &reached)

	expectAuditWrite(mock) // AUTH_PERMISSION_DENIED

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/tokens", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)
	assert.NoError(t, mock.ExpectationsWereMet())
}
