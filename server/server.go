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
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"clearcheck/platform/audit"
	"clearcheck/platform/auth"
	"clearcheck/platform/checks"
	"clearcheck/platform/decision"
	"clearcheck/platform/fraud"
	"clearcheck/platform/images"
	"clearcheck/platform/policy"
	"clearcheck/platform/shared/config"
	"clearcheck/platform/shared/logger"
)

// Handlers is the full set of API handlers the server mounts.
type Handlers struct {
	Auth      *auth.Handler
	Admin     *auth.AdminHandler
	Checks    *checks.Handler
	Decisions *decision.Handler
	Policies  *policy.Handler
	Images    *images.Handler
	Audit     *audit.Handler
	Fraud     *fraud.Handler
}

// Server is the assembled HTTP API.
type Server struct {
	cfg     *config.Config
	db      *sql.DB
	redis   *redis.Client
	authn   Authenticator
	auditor *audit.Service
	limiter Limiter
	log     *logger.Logger

	router *mux.Router
	http   *http.Server
}

// New assembles the router. Redis may be nil; rate limiting then falls back
// to the in-process limiter.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client, authn Authenticator, auditor *audit.Service, h Handlers) *Server {
	s := &Server{
		cfg:     cfg,
		db:      db,
		redis:   rdb,
		authn:   authn,
		auditor: auditor,
		log:     logger.New("server"),
	}
	if rdb != nil {
		s.limiter = NewRedisLimiter(rdb)
	} else {
		s.limiter = NewMemoryLimiter()
	}
	s.router = s.buildRouter(h)
	return s
}

func (s *Server) buildRouter(h Handlers) *mux.Router {
	root := mux.NewRouter()
	root.Use(s.requestID, s.recoverPanics, s.securityHeaders, s.observeRequests)

	root.HandleFunc("/health", s.health).Methods(http.MethodGet)
	root.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Public routes: login/refresh/logout and the one-time image URLs.
	public := root.PathPrefix("/api/v1").Subrouter()
	public.Use(s.publicRateLimit)
	if h.Auth != nil {
		h.Auth.RegisterPublicRoutes(public)
	}
	if h.Images != nil {
		h.Images.RegisterPublicRoutes(public)
	}

	// Everything else requires a bearer token.
	api := root.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authenticate, s.apiRateLimit, s.requirePermission)
	if h.Auth != nil {
		h.Auth.RegisterRoutes(api)
	}
	if h.Admin != nil {
		h.Admin.RegisterRoutes(api)
	}
	if h.Checks != nil {
		h.Checks.RegisterRoutes(api)
	}
	if h.Decisions != nil {
		h.Decisions.RegisterRoutes(api)
	}
	if h.Policies != nil {
		h.Policies.RegisterRoutes(api)
	}
	if h.Images != nil {
		h.Images.RegisterRoutes(api)
	}
	if h.Audit != nil {
		h.Audit.RegisterRoutes(api)
	}
	if h.Fraud != nil {
		h.Fraud.RegisterRoutes(api)
	}

	return root
}

// Handler returns the router wrapped with CORS, ready to serve.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-CSRF-Token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler(s.router)
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("", "", "HTTP server listening", map[string]interface{}{"port": s.cfg.Port})
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info("", "", "Shutting down HTTP server", nil)
	return s.http.Shutdown(shutdownCtx)
}
