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

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"clearcheck/platform/advisor"
	"clearcheck/platform/audit"
	"clearcheck/platform/auth"
	"clearcheck/platform/checks"
	"clearcheck/platform/connectors/corebank"
	"clearcheck/platform/connectors/imagestore"
	"clearcheck/platform/decision"
	"clearcheck/platform/entitlement"
	"clearcheck/platform/fraud"
	"clearcheck/platform/images"
	"clearcheck/platform/policy"
	"clearcheck/platform/server"
	"clearcheck/platform/shared/config"
	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.New("main")

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
	}

	imageStore, err := imagestore.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("image store: %w", err)
	}
	provider, err := corebank.New(cfg)
	if err != nil {
		return fmt.Errorf("check provider: %w", err)
	}

	var narrator advisor.Narrator
	if cfg.AdvisorNarrative {
		narrator, err = advisor.NewBedrockNarrator(ctx, cfg.BedrockRegion, cfg.BedrockModelID)
		if err != nil {
			return fmt.Errorf("bedrock narrator: %w", err)
		}
	}

	auditor := audit.NewService(db)
	authService := auth.NewService(db, cfg, auditor)
	entitlements := entitlement.NewService(db)
	policyEngine := policy.NewEngine(db, cfg.DualControlThreshold)
	policyService := policy.NewService(policy.NewRepository(db), auditor)
	riskAdvisor := advisor.NewService(db, auditor, narrator)

	checksRepo := checks.NewRepository(db)
	checksService := checks.NewService(checksRepo, provider, policyEngine, riskAdvisor, auditor, cfg.DefaultSLAHours)
	decisionService := decision.NewService(db, checksRepo, entitlements, riskAdvisor, auditor, cfg.DualControlThreshold)
	imageService := images.NewService(images.NewRepository(db), checksRepo, imageStore, authService.Tokens(), auditor, cfg.ImageSignedURLTTL)

	hasher := fraud.NewHasher(
		fraud.Pepper{Secret: cfg.NetworkPepper, Version: cfg.NetworkPepperVersion},
		priorPepper(cfg),
	)
	fraudService := fraud.NewService(fraud.NewRepository(db), hasher, auditor, cfg.FraudPrivacyThreshold)

	srv := server.New(cfg, db, rdb, authService, auditor, server.Handlers{
		Auth:      auth.NewHandler(authService, cfg),
		Admin:     auth.NewAdminHandler(authService),
		Checks:    checks.NewHandler(checksService),
		Decisions: decision.NewHandler(decisionService),
		Policies:  policy.NewHandler(policyService),
		Images:    images.NewHandler(imageService, cfg.TrustedProxyIPs),
		Audit:     audit.NewHandler(auditor),
		Fraud:     fraud.NewHandler(fraudService),
	})

	if _, err := auditor.Record(ctx, tenant.System("platform"), audit.Event{
		Action:      audit.ActionSystemStarted,
		Description: "ClearCheck platform started",
		Extra: map[string]interface{}{
			"environment":    cfg.Environment,
			"image_store":    cfg.ImageStoreBackend,
			"check_provider": cfg.ProviderBackend,
		},
	}); err != nil {
		log.Warn("", "", "Startup audit write failed", map[string]interface{}{"error": err.Error()})
	}

	log.Info("", "", "Starting ClearCheck platform", map[string]interface{}{
		"environment": cfg.Environment,
		"port":        cfg.Port,
	})
	return srv.Run(ctx)
}

func openDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func priorPepper(cfg *config.Config) *fraud.Pepper {
	if cfg.NetworkPepperPrior == "" {
		return nil
	}
	return &fraud.Pepper{Secret: cfg.NetworkPepperPrior, Version: cfg.NetworkPepperPriorVersion}
}
