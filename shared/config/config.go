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

package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names recognized by the platform.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config holds all process-wide configuration. It is loaded once at startup
// and treated as read-only afterwards.
type Config struct {
	Environment string
	Port        int

	DatabaseURL string
	RedisURL    string

	// Signing secrets. SecretKey signs access/refresh tokens,
	// ImageSigningKey signs short-lived image URLs (deliberately separate
	// keys so an image URL can never pass as an API credential).
	SecretKey       string
	ImageSigningKey string
	CSRFSecretKey   string

	// Fraud network peppers. During rotation both current and prior are
	// active: artifacts are minted with current and matched against both.
	NetworkPepper             string
	NetworkPepperVersion      string
	NetworkPepperPrior        string
	NetworkPepperPriorVersion string

	AccessTokenExpire  time.Duration
	RefreshTokenExpire time.Duration
	ImageSignedURLTTL  time.Duration

	DualControlThreshold  float64
	DefaultSLAHours       int
	FraudPrivacyThreshold int

	TrustedProxyIPs []string
	CORSOrigins     []string

	CookieSecure   bool
	CookieSameSite string
	CookieDomain   string

	// ImageStoreBackend selects the image storage connector:
	// demo, s3, gcs, or azure.
	ImageStoreBackend string
	ImageStoreBucket  string
	// ImageStoreRegion and ImageStoreEndpoint apply to the s3 backend; the
	// endpoint override targets S3-compatible stores in lower environments.
	ImageStoreRegion   string
	ImageStoreEndpoint string
	// ImageStoreCredentialsFile applies to the gcs backend.
	ImageStoreCredentialsFile string
	// Azure blob access: a connection string wins over account URL.
	ImageStoreConnectionString string
	ImageStoreAccountURL       string

	// ProviderBackend selects the core-banking item provider: demo or http.
	ProviderBackend string
	ProviderURL     string
	ProviderAPIKey  string

	// AdvisorNarrative enables Bedrock-generated narrative explanations on
	// advisory results. The scorer itself stays deterministic.
	AdvisorNarrative bool
	BedrockRegion    string
	BedrockModelID   string
}

// placeholderSecrets are values that must never survive into staging or
// production.
var placeholderSecrets = map[string]bool{
	"changeme":                         true,
	"change-me":                        true,
	"secret":                           true,
	"password":                         true,
	"dev-secret-key":                   true,
	"your-secret-key-here":             true,
	"00000000000000000000000000000000": true,
}

// Load reads configuration from the environment, applying the optional YAML
// file and Secrets Manager layers, then validates the result.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CLEARCHECK_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if name := os.Getenv("CLEARCHECK_SECRETS_NAME"); name != "" {
		if err := cfg.applySecretsManager(ctx, name); err != nil {
			return nil, fmt.Errorf("secrets manager %s: %w", name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment:           EnvDevelopment,
		Port:                  8080,
		AccessTokenExpire:     15 * time.Minute,
		RefreshTokenExpire:    7 * 24 * time.Hour,
		ImageSignedURLTTL:     90 * time.Second,
		DualControlThreshold:  5000,
		DefaultSLAHours:       4,
		FraudPrivacyThreshold: 3,
		NetworkPepperVersion:  "v1",
		CookieSecure:          true,
		CookieSameSite:        "Lax",
		ImageStoreBackend:     "demo",
		ProviderBackend:       "demo",
		BedrockModelID:        "anthropic.claude-3-haiku-20240307-v1:0",
	}
}

func (c *Config) applyEnv() {
	setString(&c.Environment, "ENVIRONMENT")
	setInt(&c.Port, "PORT")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.SecretKey, "SECRET_KEY")
	setString(&c.ImageSigningKey, "IMAGE_SIGNING_KEY")
	setString(&c.CSRFSecretKey, "CSRF_SECRET_KEY")
	setString(&c.NetworkPepper, "NETWORK_PEPPER")
	setString(&c.NetworkPepperVersion, "NETWORK_PEPPER_VERSION")
	setString(&c.NetworkPepperPrior, "NETWORK_PEPPER_PRIOR")
	setString(&c.NetworkPepperPriorVersion, "NETWORK_PEPPER_PRIOR_VERSION")
	setMinutes(&c.AccessTokenExpire, "ACCESS_TOKEN_EXPIRE_MINUTES")
	setDays(&c.RefreshTokenExpire, "REFRESH_TOKEN_EXPIRE_DAYS")
	setSeconds(&c.ImageSignedURLTTL, "IMAGE_SIGNED_URL_TTL_SECONDS")
	setFloat(&c.DualControlThreshold, "DUAL_CONTROL_THRESHOLD")
	setInt(&c.DefaultSLAHours, "DEFAULT_SLA_HOURS")
	setInt(&c.FraudPrivacyThreshold, "FRAUD_PRIVACY_THRESHOLD")
	setList(&c.TrustedProxyIPs, "TRUSTED_PROXY_IPS")
	setList(&c.CORSOrigins, "CORS_ORIGINS")
	setBool(&c.CookieSecure, "COOKIE_SECURE")
	setString(&c.CookieSameSite, "COOKIE_SAMESITE")
	setString(&c.CookieDomain, "COOKIE_DOMAIN")
	setString(&c.ImageStoreBackend, "IMAGE_STORE_BACKEND")
	setString(&c.ImageStoreBucket, "IMAGE_STORE_BUCKET")
	setString(&c.ImageStoreRegion, "IMAGE_STORE_REGION")
	setString(&c.ImageStoreEndpoint, "IMAGE_STORE_ENDPOINT")
	setString(&c.ImageStoreCredentialsFile, "IMAGE_STORE_CREDENTIALS_FILE")
	setString(&c.ImageStoreConnectionString, "IMAGE_STORE_CONNECTION_STRING")
	setString(&c.ImageStoreAccountURL, "IMAGE_STORE_ACCOUNT_URL")
	setString(&c.ProviderBackend, "CHECK_PROVIDER_BACKEND")
	setString(&c.ProviderURL, "CHECK_PROVIDER_URL")
	setString(&c.ProviderAPIKey, "CHECK_PROVIDER_API_KEY")
	setBool(&c.AdvisorNarrative, "ADVISOR_NARRATIVE")
	setString(&c.BedrockRegion, "BEDROCK_REGION")
	setString(&c.BedrockModelID, "BEDROCK_MODEL_ID")
}

// IsDevelopment reports whether the process runs with relaxed validation.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment || c.Environment == "dev" || c.Environment == "test"
}

// Validate checks configuration consistency. In any non-development
// environment weak or placeholder secrets abort startup.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	switch c.ImageStoreBackend {
	case "demo", "s3", "gcs", "azure":
	default:
		return fmt.Errorf("unknown image store backend %q", c.ImageStoreBackend)
	}

	switch c.ProviderBackend {
	case "demo", "http":
	default:
		return fmt.Errorf("unknown check provider backend %q", c.ProviderBackend)
	}

	if c.IsDevelopment() {
		return nil
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in %s", c.Environment)
	}

	secrets := map[string]string{
		"SECRET_KEY":        c.SecretKey,
		"IMAGE_SIGNING_KEY": c.ImageSigningKey,
		"CSRF_SECRET_KEY":   c.CSRFSecretKey,
		"NETWORK_PEPPER":    c.NetworkPepper,
	}
	for name, value := range secrets {
		if err := checkSecretStrength(name, value); err != nil {
			return err
		}
	}
	if c.SecretKey == c.ImageSigningKey {
		return fmt.Errorf("SECRET_KEY and IMAGE_SIGNING_KEY must differ")
	}
	if c.NetworkPepperPrior != "" && c.NetworkPepperPriorVersion == "" {
		return fmt.Errorf("NETWORK_PEPPER_PRIOR_VERSION is required when a prior pepper is set")
	}
	return nil
}

func checkSecretStrength(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters (got %d)", name, len(value))
	}
	if placeholderSecrets[strings.ToLower(value)] {
		return fmt.Errorf("%s matches a known placeholder value", name)
	}
	return nil
}

// env helpers

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*dst = out
	}
}

func setMinutes(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Minute
		}
	}
}

func setDays(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * 24 * time.Hour
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}
