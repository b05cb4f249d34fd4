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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongSecret = "0123456789abcdef0123456789abcdef-strong"

func TestDefaults(t *testing.T) {
	cfg := defaults()

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenExpire)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenExpire)
	assert.Equal(t, 90*time.Second, cfg.ImageSignedURLTTL)
	assert.Equal(t, 5000.0, cfg.DualControlThreshold)
	assert.Equal(t, 4, cfg.DefaultSLAHours)
	assert.Equal(t, 3, cfg.FraudPrivacyThreshold)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "30")
	t.Setenv("REFRESH_TOKEN_EXPIRE_DAYS", "1")
	t.Setenv("IMAGE_SIGNED_URL_TTL_SECONDS", "45")
	t.Setenv("DUAL_CONTROL_THRESHOLD", "2500.50")
	t.Setenv("TRUSTED_PROXY_IPS", "10.0.0.1, 10.0.0.2")
	t.Setenv("COOKIE_SECURE", "false")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.AccessTokenExpire)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTokenExpire)
	assert.Equal(t, 45*time.Second, cfg.ImageSignedURLTTL)
	assert.Equal(t, 2500.50, cfg.DualControlThreshold)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.TrustedProxyIPs)
	assert.False(t, cfg.CookieSecure)
}

func TestProductionRejectsWeakSecrets(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "short secret key",
			mutate:  func(c *Config) { c.SecretKey = "short" },
			wantErr: "SECRET_KEY must be at least 32 characters",
		},
		{
			name: "placeholder pepper",
			mutate: func(c *Config) {
				c.NetworkPepper = "00000000000000000000000000000000"
			},
			wantErr: "placeholder",
		},
		{
			name: "shared signing keys",
			mutate: func(c *Config) {
				c.ImageSigningKey = c.SecretKey
			},
			wantErr: "must differ",
		},
		{
			name: "prior pepper without version",
			mutate: func(c *Config) {
				c.NetworkPepperPrior = strongSecret + "-prior"
				c.NetworkPepperPriorVersion = ""
			},
			wantErr: "NETWORK_PEPPER_PRIOR_VERSION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validProductionConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProductionAcceptsStrongSecrets(t *testing.T) {
	cfg := validProductionConfig()
	assert.NoError(t, cfg.Validate())
}

func TestDevelopmentSkipsSecretChecks(t *testing.T) {
	cfg := defaults()
	cfg.SecretKey = "weak"
	assert.NoError(t, cfg.Validate())
}

func TestYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clearcheck.yaml")
	yaml := strings.Join([]string{
		"port: 9090",
		"default_sla_hours: 8",
		"cors_origins:",
		"  - https://reviewer.examplebank.com",
		"image_store_backend: s3",
		"image_store_bucket: check-images",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg := defaults()
	require.NoError(t, cfg.applyFile(path))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 8, cfg.DefaultSLAHours)
	assert.Equal(t, []string{"https://reviewer.examplebank.com"}, cfg.CORSOrigins)
	assert.Equal(t, "s3", cfg.ImageStoreBackend)
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	cfg := defaults()
	cfg.ImageStoreBackend = "ftp"
	assert.Error(t, cfg.Validate())

	cfg = defaults()
	cfg.ProviderBackend = "soap"
	assert.Error(t, cfg.Validate())
}

func validProductionConfig() *Config {
	cfg := defaults()
	cfg.Environment = EnvProduction
	cfg.DatabaseURL = "postgres://clearcheck:pw@db:5432/clearcheck"
	cfg.SecretKey = strongSecret
	cfg.ImageSigningKey = strongSecret + "-image"
	cfg.CSRFSecretKey = strongSecret + "-csrf"
	cfg.NetworkPepper = strongSecret + "-pepper"
	return cfg
}
