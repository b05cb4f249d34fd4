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
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML overlay shape. Only non-secret settings are
// accepted from files; secrets come from the environment or Secrets Manager.
type fileConfig struct {
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	AccessTokenExpireMinutes int `yaml:"access_token_expire_minutes"`
	RefreshTokenExpireDays   int `yaml:"refresh_token_expire_days"`
	ImageSignedURLTTLSeconds int `yaml:"image_signed_url_ttl_seconds"`

	DualControlThreshold  float64 `yaml:"dual_control_threshold"`
	DefaultSLAHours       int     `yaml:"default_sla_hours"`
	FraudPrivacyThreshold int     `yaml:"fraud_privacy_threshold"`

	TrustedProxyIPs []string `yaml:"trusted_proxy_ips"`
	CORSOrigins     []string `yaml:"cors_origins"`

	CookieSecure   *bool  `yaml:"cookie_secure"`
	CookieSameSite string `yaml:"cookie_samesite"`
	CookieDomain   string `yaml:"cookie_domain"`

	ImageStoreBackend string `yaml:"image_store_backend"`
	ImageStoreBucket  string `yaml:"image_store_bucket"`
	ProviderBackend   string `yaml:"check_provider_backend"`
	ProviderURL       string `yaml:"check_provider_url"`

	AdvisorNarrative *bool  `yaml:"advisor_narrative"`
	BedrockRegion    string `yaml:"bedrock_region"`
	BedrockModelID   string `yaml:"bedrock_model_id"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if fc.Environment != "" {
		c.Environment = fc.Environment
	}
	if fc.Port != 0 {
		c.Port = fc.Port
	}
	if fc.DatabaseURL != "" {
		c.DatabaseURL = fc.DatabaseURL
	}
	if fc.RedisURL != "" {
		c.RedisURL = fc.RedisURL
	}
	if fc.AccessTokenExpireMinutes != 0 {
		c.AccessTokenExpire = time.Duration(fc.AccessTokenExpireMinutes) * time.Minute
	}
	if fc.RefreshTokenExpireDays != 0 {
		c.RefreshTokenExpire = time.Duration(fc.RefreshTokenExpireDays) * 24 * time.Hour
	}
	if fc.ImageSignedURLTTLSeconds != 0 {
		c.ImageSignedURLTTL = time.Duration(fc.ImageSignedURLTTLSeconds) * time.Second
	}
	if fc.DualControlThreshold != 0 {
		c.DualControlThreshold = fc.DualControlThreshold
	}
	if fc.DefaultSLAHours != 0 {
		c.DefaultSLAHours = fc.DefaultSLAHours
	}
	if fc.FraudPrivacyThreshold != 0 {
		c.FraudPrivacyThreshold = fc.FraudPrivacyThreshold
	}
	if len(fc.TrustedProxyIPs) > 0 {
		c.TrustedProxyIPs = fc.TrustedProxyIPs
	}
	if len(fc.CORSOrigins) > 0 {
		c.CORSOrigins = fc.CORSOrigins
	}
	if fc.CookieSecure != nil {
		c.CookieSecure = *fc.CookieSecure
	}
	if fc.CookieSameSite != "" {
		c.CookieSameSite = fc.CookieSameSite
	}
	if fc.CookieDomain != "" {
		c.CookieDomain = fc.CookieDomain
	}
	if fc.ImageStoreBackend != "" {
		c.ImageStoreBackend = fc.ImageStoreBackend
	}
	if fc.ImageStoreBucket != "" {
		c.ImageStoreBucket = fc.ImageStoreBucket
	}
	if fc.ProviderBackend != "" {
		c.ProviderBackend = fc.ProviderBackend
	}
	if fc.ProviderURL != "" {
		c.ProviderURL = fc.ProviderURL
	}
	if fc.AdvisorNarrative != nil {
		c.AdvisorNarrative = *fc.AdvisorNarrative
	}
	if fc.BedrockRegion != "" {
		c.BedrockRegion = fc.BedrockRegion
	}
	if fc.BedrockModelID != "" {
		c.BedrockModelID = fc.BedrockModelID
	}
	return nil
}
