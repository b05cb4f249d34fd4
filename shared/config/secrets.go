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
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsFetcher abstracts the Secrets Manager call for testing.
type secretsFetcher interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// newSecretsFetcher is replaced in tests.
var newSecretsFetcher = func(ctx context.Context) (secretsFetcher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// applySecretsManager overlays signing keys and peppers from a JSON secret.
// Expected keys: secret_key, image_signing_key, csrf_secret_key,
// network_pepper, network_pepper_version, network_pepper_prior,
// network_pepper_prior_version.
func (c *Config) applySecretsManager(ctx context.Context, name string) error {
	client, err := newSecretsFetcher(ctx)
	if err != nil {
		return err
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return fmt.Errorf("secret %s has no string payload", name)
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return fmt.Errorf("parse secret payload: %w", err)
	}

	overlay := func(dst *string, key string) {
		if v, ok := values[key]; ok && v != "" {
			*dst = v
		}
	}
	overlay(&c.SecretKey, "secret_key")
	overlay(&c.ImageSigningKey, "image_signing_key")
	overlay(&c.CSRFSecretKey, "csrf_secret_key")
	overlay(&c.NetworkPepper, "network_pepper")
	overlay(&c.NetworkPepperVersion, "network_pepper_version")
	overlay(&c.NetworkPepperPrior, "network_pepper_prior")
	overlay(&c.NetworkPepperPriorVersion, "network_pepper_prior_version")
	return nil
}
