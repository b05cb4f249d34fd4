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

package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockNarrator rewrites the deterministic explanation into reviewer
// prose via a Bedrock model. Strictly presentational: the score,
// recommendation, factors, and flags are computed before it runs and are
// never touched.
type BedrockNarrator struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockNarrator builds the narrator with SigV4 credentials from the
// default AWS chain.
func NewBedrockNarrator(ctx context.Context, region, modelID string) (*BedrockNarrator, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config for Bedrock (region %s): %w", region, err)
	}
	return &BedrockNarrator{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  modelID,
	}, nil
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Narrate returns a short human-readable summary of the analysis.
func (n *BedrockNarrator) Narrate(ctx context.Context, a *Analysis) (string, error) {
	factors := make([]string, 0, len(a.RiskFactors))
	for _, f := range a.RiskFactors {
		factors = append(factors, fmt.Sprintf("%s (weight %.2f): %s", f.Factor, f.Weight, f.Description))
	}
	prompt := fmt.Sprintf(
		"Summarize this check-item risk assessment for a bank operations reviewer in two sentences. "+
			"Do not add facts, numbers, or recommendations beyond what is listed.\n"+
			"Risk score: %.2f\nRecommendation: %s\nFactors:\n%s",
		a.RiskScore, a.Recommendation, strings.Join(factors, "\n"))

	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        200,
		Temperature:      0,
		Messages:         []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	output, err := n.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(n.model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", fmt.Errorf("parse bedrock response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("bedrock response empty")
	}
	return strings.TrimSpace(resp.Content[0].Text), nil
}
