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
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"clearcheck/platform/audit"
	"clearcheck/platform/policy"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

// RiskAdvisor is the capability the decision flow depends on. The
// heuristic Service is the default implementation; alternatives are
// selected at startup.
type RiskAdvisor interface {
	Analyze(ctx context.Context, tc tenant.Context, itemID string, facts policy.Facts) (*Analysis, error)
	GetAnalysis(ctx context.Context, tc tenant.Context, analysisID string) (*Analysis, error)
}

// Narrator rewrites the explanation text. Optional; the deterministic
// explanation stands when absent or failing.
type Narrator interface {
	Narrate(ctx context.Context, a *Analysis) (string, error)
}

// Service scores items, persists every analysis, and audits every
// inference.
type Service struct {
	db       *sql.DB
	scorer   *Scorer
	narrator Narrator
	auditor  *audit.Service
	log      *logger.Logger
}

// NewService creates the advisor service. narrator may be nil.
func NewService(db *sql.DB, auditor *audit.Service, narrator Narrator) *Service {
	return &Service{
		db:       db,
		scorer:   NewScorer(),
		narrator: narrator,
		auditor:  auditor,
		log:      logger.New("advisor"),
	}
}

// Analyze scores the item, stores the analysis row, and writes the
// inference audit pair.
func (s *Service) Analyze(ctx context.Context, tc tenant.Context, itemID string, facts policy.Facts) (*Analysis, error) {
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionAIInferenceRequested,
		ResourceType: "check_item",
		ResourceID:   itemID,
		Description:  "Advisory analysis requested",
		Extra:        map[string]interface{}{"model_id": ModelID, "model_version": ModelVersion},
	})

	a := s.scorer.Score(itemID, facts)
	a.ID = uuid.New().String()
	a.TenantID = tc.TenantID

	if s.narrator != nil {
		if narrative, err := s.narrator.Narrate(ctx, a); err == nil && narrative != "" {
			a.Explanation = narrative
		} else if err != nil {
			s.log.Warn(tc.TenantID, tc.RequestID, "Narrative generation failed, keeping deterministic explanation", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if err := s.store(ctx, a); err != nil {
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionAIInferenceFailed,
			ResourceType: "check_item",
			ResourceID:   itemID,
			Description:  "Advisory analysis could not be stored",
		})
		return nil, err
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionAIInferenceCompleted,
		ResourceType: "ai_analysis",
		ResourceID:   a.ID,
		Description:  "Advisory analysis stored",
		After:        a,
		Extra: map[string]interface{}{
			"check_item_id":  itemID,
			"recommendation": a.Recommendation,
			"risk_score":     a.RiskScore,
		},
	})
	return a, nil
}

func (s *Service) store(ctx context.Context, a *Analysis) error {
	factorsJSON, err := json.Marshal(a.RiskFactors)
	if err != nil {
		return errs.ErrInternal.WithCause(err)
	}
	flagsJSON, err := json.Marshal(a.Flags)
	if err != nil {
		return errs.ErrInternal.WithCause(err)
	}
	confidenceJSON, err := json.Marshal(a.ConfidenceByCategory)
	if err != nil {
		return errs.ErrInternal.WithCause(err)
	}

	_, err = tenant.NewScope(s.db, tenant.System(a.TenantID), true).ExecContext(ctx, `
		INSERT INTO ai_analyses (id, tenant_id, check_item_id, model_id, model_version,
		                         analyzed_at, recommendation, confidence, risk_score,
		                         risk_factors, flags, explanation, confidence_by_category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.TenantID, a.CheckItemID, a.ModelID, a.ModelVersion,
		a.AnalyzedAt, a.Recommendation, a.Confidence, a.RiskScore,
		factorsJSON, flagsJSON, a.Explanation, confidenceJSON,
	)
	if err != nil {
		return errs.ErrDatabase.WithCause(fmt.Errorf("insert analysis: %w", err))
	}
	return nil
}

// GetAnalysis loads one stored analysis. Decisions marked ai_assisted
// must reference a row this returns.
func (s *Service) GetAnalysis(ctx context.Context, tc tenant.Context, analysisID string) (*Analysis, error) {
	query := `
		SELECT id, tenant_id, check_item_id, model_id, model_version, analyzed_at,
		       recommendation, confidence, risk_score, risk_factors, flags,
		       explanation, confidence_by_category
		FROM ai_analyses
		WHERE tenant_id = $1 AND id = $2`

	var (
		a                                    Analysis
		factorsJSON, flagsJSON, confidenceBy []byte
	)
	err := tenant.NewScope(s.db, tc, true).QueryRowContext(ctx, query, tc.TenantID, analysisID).Scan(
		&a.ID, &a.TenantID, &a.CheckItemID, &a.ModelID, &a.ModelVersion, &a.AnalyzedAt,
		&a.Recommendation, &a.Confidence, &a.RiskScore, &factorsJSON, &flagsJSON,
		&a.Explanation, &confidenceBy,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(fmt.Errorf("get analysis: %w", err))
	}
	if len(factorsJSON) > 0 {
		if err := json.Unmarshal(factorsJSON, &a.RiskFactors); err != nil {
			return nil, errs.ErrInternal.WithCause(err)
		}
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &a.Flags); err != nil {
			return nil, errs.ErrInternal.WithCause(err)
		}
	}
	if len(confidenceBy) > 0 {
		if err := json.Unmarshal(confidenceBy, &a.ConfidenceByCategory); err != nil {
			return nil, errs.ErrInternal.WithCause(err)
		}
	}
	return &a, nil
}

// LatestForItem returns the newest analysis for an item, nil when none
// exists.
func (s *Service) LatestForItem(ctx context.Context, tc tenant.Context, itemID string) (*Analysis, error) {
	var id string
	err := tenant.NewScope(s.db, tc, true).QueryRowContext(ctx, `
		SELECT id FROM ai_analyses
		WHERE tenant_id = $1 AND check_item_id = $2
		ORDER BY analyzed_at DESC LIMIT 1`,
		tc.TenantID, itemID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	return s.GetAnalysis(ctx, tc, id)
}

func (s *Service) auditEvent(ctx context.Context, tc tenant.Context, e audit.Event) {
	if s.auditor == nil {
		return
	}
	if _, err := s.auditor.Record(ctx, tc, e); err != nil {
		s.log.Error(tc.TenantID, tc.RequestID, "Audit write failed", map[string]interface{}{
			"action": string(e.Action),
			"error":  err.Error(),
		})
	}
}
