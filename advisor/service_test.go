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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcheck/platform/audit"
	"clearcheck/platform/tenant"
)

func expectAuditWrite(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT integrity_hash FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"integrity_hash"}))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

type stubNarrator struct {
	text string
	err  error
}

func (s stubNarrator) Narrate(_ context.Context, _ *Analysis) (string, error) {
	return s.text, s.err
}

func TestAnalyzeStoresRecordAndAuditsInference(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	expectAuditWrite(mock) // AI_INFERENCE_REQUESTED
	mock.ExpectExec("INSERT INTO ai_analyses").WillReturnResult(sqlmock.NewResult(1, 1))
	expectAuditWrite(mock) // AI_INFERENCE_COMPLETED

	svc := NewService(db, audit.NewService(db), nil)
	tc := tenant.Context{TenantID: "t1", UserID: "u1"}

	a, err := svc.Analyze(context.Background(), tc, "item-1", healthyFacts(1000))
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "t1", a.TenantID)
	assert.Equal(t, "item-1", a.CheckItemID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyzeNarratorReplacesExplanationOnly(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	expectAuditWrite(mock)
	mock.ExpectExec("INSERT INTO ai_analyses").WillReturnResult(sqlmock.NewResult(1, 1))
	expectAuditWrite(mock)

	svc := NewService(db, audit.NewService(db), stubNarrator{text: "Reviewer summary."})
	a, err := svc.Analyze(context.Background(), tenant.Context{TenantID: "t1"}, "item-1", healthyFacts(1000))
	require.NoError(t, err)
	assert.Equal(t, "Reviewer summary.", a.Explanation)
	assert.Equal(t, RecommendLikelyLegitimate, a.Recommendation)
	assert.Equal(t, 0.0, a.RiskScore)
}

func TestAnalyzeNarratorFailureKeepsDeterministicText(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	expectAuditWrite(mock)
	mock.ExpectExec("INSERT INTO ai_analyses").WillReturnResult(sqlmock.NewResult(1, 1))
	expectAuditWrite(mock)

	svc := NewService(db, audit.NewService(db), stubNarrator{err: assert.AnError})
	a, err := svc.Analyze(context.Background(), tenant.Context{TenantID: "t1"}, "item-1", healthyFacts(1000))
	require.NoError(t, err)
	assert.NotEmpty(t, a.Explanation)
}

func TestGetAnalysisScopedToTenant(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	cols := []string{
		"id", "tenant_id", "check_item_id", "model_id", "model_version", "analyzed_at",
		"recommendation", "confidence", "risk_score", "risk_factors", "flags",
		"explanation", "confidence_by_category",
	}
	mock.ExpectQuery("SELECT id, tenant_id, .* FROM ai_analyses").
		WithArgs("t1", "a1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a1", "t1", "item-1", ModelID, ModelVersion, now,
				RecommendNeedsReview, 0.95, 0.35,
				`[{"factor":"new_account","weight":0.15,"description":"Account opened 10 days ago","value":10}]`,
				`["new_account"]`, "Risk score 0.35.", `{"account":0.9}`))

	svc := NewService(db, nil, nil)
	a, err := svc.GetAnalysis(context.Background(), tenant.Context{TenantID: "t1"}, "a1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, RecommendNeedsReview, a.Recommendation)
	require.Len(t, a.RiskFactors, 1)
	assert.Equal(t, "new_account", a.RiskFactors[0].Factor)

	// Unknown id resolves to nil, not an error.
	mock.ExpectQuery("SELECT id, tenant_id, .* FROM ai_analyses").
		WithArgs("t2", "a1").
		WillReturnRows(sqlmock.NewRows(cols))
	missing, err := svc.GetAnalysis(context.Background(), tenant.Context{TenantID: "t2"}, "a1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
