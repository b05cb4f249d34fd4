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

package checks

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcheck/platform/audit"
	"clearcheck/platform/policy"
	"clearcheck/platform/tenant"
)

func f(v float64) *float64 { return &v }

type fakeProvider struct {
	items   []*PresentedItem
	account *AccountContext
	err     error
}

func (p *fakeProvider) FetchPresentedItems(_ context.Context, _ string, _ float64) ([]*PresentedItem, error) {
	return p.items, p.err
}

func (p *fakeProvider) FetchAccountContext(_ context.Context, _, _ string) (*AccountContext, error) {
	return p.account, nil
}

func testTenant() tenant.Context {
	return tenant.Context{TenantID: "t1", UserID: "u1", RequestID: "req-1"}
}

func expectAuditWrite(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT integrity_hash FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"integrity_hash"}))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func expectNoActivePolicy(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT v.id, .* FROM policy_versions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "policy_id", "version_number", "effective_date", "is_current", "created_at"}))
}

func presentedItem(amount float64) *PresentedItem {
	return &PresentedItem{
		ExternalItemID: "EXT-1",
		Amount:         amount,
		Currency:       "USD",
		AccountID:      "acct-1",
		AccountMasked:  "****1234",
		RoutingNumber:  "021000021",
		CheckNumber:    "1042",
		PresentedDate:  time.Now().Add(-time.Hour),
		ItemType:       ItemTypeTransit,
	}
}

func newSyncService(t *testing.T, provider CheckItemProvider) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	svc := NewService(NewRepository(db), provider, policy.NewEngine(db, 5000), nil, audit.NewService(db), 4)
	return svc, mock, func() { db.Close() }
}

func TestSyncIngestsNewItem(t *testing.T) {
	provider := &fakeProvider{
		items:   []*PresentedItem{presentedItem(500)},
		account: &AccountContext{AccountType: "checking", TenureDays: f(1000), CurrentBalance: f(20000)},
	}
	svc, mock, done := newSyncService(t, provider)
	defer done()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM check_items").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	expectNoActivePolicy(mock)
	mock.ExpectQuery("INSERT INTO check_items").
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow("item-1", true))
	expectAuditWrite(mock) // ITEM_INGESTED
	expectAuditWrite(mock) // ITEM_SYNC_COMPLETED

	result, err := svc.SyncPresentedItems(context.Background(), testTenant(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncResyncUpdatesWithoutIngestAudit(t *testing.T) {
	provider := &fakeProvider{items: []*PresentedItem{presentedItem(500)}}
	svc, mock, done := newSyncService(t, provider)
	defer done()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM check_items").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	expectNoActivePolicy(mock)
	mock.ExpectQuery("INSERT INTO check_items").
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow("item-1", false))
	expectAuditWrite(mock) // only ITEM_SYNC_COMPLETED

	result, err := svc.SyncPresentedItems(context.Background(), testTenant(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncDualControlByAmountFloor(t *testing.T) {
	provider := &fakeProvider{items: []*PresentedItem{presentedItem(10000)}}
	svc, mock, done := newSyncService(t, provider)
	defer done()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM check_items").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	expectNoActivePolicy(mock)
	mock.ExpectQuery("INSERT INTO check_items").
		WithArgs(sqlmock.AnyArg(), "t1", "EXT-1", 10000.0, "USD", "acct-1", "****1234",
			"021000021", "1042", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), ItemTypeTransit, StatusNew, policy.RiskLow, 25,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), true, "policy", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow("item-1", true))
	expectAuditWrite(mock)
	expectAuditWrite(mock)

	result, err := svc.SyncPresentedItems(context.Background(), testTenant(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncOneFailureDoesNotAbortRun(t *testing.T) {
	provider := &fakeProvider{items: []*PresentedItem{presentedItem(500), presentedItem(600)}}
	provider.items[1].ExternalItemID = "EXT-2"
	svc, mock, done := newSyncService(t, provider)
	defer done()

	// First item fails at upsert.
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM check_items").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	expectNoActivePolicy(mock)
	mock.ExpectQuery("INSERT INTO check_items").WillReturnError(assert.AnError)

	// Second item succeeds.
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM check_items").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	expectNoActivePolicy(mock)
	mock.ExpectQuery("INSERT INTO check_items").
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow("item-2", true))
	expectAuditWrite(mock)
	expectAuditWrite(mock)

	result, err := svc.SyncPresentedItems(context.Background(), testTenant(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Created)
}

func itemRow(id, status string) *sqlmock.Rows {
	now := time.Now()
	cols := []string{
		"id", "tenant_id", "external_item_id", "amount", "currency", "account_id",
		"account_masked", "routing_number", "check_number", "presented_date", "check_date",
		"micr_line", "payee_name", "item_type", "status", "risk_level", "priority",
		"account_type", "account_context", "upstream_flags", "ai_recommendation",
		"ai_confidence", "ai_explanation", "ai_analysis_id", "assigned_reviewer_id",
		"assigned_approver_id", "queue_id", "sla_due_at", "sla_breached",
		"requires_dual_control", "pending_dual_control_decision_id",
		"dual_control_reason", "policy_version_id", "created_at", "updated_at",
	}
	return sqlmock.NewRows(cols).AddRow(
		id, "t1", "EXT-1", 500.0, "USD", "acct-1", "****1234", "021000021", "1042",
		now.Add(-time.Hour), nil, nil, nil, ItemTypeTransit, status, "low", 25,
		"checking", `{"tenure_days":1000}`, `[]`, nil, nil, nil, nil, nil, nil, nil,
		now.Add(3*time.Hour), false, false, nil, nil, nil, now, now,
	)
}

func TestGetRecordsViewSessionAndAudit(t *testing.T) {
	svc, mock, done := newSyncService(t, &fakeProvider{})
	defer done()

	mock.ExpectQuery("SELECT id, tenant_id, .* FROM check_items WHERE tenant_id").
		WithArgs("t1", "item-1").
		WillReturnRows(itemRow("item-1", StatusNew))
	mock.ExpectExec("INSERT INTO item_views").WillReturnResult(sqlmock.NewResult(1, 1))
	expectAuditWrite(mock) // ITEM_VIEWED

	item, view, err := svc.Get(context.Background(), testTenant(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", item.ID)
	require.NotNil(t, item.AccountTenureDays)
	assert.Equal(t, 1000.0, *item.AccountTenureDays)
	require.NotNil(t, view)
	assert.Equal(t, "u1", view.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusRejectsTerminalItem(t *testing.T) {
	svc, mock, done := newSyncService(t, &fakeProvider{})
	defer done()

	mock.ExpectQuery("SELECT id, tenant_id, .* FROM check_items WHERE tenant_id").
		WillReturnRows(itemRow("item-1", StatusApproved))

	err := svc.UpdateStatus(context.Background(), testTenant(), "item-1", StatusInReview)
	assert.Error(t, err)
}

func TestAdjacentNavigation(t *testing.T) {
	svc, mock, done := newSyncService(t, &fakeProvider{})
	defer done()

	mock.ExpectQuery("SELECT prev_id, next_id FROM").
		WillReturnRows(sqlmock.NewRows([]string{"prev_id", "next_id"}).AddRow("item-0", "item-2"))

	result, err := svc.Adjacent(context.Background(), testTenant(), "item-1", ListParams{})
	require.NoError(t, err)
	assert.Equal(t, "item-0", result.PrevID)
	assert.Equal(t, "item-2", result.NextID)
}

func TestItemFactsProjection(t *testing.T) {
	item := &CheckItem{
		Amount:            2500,
		Currency:          "USD",
		ItemType:          ItemTypeOnUs,
		AccountType:       "savings",
		AvgCheckAmount30d: f(500),
		UpstreamFlags:     []string{"dup_suspect"},
	}
	facts := itemFacts(item)
	assert.Equal(t, 2500.0, facts.Amount)
	assert.Equal(t, "savings", facts.AccountType)
	require.NotNil(t, facts.AvgCheckAmount30d)
	assert.Equal(t, []string{"dup_suspect"}, facts.UpstreamFlags)
	assert.Nil(t, facts.ReturnCount90d)
}
