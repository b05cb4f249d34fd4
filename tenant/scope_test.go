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

package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	tc := Context{TenantID: "t1", UserID: "u1", RequestID: "r1"}
	ctx := NewContext(context.Background(), tc)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, tc, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestScopeAllowsFilteredQuery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM check_items").
		WithArgs("t1", "new").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("item-1"))

	scope := NewScope(db, Context{TenantID: "t1"}, true)
	rows, err := scope.QueryContext(context.Background(),
		"SELECT id FROM check_items WHERE tenant_id = $1 AND status = $2", "t1", "new")
	require.NoError(t, err)
	rows.Close()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeRejectsUnfilteredQueryInStrictMode(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	scope := NewScope(db, Context{TenantID: "t1"}, true)
	_, err = scope.QueryContext(context.Background(),
		"SELECT id FROM check_items WHERE status = $1", "new")

	var isoErr *IsolationError
	require.True(t, errors.As(err, &isoErr))
}

func TestScopeRejectsForeignTenantArgument(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The query has a tenant filter, but bound to the wrong tenant.
	scope := NewScope(db, Context{TenantID: "t1"}, true)
	_, err = scope.QueryContext(context.Background(),
		"SELECT id FROM check_items WHERE tenant_id = $1", "t2")

	var isoErr *IsolationError
	require.True(t, errors.As(err, &isoErr))
}

func TestScopePermissiveModeLetsQueryRun(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM check_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	scope := NewScope(db, Context{TenantID: "t1"}, false)
	rows, err := scope.QueryContext(context.Background(),
		"SELECT id FROM check_items WHERE status = $1", "new")
	require.NoError(t, err)
	rows.Close()
}

func TestScopeIgnoresCatalogTables(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	scope := NewScope(db, Context{TenantID: "t1"}, true)
	rows, err := scope.QueryContext(context.Background(),
		"SELECT id FROM permissions ORDER BY resource")
	require.NoError(t, err)
	rows.Close()
}

func TestScopeChecksInserts(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	scope := NewScope(db, Context{TenantID: "t1"}, true)

	// INSERT carrying tenant_id in the column list passes.
	mock.ExpectExec("INSERT INTO item_views").
		WillReturnResult(sqlmock.NewResult(1, 1))
	_, err = scope.ExecContext(context.Background(),
		"INSERT INTO item_views (id, tenant_id, check_item_id) VALUES ($1, $2, $3)",
		"v1", "t1", "item-1")
	require.NoError(t, err)

	// INSERT without tenant_id is refused.
	_, err = scope.ExecContext(context.Background(),
		"INSERT INTO item_views (id, check_item_id) VALUES ($1, $2)", "v1", "item-1")
	var isoErr *IsolationError
	require.True(t, errors.As(err, &isoErr))
}

func TestScopeQueryRowDefersRefusalToScan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	scope := NewScope(db, Context{TenantID: "t1"}, true)
	row := scope.QueryRowContext(context.Background(),
		"SELECT id FROM check_items WHERE id = $1", "item-1")

	var id string
	scanErr := row.Scan(&id)
	var isoErr *IsolationError
	require.True(t, errors.As(scanErr, &isoErr))
	// The refused statement never reached the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyRow(t *testing.T) {
	scope := NewScope(nil, Context{TenantID: "t1"}, true)

	assert.NoError(t, scope.VerifyRow("get_item", "t1"))

	err := scope.VerifyRow("get_item", "t2")
	var isoErr *IsolationError
	require.True(t, errors.As(err, &isoErr))
	// The error message must not leak the foreign tenant.
	assert.NotContains(t, err.Error(), "t2")
}
