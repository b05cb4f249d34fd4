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
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearcheck/platform/tenant"
)

// Every repository statement runs through the tenant isolation guard. The
// guard must be strict: an unscoped statement against a tenant table is
// refused before it reaches the database.
func TestRepositoryScopeRefusesUnscopedStatement(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	r := NewRepository(db)
	_, err = r.scope(testTenant()).ExecContext(context.Background(),
		"UPDATE check_items SET status = 'approved'")

	var isoErr *tenant.IsolationError
	require.True(t, errors.As(err, &isoErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryScopeRefusesForeignTenantArgument(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	r := NewRepository(db)
	_, err = r.scope(testTenant()).QueryContext(context.Background(),
		"SELECT id FROM check_items WHERE tenant_id = $1", "t-other")

	var isoErr *tenant.IsolationError
	require.True(t, errors.As(err, &isoErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// GetByID runs through the guard and still reads normally when the
// statement is tenant-bound.
func TestGetByIDPassesScopeGuard(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM check_items WHERE tenant_id").
		WithArgs("t1", "item-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r := NewRepository(db)
	item, err := r.GetByID(context.Background(), testTenant(), "item-1")
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.NoError(t, mock.ExpectationsWereMet())
}
