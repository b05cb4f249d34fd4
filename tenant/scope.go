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
	"database/sql"
	"regexp"
	"strings"

	"clearcheck/platform/shared/logger"
)

// Querier is the subset of *sql.DB / *sql.Tx the scope wraps.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Scope wraps a Querier and refuses tenant-scoped statements that do not
// carry a tenant_id predicate bound to the caller's tenant.
type Scope struct {
	q      Querier
	tc     Context
	strict bool
	log    *logger.Logger
}

// NewScope binds a querier to a tenant context. strict controls the failure
// mode for violations; production callers always pass true.
func NewScope(q Querier, tc Context, strict bool) *Scope {
	return &Scope{q: q, tc: tc, strict: strict, log: logger.Security()}
}

// Tenant returns the bound tenant context.
func (s *Scope) Tenant() Context { return s.tc }

// tenantPredicate matches a tenant_id filter in a WHERE clause or an
// INSERT/UPDATE column list. Case-insensitive, tolerates table aliases.
var tenantPredicate = regexp.MustCompile(`(?i)(\btenant_id\s*=\s*\$\d+)|(\btenant_id\b[^)]*\bVALUES\b)|(\(([^)]*,\s*)*tenant_id\b)`)

// scopedTables are the tenant-scoped entities the guard protects. Queries
// that touch none of these pass through unchecked (catalog tables).
// policy_versions and policy_rules are absent: they carry no tenant
// column, and their isolation rides the join to policies.
var scopedTables = []string{
	"check_items", "decisions", "users", "user_sessions",
	"approval_entitlements", "policies",
	"image_access_tokens", "audit_logs",
	"item_views", "fraud_events", "network_match_alerts", "tenant_fraud_configs",
	"ai_analyses", "audit_export_jobs",
}

func touchesScopedTable(query string) bool {
	lowered := strings.ToLower(query)
	for _, table := range scopedTables {
		if strings.Contains(lowered, table) {
			return true
		}
	}
	return false
}

func argsContainTenant(args []interface{}, tenantID string) bool {
	for _, a := range args {
		if s, ok := a.(string); ok && s == tenantID {
			return true
		}
	}
	return false
}

// check validates the isolation contract for one statement. Returns nil if
// the statement may proceed.
func (s *Scope) check(operation, query string, args []interface{}) error {
	if !touchesScopedTable(query) {
		return nil
	}
	if tenantPredicate.MatchString(query) && argsContainTenant(args, s.tc.TenantID) {
		return nil
	}

	s.log.Error(s.tc.TenantID, s.tc.RequestID, "Tenant-scoped query without matching tenant filter", map[string]interface{}{
		"operation": operation,
		"strict":    s.strict,
	})
	if s.strict {
		return &IsolationError{Operation: operation}
	}
	return nil
}

// QueryContext runs a read after validating the isolation contract.
func (s *Scope) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := s.check("query", query, args); err != nil {
		return nil, err
	}
	return s.q.QueryContext(ctx, query, args...)
}

// Row defers a refused statement's error to Scan so single-row reads keep
// their chained call shape.
type Row struct {
	row *sql.Row
	err error
}

// Scan delegates to the underlying row, or reports the isolation error the
// statement was refused with.
func (r *Row) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}

// QueryRowContext runs a single-row read after validating the contract. A
// refused statement never reaches the database; its Row fails on Scan.
func (s *Scope) QueryRowContext(ctx context.Context, query string, args ...interface{}) *Row {
	if err := s.check("query_row", query, args); err != nil {
		return &Row{err: err}
	}
	return &Row{row: s.q.QueryRowContext(ctx, query, args...)}
}

// ExecContext runs a write after validating the contract.
func (s *Scope) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := s.check("exec", query, args); err != nil {
		return nil, err
	}
	return s.q.ExecContext(ctx, query, args...)
}

// VerifyRow compares a fetched row's tenant to the bound context.
// Get-by-primary-key reads are allowed to skip the predicate check, but the
// result must pass through here; a mismatch is treated as not-found by the
// caller and logged as a security event.
func (s *Scope) VerifyRow(operation, rowTenantID string) error {
	if rowTenantID == s.tc.TenantID {
		return nil
	}
	s.log.Error(s.tc.TenantID, s.tc.RequestID, "Cross-tenant row access refused", map[string]interface{}{
		"operation": operation,
	})
	return &IsolationError{Operation: operation}
}
