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
	"fmt"
)

// Context identifies the tenant and user bound to a request. It is
// established once by the dispatch layer after authentication and passed
// explicitly into every service and repository call.
type Context struct {
	TenantID  string
	UserID    string
	Username  string
	RequestID string
	IPAddress string
	UserAgent string
	SessionID string
}

// System returns a context for background work that is not bound to a
// caller. TenantID is set per operation by the job itself.
func System(tenantID string) Context {
	return Context{TenantID: tenantID, Username: "system"}
}

type ctxKey struct{}

// NewContext returns a context.Context carrying tc. The value is a
// convenience for middleware handoff; services still receive tc explicitly.
func NewContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext extracts the tenant context placed by the dispatch layer.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// IsolationError reports a query that touched a tenant-scoped entity
// without a matching tenant filter, or a row that belongs to a different
// tenant than the caller. It never includes the foreign tenant ID.
type IsolationError struct {
	Operation string
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("tenant isolation violation in %s", e.Operation)
}
