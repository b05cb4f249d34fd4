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

package server

// permission is one (resource, action) pair. A user holds it when any of
// their roles grants it, or when they hold the admin role.
type permission struct {
	Resource string
	Action   string
}

func (p permission) Name() string { return p.Resource + ":" + p.Action }

// routePermissions maps "METHOD /path/template" to the permission the route
// requires. Routes absent from the table need authentication only.
var routePermissions = map[string]permission{
	"GET /api/v1/checks":                   {"check_item", "read"},
	"POST /api/v1/checks/sync":             {"check_item", "sync"},
	"GET /api/v1/checks/{id}":              {"check_item", "read"},
	"POST /api/v1/checks/{id}/assign":      {"check_item", "assign"},
	"POST /api/v1/checks/{id}/status":      {"check_item", "update_status"},
	"GET /api/v1/checks/{id}/adjacent":     {"check_item", "read"},
	"POST /api/v1/checks/views/{viewId}/end": {"check_item", "read"},

	"POST /api/v1/decisions":                             {"check_item", "decide"},
	"POST /api/v1/decisions/{id}/dual-control/approve":   {"check_item", "decide"},
	"POST /api/v1/decisions/{id}/override":               {"decision", "override"},
	"GET /api/v1/checks/{id}/decisions":                  {"check_item", "read"},
	"GET /api/v1/checks/{id}/decisions/verify":           {"audit", "read"},

	"POST /api/v1/images/tokens":       {"check_image", "view"},
	"POST /api/v1/images/tokens/batch": {"check_image", "view"},

	"GET /api/v1/audit/logs":        {"audit", "read"},
	"GET /api/v1/audit/items/{id}":  {"audit", "read"},
	"GET /api/v1/audit/verify":      {"audit", "read"},
	"POST /api/v1/audit/packet":     {"audit", "export"},

	"GET /api/v1/policies":             {"policy", "read"},
	"POST /api/v1/policies":            {"policy", "manage"},
	"GET /api/v1/policies/{id}":        {"policy", "read"},
	"PATCH /api/v1/policies/{id}":      {"policy", "manage"},
	"DELETE /api/v1/policies/{id}":     {"policy", "manage"},
	"POST /api/v1/policies/{id}/versions/{versionId}/activate": {"policy", "manage"},

	"POST /api/v1/fraud/events":               {"fraud", "report"},
	"GET /api/v1/fraud/matches":               {"fraud", "read"},
	"POST /api/v1/fraud/matches/{id}/resolve": {"fraud", "manage"},
	"GET /api/v1/fraud/config":                {"fraud", "read"},
	"PUT /api/v1/fraud/config":                {"fraud", "manage"},
	"GET /api/v1/fraud/stats":                 {"fraud", "read"},

	"GET /api/v1/users":             {"user", "read"},
	"POST /api/v1/users":            {"user", "manage"},
	"GET /api/v1/users/{id}":        {"user", "read"},
	"PATCH /api/v1/users/{id}":      {"user", "manage"},
	"GET /api/v1/users/roles":       {"user", "read"},
	"GET /api/v1/users/permissions": {"user", "read"},
}

// RoleAdmin short-circuits permission checks. The platform models the
// superuser as a role rather than a user flag so grants stay auditable
// through the same role-assignment path.
const RoleAdmin = "admin"
