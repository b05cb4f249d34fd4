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

package auth

import (
	"net/http"

	"github.com/gorilla/mux"

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/httpx"
)

// AdminHandler serves the user administration endpoints.
type AdminHandler struct {
	service *Service
}

// NewAdminHandler creates the admin API handler.
func NewAdminHandler(service *Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// RegisterRoutes mounts the user admin endpoints.
func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/users", h.list).Methods(http.MethodGet)
	r.HandleFunc("/users", h.create).Methods(http.MethodPost)
	r.HandleFunc("/users/roles", h.listRoles).Methods(http.MethodGet)
	r.HandleFunc("/users/permissions", h.listPermissions).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", h.update).Methods(http.MethodPatch)
}

func (h *AdminHandler) list(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	users, err := h.service.Users().ListByTenant(r.Context(), tc)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (h *AdminHandler) create(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var input CreateUserInput
	if err := httpx.DecodeBody(w, r, &input); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), tc, input)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, user)
}

func (h *AdminHandler) get(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	user, err := h.service.Users().GetByID(r.Context(), tc, mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if user == nil {
		httpx.WriteError(w, r, errs.ErrNotFound.WithMessage("User not found"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) update(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var input UpdateUserInput
	if err := httpx.DecodeBody(w, r, &input); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), tc, mux.Vars(r)["id"], input)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := httpx.RequireTenant(w, r); !ok {
		return
	}
	roles, err := h.service.Users().ListRoles(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

func (h *AdminHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	if _, ok := httpx.RequireTenant(w, r); !ok {
		return
	}
	perms, err := h.service.Users().ListPermissions(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"permissions": perms})
}
