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

package policy

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"clearcheck/platform/shared/httpx"
)

// Handler exposes the policy admin REST API.
type Handler struct {
	service *Service
}

// NewHandler creates the policy handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the policy admin endpoints.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/policies", h.list).Methods(http.MethodGet)
	r.HandleFunc("/policies", h.create).Methods(http.MethodPost)
	r.HandleFunc("/policies/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/policies/{id}", h.updateRules).Methods(http.MethodPatch)
	r.HandleFunc("/policies/{id}", h.archive).Methods(http.MethodDelete)
	r.HandleFunc("/policies/{id}/versions/{versionId}/activate", h.activate).Methods(http.MethodPost)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	policies, err := h.service.List(r.Context(), tc)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"policies": policies})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var input CreatePolicyInput
	if err := httpx.DecodeBody(w, r, &input); err != nil {
		return
	}
	created, err := h.service.Create(r.Context(), tc, input)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), tc, mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

type updateRulesRequest struct {
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	Rules         []*Rule    `json:"rules"`
}

func (h *Handler) updateRules(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var req updateRulesRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	var effective time.Time
	if req.EffectiveDate != nil {
		effective = *req.EffectiveDate
	}
	version, err := h.service.UpdateRules(r.Context(), tc, mux.Vars(r)["id"], effective, req.Rules)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, version)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := h.service.Activate(r.Context(), tc, vars["id"], vars["versionId"]); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	if err := h.service.Archive(r.Context(), tc, mux.Vars(r)["id"]); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
