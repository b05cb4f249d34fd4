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

package decision

import (
	"net/http"

	"github.com/gorilla/mux"

	"clearcheck/platform/auth"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/httpx"
	"clearcheck/platform/tenant"
)

// Handler exposes the decision REST API.
type Handler struct {
	service *Service
}

// NewHandler creates the decision handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the decision endpoints.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/decisions", h.decide).Methods(http.MethodPost)
	r.HandleFunc("/decisions/{id}/dual-control/approve", h.dualControl).Methods(http.MethodPost)
	r.HandleFunc("/decisions/{id}/override", h.override).Methods(http.MethodPost)
	r.HandleFunc("/checks/{id}/decisions", h.listForItem).Methods(http.MethodGet)
	r.HandleFunc("/checks/{id}/decisions/verify", h.verifyChain).Methods(http.MethodGet)
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (tenant.Context, *auth.User, bool) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return tenant.Context{}, nil, false
	}
	user := auth.UserFromContext(r.Context())
	if user == nil {
		httpx.WriteError(w, r, errs.ErrTokenInvalid)
		return tenant.Context{}, nil, false
	}
	return tc, user, true
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	tc, user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req Request
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	if req.CheckItemID == "" {
		httpx.WriteError(w, r, errs.ErrValidation.WithMessage("check_item_id is required"))
		return
	}
	result, err := h.service.Decide(r.Context(), tc, user, req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) dualControl(w http.ResponseWriter, r *http.Request) {
	tc, user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req Request
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	result, err := h.service.DualControlApprove(r.Context(), tc, user, mux.Vars(r)["id"], req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) override(w http.ResponseWriter, r *http.Request) {
	tc, user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req Request
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	result, err := h.service.Override(r.Context(), tc, user, mux.Vars(r)["id"], req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) listForItem(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	decisions, err := h.service.Repo().ListForItem(r.Context(), tc, mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"decisions": decisions})
}

func (h *Handler) verifyChain(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	breaks, err := h.service.VerifyItemChain(r.Context(), tc, mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"verified": len(breaks) == 0,
		"breaks":   breaks,
	})
}
