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

package fraud

import (
	"net/http"

	"github.com/gorilla/mux"

	"clearcheck/platform/shared/httpx"
)

// Handler exposes the fraud intelligence REST API.
type Handler struct {
	service *Service
}

// NewHandler creates the fraud handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the fraud endpoints.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/fraud/events", h.submit).Methods(http.MethodPost)
	r.HandleFunc("/fraud/matches", h.listMatches).Methods(http.MethodGet)
	r.HandleFunc("/fraud/matches/{id}/resolve", h.resolveMatch).Methods(http.MethodPost)
	r.HandleFunc("/fraud/config", h.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/fraud/config", h.updateConfig).Methods(http.MethodPut)
	r.HandleFunc("/fraud/stats", h.stats).Methods(http.MethodGet)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var input EventInput
	if err := httpx.DecodeBody(w, r, &input); err != nil {
		return
	}
	result, err := h.service.SubmitEvent(r.Context(), tc, input)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) listMatches(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	alerts, err := h.service.ListMatches(r.Context(), tc, r.URL.Query().Get("status"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"matches": alerts})
}

type resolveMatchRequest struct {
	Status string `json:"status"`
}

func (h *Handler) resolveMatch(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var req resolveMatchRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	if err := h.service.ResolveMatch(r.Context(), tc, mux.Vars(r)["id"], req.Status); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	cfg, err := h.service.GetConfig(r.Context(), tc)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cfg)
}

type updateConfigRequest struct {
	SharingEnabled      bool `json:"sharing_enabled"`
	DefaultSharingLevel int  `json:"default_sharing_level"`
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var req updateConfigRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	cfg, err := h.service.UpdateConfig(r.Context(), tc, req.SharingEnabled, req.DefaultSharingLevel)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if _, ok := httpx.RequireTenant(w, r); !ok {
		return
	}
	q := r.URL.Query()
	stats, err := h.service.NetworkStats(r.Context(), q.Get("fraud_type"), q.Get("month"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}
