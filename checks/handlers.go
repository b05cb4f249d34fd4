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
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"clearcheck/platform/shared/httpx"
)

// Handler exposes the check item REST API.
type Handler struct {
	service *Service
}

// NewHandler creates the check item handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the check item endpoints.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/checks", h.list).Methods(http.MethodGet)
	r.HandleFunc("/checks/sync", h.sync).Methods(http.MethodPost)
	r.HandleFunc("/checks/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/checks/{id}/assign", h.assign).Methods(http.MethodPost)
	r.HandleFunc("/checks/{id}/status", h.updateStatus).Methods(http.MethodPost)
	r.HandleFunc("/checks/{id}/adjacent", h.adjacent).Methods(http.MethodGet)
	r.HandleFunc("/checks/views/{viewId}/end", h.endView).Methods(http.MethodPost)
}

// listParamsFromQuery parses the shared filter union.
func listParamsFromQuery(r *http.Request) ListParams {
	q := r.URL.Query()
	params := ListParams{
		Page:     intQuery(q.Get("page"), 1),
		PageSize: intQuery(q.Get("page_size"), 25),
		QueueID:  q.Get("queue_id"),
	}
	if v := q.Get("status"); v != "" {
		params.Statuses = strings.Split(v, ",")
	}
	if v := q.Get("risk_level"); v != "" {
		params.RiskLevels = strings.Split(v, ",")
	}
	if v := q.Get("amount_min"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			params.AmountMin = &f
		}
	}
	if v := q.Get("amount_max"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			params.AmountMax = &f
		}
	}
	params.AssignedTo = q.Get("assigned_to")
	if v := q.Get("has_ai_flags"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			params.HasAIFlags = &b
		}
	}
	if v := q.Get("sla_breached"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			params.SLABreached = &b
		}
	}
	if v := q.Get("date_from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.DateFrom = &t
		}
	}
	if v := q.Get("date_to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.DateTo = &t
		}
	}
	return params
}

func intQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	result, err := h.service.List(r.Context(), tc, listParamsFromQuery(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	item, view, err := h.service.Get(r.Context(), tc, mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	body := map[string]interface{}{"item": item}
	if view != nil {
		body["view_id"] = view.ID
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

type syncRequest struct {
	AmountMin float64 `json:"amount_min"`
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var req syncRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	result, err := h.service.SyncPresentedItems(r.Context(), tc, req.AmountMin)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

type assignRequest struct {
	ReviewerID string `json:"reviewer_id"`
	ApproverID string `json:"approver_id"`
	QueueID    string `json:"queue_id"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	if err := h.service.Assign(r.Context(), tc, mux.Vars(r)["id"], req.ReviewerID, req.ApproverID, req.QueueID); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	if err := h.service.UpdateStatus(r.Context(), tc, mux.Vars(r)["id"], req.Status); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *Handler) adjacent(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	result, err := h.service.Adjacent(r.Context(), tc, mux.Vars(r)["id"], listParamsFromQuery(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

type endViewRequest struct {
	ImageViewed bool `json:"image_viewed"`
	ImageZoomed bool `json:"image_zoomed"`
}

func (h *Handler) endView(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var req endViewRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	if err := h.service.EndView(r.Context(), tc, mux.Vars(r)["viewId"], req.ImageViewed, req.ImageZoomed); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
