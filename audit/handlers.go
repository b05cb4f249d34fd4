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

package audit

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/httpx"
)

// Handler serves the audit read endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates the audit API handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers audit routes on the authenticated subrouter.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/audit/logs", h.listLogs).Methods(http.MethodGet)
	r.HandleFunc("/audit/items/{id}", h.itemTrail).Methods(http.MethodGet)
	r.HandleFunc("/audit/verify", h.verifyChain).Methods(http.MethodGet)
	r.HandleFunc("/audit/packet", h.createPacket).Methods(http.MethodPost)
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	params := ListParams{
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		UserID:       q.Get("user_id"),
		Page:         intParam(q.Get("page"), 1),
		PageSize:     intParam(q.Get("page_size"), 50),
	}
	if ts, err := timeParam(q.Get("from")); err == nil && ts != nil {
		params.From = ts
	}
	if ts, err := timeParam(q.Get("to")); err == nil && ts != nil {
		params.To = ts
	}

	result, err := h.service.List(r.Context(), tc, params)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) itemTrail(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}

	itemID := mux.Vars(r)["id"]
	records, err := h.service.ItemTrail(r.Context(), tc, itemID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"check_item_id": itemID,
		"records":       records,
	})
}

func (h *Handler) verifyChain(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var from, to *time.Time
	if ts, err := timeParam(q.Get("from")); err == nil {
		from = ts
	}
	if ts, err := timeParam(q.Get("to")); err == nil {
		to = ts
	}

	report, err := h.service.VerifyChain(r.Context(), tc, from, to)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

type createPacketRequest struct {
	CheckItemID string `json:"check_item_id"`
}

func (h *Handler) createPacket(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}

	var req createPacketRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	job, err := h.service.CreateExportJob(r.Context(), tc, req.CheckItemID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, job)
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	var n int
	for _, c := range raw {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return def
	}
	return n
}

func timeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errs.ErrInvalidFormat.WithMessage("timestamps must be RFC 3339")
	}
	return &ts, nil
}
