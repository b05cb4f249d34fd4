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

package images

import (
	"net/http"

	"github.com/gorilla/mux"

	"clearcheck/platform/auth"
	"clearcheck/platform/shared/httpx"
)

// Handler exposes the image token REST API.
type Handler struct {
	service        *Service
	trustedProxies []string
}

// NewHandler creates the image handler.
func NewHandler(service *Service, trustedProxies []string) *Handler {
	return &Handler{service: service, trustedProxies: trustedProxies}
}

// RegisterRoutes mounts the authenticated mint endpoints.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/images/tokens", h.mint).Methods(http.MethodPost)
	r.HandleFunc("/images/tokens/batch", h.mintBatch).Methods(http.MethodPost)
}

// RegisterPublicRoutes mounts the consume endpoint. The token itself is
// the credential; no bearer auth applies.
func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/images/secure/{tokenId}", h.consume).Methods(http.MethodGet)
}

func (h *Handler) mint(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var input MintInput
	if err := httpx.DecodeBody(w, r, &input); err != nil {
		return
	}
	minted, err := h.service.Mint(r.Context(), tc, input)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, minted)
}

type mintBatchRequest struct {
	Images []MintInput `json:"images"`
}

func (h *Handler) mintBatch(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}
	var req mintBatchRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		return
	}
	minted, err := h.service.MintBatch(r.Context(), tc, req.Images)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]interface{}{"tokens": minted})
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	meta := ConsumeMeta{
		IPAddress: auth.ClientIP(r, h.trustedProxies),
		UserAgent: r.UserAgent(),
		RequestID: r.Header.Get("X-Request-ID"),
	}
	img, err := h.service.Consume(r.Context(), mux.Vars(r)["tokenId"], r.URL.Query().Get("sig"), meta)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	headers := w.Header()
	headers.Set("Cache-Control", "private, no-store, no-cache, must-revalidate")
	headers.Set("Pragma", "no-cache")
	headers.Set("X-Content-Type-Options", "nosniff")
	headers.Set("X-Frame-Options", "SAMEORIGIN")
	headers.Set("Referrer-Policy", "no-referrer")
	headers.Set("Content-Disposition", "inline")
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers.Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}
