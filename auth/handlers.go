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
	"time"

	"github.com/gorilla/mux"

	"clearcheck/platform/shared/config"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/httpx"
	"clearcheck/platform/tenant"
)

// Cookie names and paths. The refresh cookie is scoped to the auth path so
// it never rides along on API calls.
const (
	refreshCookieName = "refresh_token"
	csrfCookieName    = "csrf_token"
	refreshCookiePath = "/api/v1/auth"
	csrfHeaderName    = "X-CSRF-Token"
)

// Handler serves the auth endpoints.
type Handler struct {
	service *Service
	cfg     *config.Config
}

// NewHandler creates the auth API handler.
func NewHandler(service *Service, cfg *config.Config) *Handler {
	return &Handler{service: service, cfg: cfg}
}

// RegisterPublicRoutes registers the unauthenticated endpoints.
func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
}

// RegisterRoutes registers the endpoints that require a bearer token.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/auth/change-password", h.changePassword).Methods(http.MethodPost)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		httpx.WriteError(w, r, errs.ErrTokenInvalid)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        *User  `json:"user"`
	CSRFToken   string `json:"csrf_token"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		httpx.WriteError(w, r, errs.ErrMissingField.WithMessage("Username and password are required"))
		return
	}

	result, err := h.service.Login(r.Context(), h.requestMeta(r, req.DeviceFingerprint), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	h.setSessionCookies(w, result.Tokens)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: result.Tokens.AccessToken,
		TokenType:   "bearer",
		ExpiresIn:   result.Tokens.ExpiresIn,
		User:        result.User,
		CSRFToken:   result.Tokens.CSRFToken,
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	refreshCookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		httpx.WriteError(w, r, errs.ErrTokenInvalid.WithMessage("Missing refresh token"))
		return
	}
	csrfCookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		httpx.WriteError(w, r, errs.ErrCSRFFailed)
		return
	}

	result, err := h.service.Refresh(r.Context(), h.requestMeta(r, ""),
		refreshCookie.Value, r.Header.Get(csrfHeaderName), csrfCookie.Value)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	h.setSessionCookies(w, result.Tokens)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: result.Tokens.AccessToken,
		TokenType:   "bearer",
		ExpiresIn:   result.Tokens.ExpiresIn,
		User:        result.User,
		CSRFToken:   result.Tokens.CSRFToken,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	raw := ""
	if c, err := r.Cookie(refreshCookieName); err == nil {
		raw = c.Value
	}
	if err := h.service.Logout(r.Context(), h.requestMeta(r, ""), raw); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	h.clearSessionCookies(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	tc, ok := httpx.RequireTenant(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := httpx.DecodeBody(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), tc, req.CurrentPassword, req.NewPassword); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	h.clearSessionCookies(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (h *Handler) requestMeta(r *http.Request, fingerprint string) RequestMeta {
	meta := RequestMeta{
		IPAddress:         ClientIP(r, h.cfg.TrustedProxyIPs),
		UserAgent:         r.UserAgent(),
		DeviceFingerprint: fingerprint,
	}
	if tc, ok := tenant.FromContext(r.Context()); ok && tc.RequestID != "" {
		meta.RequestID = tc.RequestID
	} else {
		meta.RequestID = r.Header.Get("X-Request-ID")
	}
	return meta
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, t TokenTriple) {
	maxAge := int(h.service.Tokens().RefreshTTL().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    t.RefreshToken,
		Path:     refreshCookiePath,
		Domain:   h.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: sameSite(h.cfg.CookieSameSite),
	})
	// The CSRF cookie is deliberately readable so the client can echo it in
	// the X-CSRF-Token header.
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    t.CSRFToken,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: false,
		Secure:   h.cfg.CookieSecure,
		SameSite: sameSite(h.cfg.CookieSameSite),
	})
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	expired := time.Unix(0, 0)
	http.SetCookie(w, &http.Cookie{
		Name: refreshCookieName, Value: "", Path: refreshCookiePath,
		Domain: h.cfg.CookieDomain, Expires: expired, MaxAge: -1,
		HttpOnly: true, Secure: h.cfg.CookieSecure, SameSite: sameSite(h.cfg.CookieSameSite),
	})
	http.SetCookie(w, &http.Cookie{
		Name: csrfCookieName, Value: "", Path: "/",
		Domain: h.cfg.CookieDomain, Expires: expired, MaxAge: -1,
		Secure: h.cfg.CookieSecure, SameSite: sameSite(h.cfg.CookieSameSite),
	})
}

func sameSite(mode string) http.SameSite {
	switch mode {
	case "Strict", "strict":
		return http.SameSiteStrictMode
	case "None", "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
