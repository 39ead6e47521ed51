package http

import (
	"errors"
	"net/http"
	"slices"

	"github.com/aussiebroadwan/tabsession/internal/devserver/service"
	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
)

// AuthHandler serves login, refresh and logout.
type AuthHandler struct {
	UserService  *service.UserService
	TokenService *service.TokenService
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "malformed login request")
		return
	}

	u, err := h.UserService.Authenticate(ctx, req.Username, req.Password, req.OTP)
	switch {
	case errors.Is(err, service.ErrOTPRequired):
		httpx.WriteError(w, r, http.StatusUnauthorized, "one-time code required")
		return
	case err != nil:
		log.Info("login rejected", "username", req.Username, "err", err)
		httpx.WriteError(w, r, http.StatusUnauthorized, "invalid username or password")
		return
	}

	pair, err := h.TokenService.Issue(ctx, u)
	if err != nil {
		log.Error("failed to issue tokens", "user_id", u.ID, "err", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	log.Info("login", "user_id", u.ID, "username", u.Username)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair, u))
}

func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	pair, u, err := h.TokenService.Refresh(ctx, req.RefreshToken, h.UserService)
	if errors.Is(err, service.ErrInvalidRefresh) {
		httpx.WriteError(w, r, http.StatusUnauthorized, "refresh token is invalid or expired")
		return
	}
	if err != nil {
		log.Error("failed to refresh tokens", "err", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "failed to refresh tokens")
		return
	}

	log.Debug("tokens rotated", "user_id", u.ID)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair, u))
}

// HandleLogout revokes the presented refresh token. Unknown tokens still
// get a 204 so logout is idempotent.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "malformed logout request")
		return
	}

	if req.RefreshToken != "" {
		h.TokenService.Revoke(r.Context(), req.RefreshToken)
	}
	w.WriteHeader(http.StatusNoContent)
}

func tokenResponse(pair service.TokenPair, u service.User) authsdk.TokenResponse {
	profile := userProfile(u)
	return authsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
		User:         &profile,
	}
}

func userProfile(u service.User) tokenstore.UserProfile {
	return tokenstore.UserProfile{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Authorities: slices.Clone(u.Authorities),
	}
}
