package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/tabsession/internal/devserver/service"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

type UserInfoHandler struct {
	UserService *service.UserService
}

// ServeHTTP returns the profile of the authenticated user.
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "missing credentials")
		return
	}

	u, err := h.UserService.GetByID(ctx, claims.UserID)
	if errors.Is(err, service.ErrUserNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		log.Warn("failed to load user", "user_id", claims.UserID, "err", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "failed to load user")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userProfile(u))
}

// AuthoritiesRequest replaces a user's authority list.
type AuthoritiesRequest struct {
	Authorities []string `json:"authorities"`
}

// AuthoritiesHandler lets an admin change what a user's next token carries.
type AuthoritiesHandler struct {
	UserService *service.UserService
}

func (h *AuthoritiesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}

	var req AuthoritiesRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "malformed request")
		return
	}

	if err := h.UserService.SetAuthorities(ctx, id, req.Authorities); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "user not found")
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "failed to update authorities")
		return
	}

	slogx.FromContext(ctx).Info("authorities updated", "user_id", id, "authorities", req.Authorities)
	w.WriteHeader(http.StatusNoContent)
}
