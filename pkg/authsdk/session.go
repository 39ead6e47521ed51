package authsdk

import (
	"context"
	"net/http"
	"slices"

	"github.com/aussiebroadwan/tabsession/pkg/authevents"
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
)

// Login exchanges credentials for a token pair, stores it together with
// the user profile and emits login.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var tr TokenResponse
	err := c.Do(ctx, c.cfg.LoginPath, RequestOptions{
		Method:      http.MethodPost,
		Body:        req,
		SkipAuth:    true,
		SkipRefresh: true,
	}, &tr)
	if err != nil {
		return nil, err
	}

	if tr.AccessToken == "" {
		return nil, &Error{Kind: KindDecode, Path: c.cfg.LoginPath, Message: "login returned no access token"}
	}

	if err := c.store.SetTokens(ctx, tr.Pair()); err != nil {
		return nil, err
	}

	profile := profileFromResponse(c.store, &tr)
	if err := c.store.SetUser(ctx, profile); err != nil {
		c.logger.Warn("failed to store profile after login", "err", err)
	}

	c.bus.Emit(authevents.LoginPayload{
		UserID:      profile.ID,
		Username:    profile.Username,
		Authorities: profile.Authorities,
	})
	c.logger.Info("logged in", "user_id", profile.ID, "username", profile.Username)

	return &tr, nil
}

// Logout revokes the refresh token on a best-effort basis, clears local
// credentials and emits logout. The server call failing does not stop the
// local logout.
func (c *Client) Logout(ctx context.Context) error {
	p := authevents.LogoutPayload{Reason: "user"}
	if claims, ok := c.store.Decode(c.store.AccessToken(ctx)); ok {
		p.UserID = claims.UserID
		p.Username = claims.DisplayName()
	}

	if rt := c.store.RefreshToken(ctx); rt != "" {
		err := c.Do(ctx, c.cfg.LogoutPath, RequestOptions{
			Method:      http.MethodPost,
			Body:        RefreshRequest{RefreshToken: rt},
			SkipRefresh: true,
		}, nil)
		if err != nil {
			c.logger.Warn("server logout failed", "err", err)
		}
	}

	if err := c.store.ClearTokens(ctx); err != nil {
		return err
	}

	c.bus.Emit(p)
	return nil
}

// Me fetches the current user's profile through the pipeline, caches it
// and emits user-updated when it differs from the cached one.
func (c *Client) Me(ctx context.Context) (*tokenstore.UserProfile, error) {
	var profile tokenstore.UserProfile
	if err := c.Get(ctx, c.cfg.ProfilePath, &profile); err != nil {
		return nil, err
	}

	prev, _ := c.store.CurrentUser(ctx)
	changed := profileChanges(prev, &profile)

	if err := c.store.SetUser(ctx, profile); err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		c.bus.Emit(authevents.UserUpdatedPayload{
			UserID:   profile.ID,
			Username: profile.Username,
			Changed:  changed,
		})
	}

	return &profile, nil
}

// profileFromResponse prefers the profile in the response and falls back
// to the access token claims.
func profileFromResponse(store *tokenstore.Store, tr *TokenResponse) tokenstore.UserProfile {
	if tr.User != nil {
		return *tr.User
	}
	var p tokenstore.UserProfile
	if claims, ok := store.Decode(tr.AccessToken); ok {
		p.ID = claims.UserID
		p.Username = claims.DisplayName()
		p.Authorities = claims.Authorities
	}
	return p
}

// profileChanges lists the fields of next that differ from prev. A missing
// prev counts every field as changed.
func profileChanges(prev, next *tokenstore.UserProfile) []string {
	if prev == nil {
		prev = &tokenstore.UserProfile{}
	}

	var changed []string
	if prev.ID != next.ID {
		changed = append(changed, "id")
	}
	if prev.Username != next.Username {
		changed = append(changed, "username")
	}
	if prev.DisplayName != next.DisplayName {
		changed = append(changed, "displayName")
	}
	if prev.Email != next.Email {
		changed = append(changed, "email")
	}
	if !slices.Equal(prev.Authorities, next.Authorities) {
		changed = append(changed, "authorities")
	}
	return changed
}

// Health probes the service without credentials.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	return Fetch[HealthResponse](ctx, c, c.cfg.HealthPath, RequestOptions{SkipAuth: true})
}
