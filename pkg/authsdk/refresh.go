package authsdk

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/aussiebroadwan/tabsession/pkg/authevents"
)

// refreshCoordinator makes renewal single-flight. The first caller becomes
// the leader and performs the renewal; everyone arriving while it is in
// flight gets a waiter channel that is completed, in arrival order, when
// the leader settles.
type refreshCoordinator struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan error
}

// join returns (nil, true) for the leader, or a waiter channel.
func (r *refreshCoordinator) join() (<-chan error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight {
		// Buffered so settle never blocks on a waiter that gave up.
		ch := make(chan error, 1)
		r.waiters = append(r.waiters, ch)
		return ch, false
	}

	r.inFlight = true
	return nil, true
}

// settle resets the state and completes every waiter with err.
func (r *refreshCoordinator) settle(err error) {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.inFlight = false
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
}

func (r *refreshCoordinator) pending() (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight, len(r.waiters)
}

// Refresh renews the credential pair now, sharing an in-flight renewal if
// there is one.
func (c *Client) Refresh(ctx context.Context) error {
	return c.renew(ctx, c.store.AccessToken(ctx))
}

// Refreshing reports whether a renewal is in flight and how many callers
// are queued behind it.
func (c *Client) Refreshing() (bool, int) {
	return c.refresh.pending()
}

// renew renews on behalf of a caller that saw observed as the stored access
// token. The leader re-reads the store after taking the slot: a usable
// replacement means another renewal already finished, and an empty store
// means an earlier renewal already ended the session.
func (c *Client) renew(ctx context.Context, observed string) error {
	ch, leader := c.refresh.join()
	if !leader {
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return &Error{Kind: KindTransport, Path: c.cfg.RefreshPath, Message: "waiting for renewal", Err: ctx.Err()}
		}
	}

	current := c.store.AccessToken(ctx)
	switch {
	case observed != "" && current == "":
		err := renewalError(c.cfg.RefreshPath, 0, "session already ended", ErrSessionEnded)
		c.refresh.settle(err)
		return err
	case current != observed && c.usable(current):
		c.refresh.settle(nil)
		return nil
	}

	// Detached from the leader's cancellation: a caller giving up must not
	// end the session for every queued waiter.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	err := c.performRefresh(rctx)
	if err != nil {
		c.endSession(rctx, err)
	}
	c.refresh.settle(err)
	return err
}

// usable reports whether token decodes and has not expired. Unlike
// Store.IsExpired it emits nothing.
func (c *Client) usable(token string) bool {
	claims, ok := c.store.Decode(token)
	if !ok {
		return false
	}
	_, hasExp := claims.Expiry()
	return hasExp && !claims.ExpiredAt(c.now())
}

// performRefresh exchanges the refresh token for a new pair and stores it.
func (c *Client) performRefresh(ctx context.Context) error {
	path := c.cfg.RefreshPath

	rt := c.store.RefreshToken(ctx)
	if rt == "" {
		return renewalError(path, 0, "no refresh token", ErrNoRefreshToken)
	}

	// Opaque refresh tokens are sent as is; a decodable one whose exp has
	// passed is rejected without a round trip.
	if claims, ok := c.store.Decode(rt); ok {
		if _, hasExp := claims.Expiry(); hasExp && claims.ExpiredAt(c.now()) {
			return renewalError(path, 0, "refresh token expired", ErrRefreshTokenExpired)
		}
	}

	body, err := encodeBody(RefreshRequest{RefreshToken: rt})
	if err != nil {
		return renewalError(path, 0, "failed to encode refresh request", err)
	}

	resp, err := c.send(ctx, path, RequestOptions{
		Method:      http.MethodPost,
		SkipAuth:    true,
		SkipRefresh: true,
	}, body, "")
	if err != nil {
		return renewalError(path, 0, "renewal request failed", err)
	}
	if !isSuccess(resp.status) {
		e := parseErrorResponse(KindRenewal, resp.status, path, resp.body)
		return e
	}

	var tr TokenResponse
	if err := decodeJSON(resp, path, &tr); err != nil {
		return renewalError(path, resp.status, "malformed renewal response", err)
	}
	if tr.AccessToken == "" {
		return renewalError(path, resp.status, "renewal returned no access token", ErrEmptyAccessToken)
	}

	oldAuthorities := c.store.Authorities(ctx)

	if err := c.store.SetTokens(ctx, tr.Pair()); err != nil {
		return renewalError(path, resp.status, "failed to store renewed tokens", err)
	}
	if tr.User != nil {
		if err := c.store.SetUser(ctx, *tr.User); err != nil {
			c.logger.Warn("failed to store profile after renewal", "err", err)
		}
	}

	newAuthorities := c.store.Authorities(ctx)
	if !slices.Equal(oldAuthorities, newAuthorities) {
		var userID int64
		if claims, ok := c.store.Decode(tr.AccessToken); ok {
			userID = claims.UserID
		}
		c.bus.Emit(authevents.PermissionsChangedPayload{
			UserID:         userID,
			OldPermissions: oldAuthorities,
			NewPermissions: newAuthorities,
		})
	}

	c.logger.Debug("credential renewed")
	return nil
}

// endSession clears credentials, reports session-expired and navigates to
// the unauthenticated route.
func (c *Client) endSession(ctx context.Context, cause error) {
	p := authevents.SessionExpiredPayload{Reason: cause.Error()}
	if claims, ok := c.store.Decode(c.store.AccessToken(ctx)); ok {
		p.UserID = claims.UserID
		p.Username = claims.DisplayName()
	}

	if err := c.store.ClearTokens(ctx); err != nil {
		c.logger.Error("failed to clear tokens after renewal failure", "err", err)
	}

	c.logger.Warn("session expired", "err", cause)
	c.bus.Emit(p)
	c.nav.Navigate(c.cfg.UnauthenticatedRoute)
}
