package authsdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/authevents"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/stretchr/testify/require"
)

type okBody struct {
	OK bool `json:"ok"`
}

func TestConcurrentCallsShareOneRenewal(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t, func(a *fakeAPI) {
		a.refreshDelay = 50 * time.Millisecond
		a.nextToken = accessToken(t, time.Now().Add(time.Hour))
	})

	h := newHarness(t, srv.URL)
	h.seed(t, accessToken(t, time.Now().Add(-time.Second)), "refresh-1")

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	bodies := make([]okBody, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.client.Get(context.Background(), "/api/data", &bodies[i])
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i], "call %d", i)
		require.True(t, bodies[i].OK)
	}
	require.Equal(t, int32(1), api.refreshCalls.Load())
	require.Equal(t, api.nextToken, h.store.AccessToken(context.Background()))
	require.Equal(t, "refresh-2", h.store.RefreshToken(context.Background()))
	require.Len(t, h.events(authevents.EventTokenRefreshed), 1)

	inFlight, waiting := h.client.Refreshing()
	require.False(t, inFlight)
	require.Zero(t, waiting)
}

func TestReplayedCallDoesNotRenewTwice(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t, func(a *fakeAPI) {
		a.nextToken = accessToken(t, time.Now().Add(time.Hour))
		a.dataHandler = func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteError(w, r, http.StatusUnauthorized, "revoked")
		}
	})

	h := newHarness(t, srv.URL)
	h.seed(t, accessToken(t, time.Now().Add(-time.Second)), "refresh-1")

	err := h.client.Get(context.Background(), "/api/data", nil)

	require.True(t, IsAuth(err), "got %v", err)
	require.Equal(t, http.StatusUnauthorized, StatusOf(err))
	require.Equal(t, int32(1), api.refreshCalls.Load())
	require.Equal(t, int32(2), api.dataCalls.Load())
}

func TestRenewalFailureFailsEveryWaiter(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t, func(a *fakeAPI) {
		a.refreshDelay = 100 * time.Millisecond
		a.refreshStatus = http.StatusUnauthorized
	})

	h := newHarness(t, srv.URL)
	h.seed(t, accessToken(t, time.Now().Add(-time.Second)), "refresh-1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.client.Get(context.Background(), "/api/data", nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.True(t, IsRenewal(err), "got %v", err)
	}
	require.Same(t, errs[0], errs[1], "waiters share the leader's renewal error")
	require.Equal(t, int32(1), api.refreshCalls.Load())

	ctx := context.Background()
	require.Empty(t, h.store.AccessToken(ctx))
	require.Empty(t, h.store.RefreshToken(ctx))
	require.Equal(t, []string{DefaultUnauthenticatedRoute}, h.nav.Routes())

	expired := h.events(authevents.EventSessionExpired)
	require.Len(t, expired, 1)
	require.Equal(t, int64(42), expired[0].Data.(authevents.SessionExpiredPayload).UserID)
}

func TestValidTokenUnauthorizedIsNotRenewed(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t, func(a *fakeAPI) {
		a.validToken = "something-else"
	})

	h := newHarness(t, srv.URL)
	h.seed(t, accessToken(t, time.Now().Add(time.Hour)), "refresh-1")

	err := h.client.Get(context.Background(), "/api/data", nil)

	require.True(t, IsAuth(err))
	require.Zero(t, api.refreshCalls.Load())
	require.NotEmpty(t, h.store.AccessToken(context.Background()))

	authErrs := h.events(authevents.EventAuthError)
	require.Len(t, authErrs, 1)
	require.Equal(t, authevents.ErrorToken, authErrs[0].Data.(authevents.AuthErrorPayload).ErrorType)
}

func TestSkipRefreshSurfaces401(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t)
	h := newHarness(t, srv.URL)
	h.seed(t, accessToken(t, time.Now().Add(-time.Second)), "refresh-1")

	err := h.client.Do(context.Background(), "/api/data", RequestOptions{SkipRefresh: true}, nil)

	require.True(t, IsAuth(err))
	require.Zero(t, api.refreshCalls.Load())
}

func TestRefreshTokenPreCheck(t *testing.T) {
	t.Parallel()

	t.Run("missing refresh token", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		h := newHarness(t, srv.URL)
		h.seed(t, accessToken(t, time.Now().Add(-time.Second)), "")

		err := h.client.Get(context.Background(), "/api/data", nil)

		require.True(t, IsRenewal(err))
		require.ErrorIs(t, err, ErrNoRefreshToken)
		require.Zero(t, api.refreshCalls.Load())
	})

	t.Run("expired JWT refresh token", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		h := newHarness(t, srv.URL)
		h.seed(t,
			accessToken(t, time.Now().Add(-time.Second)),
			unsignedToken(t, map[string]any{"sub": "alice", "exp": time.Now().Add(-time.Minute).Unix()}),
		)

		err := h.client.Get(context.Background(), "/api/data", nil)

		require.True(t, IsRenewal(err))
		require.ErrorIs(t, err, ErrRefreshTokenExpired)
		require.Zero(t, api.refreshCalls.Load())
		require.Len(t, h.nav.Routes(), 1)
	})
}

func TestPermissionsChangedAfterRenewal(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t, func(a *fakeAPI) {
		a.nextToken = accessToken(t, time.Now().Add(time.Hour), "ROLE_USER", "ROLE_ADMIN")
	})

	h := newHarness(t, srv.URL)
	h.seed(t, accessToken(t, time.Now().Add(-time.Second), "ROLE_USER"), "refresh-1")

	require.NoError(t, h.client.Get(context.Background(), "/api/data", nil))
	require.EqualValues(t, 1, api.refreshCalls.Load())

	changed := h.events(authevents.EventPermissionsChanged)
	require.Len(t, changed, 1)
	p := changed[0].Data.(authevents.PermissionsChangedPayload)
	require.Equal(t, []string{"ROLE_USER"}, p.OldPermissions)
	require.Equal(t, []string{"ROLE_USER", "ROLE_ADMIN"}, p.NewPermissions)
}

func TestResponseHandling(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /items/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusInternalServerError, "database unavailable")
	})
	mux.HandleFunc("GET /forbidden", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusForbidden, "missing authority")
	})
	mux.HandleFunc("GET /garbled", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	})
	mux.HandleFunc("GET /plain", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})
	mux.HandleFunc("POST /echo", func(w http.ResponseWriter, r *http.Request) {
		var v map[string]any
		require.NoError(t, httpx.DecodeJSON(w, r, &v))
		v["auth"] = r.Header.Get("Authorization")
		v["trace"] = r.Header.Get("X-Trace")
		httpx.WriteJSON(w, http.StatusCreated, v)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h := newHarness(t, srv.URL)
	token := accessToken(t, time.Now().Add(time.Hour))
	h.seed(t, token, "refresh-1")
	ctx := context.Background()

	t.Run("no content", func(t *testing.T) {
		got, err := Fetch[map[string]any](ctx, h.client, "/items/1", RequestOptions{Method: http.MethodDelete})
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("server envelope", func(t *testing.T) {
		err := h.client.Get(ctx, "/boom", nil)
		var e *Error
		require.True(t, errors.As(err, &e))
		require.Equal(t, KindTransport, e.Kind)
		require.Equal(t, http.StatusInternalServerError, e.Status)
		require.Equal(t, "database unavailable", e.Message)
		require.Equal(t, "/boom", e.Path)
		require.NotEmpty(t, e.Timestamp)
	})

	t.Run("forbidden reports permissions", func(t *testing.T) {
		err := h.client.Get(ctx, "/forbidden", nil)
		require.Equal(t, http.StatusForbidden, StatusOf(err))

		var found bool
		for _, e := range h.events(authevents.EventAuthError) {
			if e.Data.(authevents.AuthErrorPayload).ErrorType == authevents.ErrorPermissions {
				found = true
			}
		}
		require.True(t, found)
	})

	t.Run("malformed body", func(t *testing.T) {
		var out map[string]any
		err := h.client.Get(ctx, "/garbled", &out)
		var e *Error
		require.True(t, errors.As(err, &e))
		require.Equal(t, KindDecode, e.Kind)
	})

	t.Run("non json error body", func(t *testing.T) {
		err := h.client.Get(ctx, "/plain", nil)
		var e *Error
		require.True(t, errors.As(err, &e))
		require.Equal(t, http.StatusBadGateway, e.Status)
		require.Equal(t, http.StatusText(http.StatusBadGateway), e.Message)
	})

	t.Run("body headers and bearer", func(t *testing.T) {
		out, err := Fetch[map[string]any](ctx, h.client, "/echo", RequestOptions{
			Method:  http.MethodPost,
			Body:    map[string]string{"name": "tab"},
			Headers: map[string]string{"X-Trace": "t1"},
		})
		require.NoError(t, err)
		require.Equal(t, "tab", out["name"])
		require.Equal(t, "Bearer "+token, out["auth"])
		require.Equal(t, "t1", out["trace"])
	})

	t.Run("skip auth sends no credential", func(t *testing.T) {
		out, err := Fetch[map[string]any](ctx, h.client, "/echo", RequestOptions{
			Method:   http.MethodPost,
			Body:     map[string]string{},
			SkipAuth: true,
		})
		require.NoError(t, err)
		require.Equal(t, "", out["auth"])
	})

	t.Run("absolute url passes through", func(t *testing.T) {
		other := newHarness(t, "http://127.0.0.1:1")
		other.seed(t, token, "")
		require.Error(t, other.client.Get(ctx, "/boom", nil))
		err := other.client.Get(ctx, srv.URL+"/boom", nil)
		require.Equal(t, http.StatusInternalServerError, StatusOf(err))
	})

	t.Run("network failure", func(t *testing.T) {
		other := newHarness(t, "http://127.0.0.1:1")
		err := other.client.Get(ctx, "/anything", nil)
		var e *Error
		require.True(t, errors.As(err, &e))
		require.Equal(t, KindTransport, e.Kind)
		require.Zero(t, e.Status)
		require.NotEmpty(t, other.events(authevents.EventAuthError))
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "https://tab.example.com/base/")
	require.Equal(t, "https://tab.example.com/base/api/users/me", h.client.resolve("/api/users/me"))
	require.Equal(t, "https://tab.example.com/base/api/x?q=1", h.client.resolve("api/x?q=1"))
	require.Equal(t, "https://other.example.com/y", h.client.resolve("https://other.example.com/y"))
}

// slowSecondExpiry delays the second token-expired listener call, holding
// one caller between its expiry check and the renewal slot.
func slowSecondExpiry(h *harness, delay time.Duration) {
	var calls atomic.Int32
	h.bus.OnTokenExpired(func(authevents.TokenExpiredPayload) {
		if calls.Add(1) == 2 {
			time.Sleep(delay)
		}
	})
}

func TestLateCallerReusesFinishedRenewal(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t, func(a *fakeAPI) {
		a.nextToken = accessToken(t, time.Now().Add(time.Hour))
	})
	h := newHarness(t, srv.URL)
	h.seed(t, accessToken(t, time.Now().Add(-time.Second)), "refresh-1")
	slowSecondExpiry(h, 200*time.Millisecond)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.client.Get(context.Background(), "/api/data", nil)
		}()
	}
	wg.Wait()

	require.Equal(t, []error{nil, nil}, errs)
	require.EqualValues(t, 1, api.refreshCalls.Load())
	require.Len(t, h.events(authevents.EventTokenRefreshed), 1)
}

func TestLateCallerAfterFailedRenewalDoesNotEndSessionTwice(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t, func(a *fakeAPI) {
		a.refreshStatus = http.StatusUnauthorized
		a.refreshDelay = 50 * time.Millisecond
	})
	h := newHarness(t, srv.URL)
	h.seed(t, accessToken(t, time.Now().Add(-time.Second)), "refresh-1")
	slowSecondExpiry(h, 200*time.Millisecond)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.client.Get(context.Background(), "/api/data", nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.True(t, IsRenewal(err))
	}
	require.True(t, errors.Is(errs[0], ErrSessionEnded) || errors.Is(errs[1], ErrSessionEnded))
	require.EqualValues(t, 1, api.refreshCalls.Load())
	require.Len(t, h.events(authevents.EventSessionExpired), 1)
	require.Len(t, h.nav.Routes(), 1)
}
