package authsdk

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/authevents"
	"github.com/stretchr/testify/require"
)

func TestWatcherCheck(t *testing.T) {
	t.Parallel()

	t.Run("renews near expiry", func(t *testing.T) {
		api, srv := newFakeAPI(t, func(a *fakeAPI) {
			a.nextToken = accessToken(t, time.Now().Add(time.Hour))
		})

		h := newHarness(t, srv.URL)
		h.seed(t, accessToken(t, time.Now().Add(10*time.Second)), "refresh-1")

		w := NewWatcher(h.client, time.Hour, time.Minute)
		w.Check(context.Background())

		require.Equal(t, int32(1), api.refreshCalls.Load())
		require.Equal(t, api.nextToken, h.store.AccessToken(context.Background()))
	})

	t.Run("leaves fresh tokens alone", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		h := newHarness(t, srv.URL)
		h.seed(t, accessToken(t, time.Now().Add(time.Hour)), "refresh-1")

		NewWatcher(h.client, time.Hour, time.Minute).Check(context.Background())
		require.Zero(t, api.refreshCalls.Load())
	})

	t.Run("reports expiry without refresh token", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		h := newHarness(t, srv.URL)
		h.seed(t, accessToken(t, time.Now().Add(-time.Minute)), "")

		NewWatcher(h.client, time.Hour, time.Minute).Check(context.Background())
		require.Zero(t, api.refreshCalls.Load())
		require.Len(t, h.events(authevents.EventTokenExpired), 1)
	})
}

func TestWatcherStartStop(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t, func(a *fakeAPI) {
		a.nextToken = accessToken(t, time.Now().Add(time.Hour))
	})
	h := newHarness(t, srv.URL)
	h.seed(t, accessToken(t, time.Now().Add(5*time.Second)), "refresh-1")

	w := NewWatcher(h.client, 10*time.Millisecond, time.Minute)
	w.Start()
	require.Eventually(t, func() bool { return api.refreshCalls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	w.Stop()
	w.Stop()
}
