package authsdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/authevents"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore/drivers/memory"
	"github.com/stretchr/testify/require"
)

// unsignedToken builds a compact JWT carrying claims. Nothing on the client
// verifies the signature.
func unsignedToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return "eyJhbGciOiJub25lIn0." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func accessToken(t *testing.T, exp time.Time, authorities ...string) string {
	t.Helper()
	if len(authorities) == 0 {
		authorities = []string{"ROLE_USER"}
	}
	return unsignedToken(t, map[string]any{
		"sub":         "alice",
		"id":          42,
		"exp":         exp.Unix(),
		"authorities": authorities,
		// jti keeps tokens minted in the same second distinct
		"jti": time.Now().String(),
	})
}

// fakeAPI is a minimal remote service. /api/data accepts only the current
// token; /api/auth/refresh rotates it.
type fakeAPI struct {
	t *testing.T

	mu           sync.Mutex
	validToken   string
	nextToken    string
	refreshToken string

	refreshCalls atomic.Int32
	dataCalls    atomic.Int32

	refreshDelay  time.Duration
	refreshStatus int
	dataHandler   http.HandlerFunc
}

// newFakeAPI applies configure before the server starts serving.
func newFakeAPI(t *testing.T, configure ...func(*fakeAPI)) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{t: t, refreshToken: "refresh-1"}
	for _, fn := range configure {
		fn(api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/refresh", api.refresh)
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		api.dataCalls.Add(1)
		if api.dataHandler != nil {
			api.dataHandler(w, r)
			return
		}
		api.mu.Lock()
		valid := api.validToken
		api.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+valid {
			httpx.WriteError(w, r, http.StatusUnauthorized, "token expired")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) refresh(w http.ResponseWriter, r *http.Request) {
	a.refreshCalls.Add(1)
	if a.refreshDelay > 0 {
		time.Sleep(a.refreshDelay)
	}
	if a.refreshStatus != 0 {
		httpx.WriteError(w, r, a.refreshStatus, "refresh token revoked")
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken != a.refreshToken {
		httpx.WriteError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	a.mu.Lock()
	a.validToken = a.nextToken
	a.refreshToken = "refresh-2"
	resp := TokenResponse{AccessToken: a.nextToken, RefreshToken: a.refreshToken, TokenType: "Bearer"}
	a.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, resp)
}

type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNavigator) Navigate(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *recordingNavigator) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

type harness struct {
	client *Client
	store  *tokenstore.Store
	bus    *authevents.Bus
	nav    *recordingNavigator
}

func newHarness(t *testing.T, baseURL string) *harness {
	t.Helper()
	bus := authevents.New(authevents.WithLogger(slogx.Discard()))
	store := tokenstore.New(memory.New(), bus, tokenstore.WithLogger(slogx.Discard()))
	nav := &recordingNavigator{}
	client := NewClient(Config{BaseURL: baseURL}, store, bus,
		WithLogger(slogx.Discard()),
		WithNavigator(nav),
	)
	return &harness{client: client, store: store, bus: bus, nav: nav}
}

func (h *harness) seed(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, h.store.SetTokens(context.Background(), tokenstore.Pair{AccessToken: access, RefreshToken: refresh}))
}

func (h *harness) events(et authevents.EventType) []authevents.Event {
	var out []authevents.Event
	for _, e := range h.bus.History() {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}
