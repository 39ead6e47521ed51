package authsdk

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/tabsession/pkg/authevents"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
)

// Default endpoint paths, relative to Config.BaseURL.
const (
	DefaultLoginPath            = "/api/auth/login"
	DefaultRefreshPath          = "/api/auth/refresh"
	DefaultLogoutPath           = "/api/auth/logout"
	DefaultProfilePath          = "/api/users/me"
	DefaultHealthPath           = "/livez"
	DefaultUnauthenticatedRoute = "/login"
	DefaultTimeout              = 10 * time.Second
)

// Config describes the remote service. Zero fields take the defaults above.
type Config struct {
	BaseURL     string
	LoginPath   string
	RefreshPath string
	LogoutPath  string
	ProfilePath string
	HealthPath  string

	// UnauthenticatedRoute is handed to the Navigator when renewal fails.
	UnauthenticatedRoute string

	Timeout time.Duration

	// RateLimit caps outbound requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.RefreshPath == "" {
		c.RefreshPath = DefaultRefreshPath
	}
	if c.LogoutPath == "" {
		c.LogoutPath = DefaultLogoutPath
	}
	if c.ProfilePath == "" {
		c.ProfilePath = DefaultProfilePath
	}
	if c.HealthPath == "" {
		c.HealthPath = DefaultHealthPath
	}
	if c.UnauthenticatedRoute == "" {
		c.UnauthenticatedRoute = DefaultUnauthenticatedRoute
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	return c
}

// Navigator moves the application to a route, e.g. the login screen.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// Client is the authenticated call pipeline.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	store   *tokenstore.Store
	bus     *authevents.Bus
	nav     Navigator
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time

	refresh refreshCoordinator
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client. Its transport is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.nav = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient builds a client that reads and writes credentials through
// store and reports on bus. A nil bus uses the store's.
func NewClient(cfg Config, store *tokenstore.Store, bus *authevents.Bus, opts ...Option) *Client {
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:   cfg,
		store: store,
		bus:   bus,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = slogx.OrDefault(c.logger).With("component", "authsdk")
	if c.bus == nil {
		c.bus = store.Bus()
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: slogx.NewTransport(nil, c.logger),
		}
	}
	if c.nav == nil {
		c.nav = NavigatorFunc(func(route string) {
			c.logger.Info("session ended, navigate to unauthenticated route", "route", route)
		})
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	if base, err := url.Parse(cfg.BaseURL); err == nil {
		c.base = base
	}

	return c
}

// Store returns the token store the client uses.
func (c *Client) Store() *tokenstore.Store { return c.store }

// Bus returns the bus the client emits on.
func (c *Client) Bus() *authevents.Bus { return c.bus }

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }
