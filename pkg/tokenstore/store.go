package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/authevents"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// Store owns the access and refresh credentials and the cached user
// profile. It never verifies signatures; expiry and identity come from the
// unverified payload and every decode failure is treated as expired.
type Store struct {
	medium Medium
	bus    *authevents.Bus
	logger *slog.Logger
	now    func() time.Time

	// Serializes read-compare-write in SetAccessToken.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a Store over medium that reports on bus. A nil bus gets a
// private one so events are still recorded.
func New(medium Medium, bus *authevents.Bus, opts ...Option) *Store {
	s := &Store{
		medium: medium,
		bus:    bus,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = slogx.OrDefault(s.logger).With("component", "tokenstore")
	if s.bus == nil {
		s.bus = authevents.New(authevents.WithLogger(s.logger))
	}
	return s
}

// Bus returns the bus the store emits on.
func (s *Store) Bus() *authevents.Bus { return s.bus }

// AccessToken returns the stored access token, or "" when absent.
func (s *Store) AccessToken(ctx context.Context) string {
	return s.read(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when absent.
func (s *Store) RefreshToken(ctx context.Context) string {
	return s.read(ctx, KeyRefreshToken)
}

// SetAccessToken persists token. Replacing a different, existing token
// emits token-refreshed; the first token ever set emits nothing.
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	payload, changed, err := s.swapAccessToken(ctx, token)
	if err != nil || !changed {
		return err
	}
	// Emitted after the lock is released so listeners may call back in.
	s.bus.Emit(payload)
	return nil
}

func (s *Store) swapAccessToken(ctx context.Context, token string) (authevents.TokenRefreshedPayload, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.read(ctx, KeyAccessToken)
	if err := s.medium.Set(ctx, KeyAccessToken, token); err != nil {
		return authevents.TokenRefreshedPayload{}, false, fmt.Errorf("tokenstore: set access token: %w", err)
	}

	if old == "" || old == token {
		return authevents.TokenRefreshedPayload{}, false, nil
	}

	claims, ok := s.Decode(token)
	if !ok {
		return authevents.TokenRefreshedPayload{}, false, nil
	}

	return authevents.TokenRefreshedPayload{
		UserID:            claims.UserID,
		Username:          claims.DisplayName(),
		NewExpirationTime: claims.ExpiresAtMillis(),
		OldToken:          old,
		NewToken:          token,
	}, true, nil
}

// SetRefreshToken persists token without emitting.
func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	if err := s.medium.Set(ctx, KeyRefreshToken, token); err != nil {
		return fmt.Errorf("tokenstore: set refresh token: %w", err)
	}
	return nil
}

// SetTokens stores the access token and, when present, the refresh token.
func (s *Store) SetTokens(ctx context.Context, p Pair) error {
	if err := s.SetAccessToken(ctx, p.AccessToken); err != nil {
		return err
	}
	if p.RefreshToken == "" {
		return nil
	}
	return s.SetRefreshToken(ctx, p.RefreshToken)
}

// ClearTokens removes both tokens and the cached profile. Callers emit
// logout or session-expired themselves.
func (s *Store) ClearTokens(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.medium.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyUserProfile); err != nil {
		return fmt.Errorf("tokenstore: clear: %w", err)
	}
	return nil
}

// Decode parses the token payload without verifying it. Malformed input is
// logged and reported as absent.
func (s *Store) Decode(token string) (*jwtx.Claims, bool) {
	claims, err := jwtx.Decode(token)
	if err != nil {
		s.logger.Debug("token decode failed", "err", err)
		return nil, false
	}
	return claims, true
}

// IsExpired reports whether token is expired or undecodable. Each expired
// result for a decodable token emits token-expired.
func (s *Store) IsExpired(token string) bool {
	claims, ok := s.Decode(token)
	if !ok {
		return true
	}

	if !claims.ExpiredAt(s.now()) {
		return false
	}

	s.bus.Emit(authevents.TokenExpiredPayload{
		UserID:              claims.UserID,
		Username:            claims.DisplayName(),
		TokenExpirationTime: claims.ExpiresAtMillis(),
	})
	return true
}

// IsAuthenticated is true iff an access token exists and is not expired.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	token := s.AccessToken(ctx)
	if token == "" {
		return false
	}
	return !s.IsExpired(token)
}

// RemainingSeconds returns the whole seconds left on the access token, 0
// when there is none or it cannot be decoded.
func (s *Store) RemainingSeconds(ctx context.Context) int {
	token := s.AccessToken(ctx)
	if token == "" {
		return 0
	}
	claims, ok := s.Decode(token)
	if !ok {
		return 0
	}
	left := (claims.ExpiresAtMillis() - s.now().UnixMilli()) / 1000
	return int(max(0, left))
}

// CurrentUser returns the cached profile, if any.
func (s *Store) CurrentUser(ctx context.Context) (*UserProfile, bool) {
	raw := s.read(ctx, KeyUserProfile)
	if raw == "" {
		return nil, false
	}

	var p UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("discarding unreadable user profile", "err", err)
		return nil, false
	}
	return &p, true
}

// SetUser caches p as the serialized profile entry.
func (s *Store) SetUser(ctx context.Context, p UserProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("tokenstore: encode profile: %w", err)
	}
	if err := s.medium.Set(ctx, KeyUserProfile, string(raw)); err != nil {
		return fmt.Errorf("tokenstore: set profile: %w", err)
	}
	return nil
}

// Authorities returns the access token's authority list, falling back to
// the cached profile when the token carries none.
func (s *Store) Authorities(ctx context.Context) []string {
	if claims, ok := s.Decode(s.AccessToken(ctx)); ok && len(claims.Authorities) > 0 {
		return claims.Authorities
	}
	if p, ok := s.CurrentUser(ctx); ok {
		return p.Authorities
	}
	return nil
}

// HasAuthority reports whether a is present in Authorities.
func (s *Store) HasAuthority(ctx context.Context, a string) bool {
	return slices.Contains(s.Authorities(ctx), a)
}

// read treats medium failures as absence.
func (s *Store) read(ctx context.Context, key string) string {
	v, err := s.medium.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("medium read failed", "key", key, "err", err)
		}
		return ""
	}
	return v
}
