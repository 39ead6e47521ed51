package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

var ErrInvalidRefresh = errors.New("invalid_refresh_token")

// TokenPair is what login and refresh hand back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

type refreshRecord struct {
	userID    int64
	expiresAt time.Time
	revoked   bool
}

// TokenService mints access tokens and rotates opaque refresh tokens. Only
// fingerprints of refresh tokens are kept.
type TokenService struct {
	Signer     jwtx.Signer
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time

	mu      sync.Mutex
	refresh map[string]*refreshRecord
}

func NewTokenService(signer jwtx.Signer, issuer string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	return &TokenService{
		Signer:     signer,
		Issuer:     issuer,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		Now:        time.Now,
		refresh:    make(map[string]*refreshRecord),
	}
}

// Issue mints a new pair for u.
func (s *TokenService) Issue(ctx context.Context, u User) (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(ctx, u)
}

// Refresh consumes rt and returns a new pair for its owner. Presenting a
// refresh token that was already rotated revokes every token of that user.
func (s *TokenService) Refresh(ctx context.Context, rt string, users *UserService) (TokenPair, User, error) {
	l := slogx.FromContext(ctx)
	now := s.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refresh[cryptox.FingerprintToken(rt)]
	if !ok {
		return TokenPair{}, User{}, ErrInvalidRefresh
	}

	if rec.revoked {
		l.Warn("refresh token reuse detected, revoking all sessions", slog.Int64("user_id", rec.userID))
		s.revokeUserLocked(rec.userID)
		return TokenPair{}, User{}, ErrInvalidRefresh
	}
	if now.After(rec.expiresAt) {
		return TokenPair{}, User{}, ErrInvalidRefresh
	}

	u, err := users.GetByID(ctx, rec.userID)
	if err != nil {
		return TokenPair{}, User{}, ErrInvalidRefresh
	}

	rec.revoked = true

	pair, err := s.issueLocked(ctx, u)
	if err != nil {
		return TokenPair{}, User{}, err
	}
	return pair, u, nil
}

// Revoke invalidates rt. Unknown tokens are ignored.
func (s *TokenService) Revoke(_ context.Context, rt string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.refresh[cryptox.FingerprintToken(rt)]; ok {
		rec.revoked = true
	}
}

// DeleteExpired drops expired refresh records and reports how many went.
// Revoked but unexpired records are kept so reuse is still detected.
func (s *TokenService) DeleteExpired(_ context.Context) int {
	now := s.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for k, rec := range s.refresh {
		if now.After(rec.expiresAt) {
			delete(s.refresh, k)
			n++
		}
	}
	return n
}

func (s *TokenService) issueLocked(_ context.Context, u User) (TokenPair, error) {
	now := s.Now()

	claims := jwtx.NewAccessClaims(u.Username, u.ID, u.Authorities, s.AccessTTL, s.Issuer, now)
	access, err := s.Signer.Sign(claims)
	if err != nil {
		return TokenPair{}, err
	}

	rt, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return TokenPair{}, err
	}

	s.refresh[cryptox.FingerprintToken(rt)] = &refreshRecord{
		userID:    u.ID,
		expiresAt: now.Add(s.RefreshTTL),
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: rt,
		ExpiresIn:    int(s.AccessTTL.Seconds()),
	}, nil
}

func (s *TokenService) revokeUserLocked(userID int64) {
	for _, rec := range s.refresh {
		if rec.userID == userID {
			rec.revoked = true
		}
	}
}
