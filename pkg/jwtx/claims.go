package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants used by the stub service when minting pairs.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims is the access-token payload consumed by the client. Only the
// registered exp/sub fields plus the custom id, username and authorities
// are read, everything else rides along untouched.
type Claims struct {
	jwt.RegisteredClaims

	// Numeric user id, the subject is usually the login name.
	UserID int64 `json:"id,omitempty"`

	// Username is duplicated from sub by some issuers; fall back to sub when empty.
	Username string `json:"username,omitempty"`

	// Authorities is the ordered permission/role list, e.g. ["ROLE_USER"].
	Authorities []string `json:"authorities,omitempty"`
}

// NewAccessClaims builds minimally-correct claims.
func NewAccessClaims(
	subject string,
	userID int64,
	authorities []string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		UserID:      userID,
		Username:    subject,
		Authorities: authorities,
	}
}

// DisplayName returns the username claim, or the subject when the issuer
// did not set one.
func (c *Claims) DisplayName() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// Expiry returns the exp instant and whether the claim was present.
func (c *Claims) Expiry() (time.Time, bool) {
	if c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// ExpiresAtMillis returns exp*1000, or 0 when exp is missing.
func (c *Claims) ExpiresAtMillis() int64 {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Unix() * 1000
}

// ExpiredAt reports whether the token is expired at now. A missing exp
// counts as expired.
func (c *Claims) ExpiredAt(now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return now.UnixMilli() >= c.ExpiresAtMillis()
}

// HasAuthority reports whether the authority list contains a.
func (c *Claims) HasAuthority(a string) bool {
	return slices.Contains(c.Authorities, a)
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryWithLeeway(0)
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}

// NewJTI returns a random token identifier.
func NewJTI() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
