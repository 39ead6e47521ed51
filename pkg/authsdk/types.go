package authsdk

import (
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
)

// RequestOptions controls a single pipeline call.
type RequestOptions struct {
	// Method defaults to GET.
	Method string

	Headers map[string]string

	// Body is sent as JSON. A []byte is sent as is.
	Body any

	// SkipAuth sends no credential and never attempts renewal.
	SkipAuth bool

	// SkipRefresh surfaces a 401 without attempting renewal.
	SkipRefresh bool
}

// LoginRequest is the credential payload for Login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`

	// OTP is the current TOTP code for accounts with a second factor.
	OTP string `json:"otp,omitempty"`
}

// TokenResponse is returned by the login and refresh endpoints.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expiresIn,omitempty"`

	User *tokenstore.UserProfile `json:"user,omitempty"`
}

// Pair returns the credential pair carried by the response.
func (t TokenResponse) Pair() tokenstore.Pair {
	return tokenstore.Pair{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
}

// RefreshRequest is the body sent to the renewal endpoint.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HealthResponse is the liveness payload of the remote service.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}
