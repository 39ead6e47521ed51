package authevents

import (
	"slices"
	"time"
)

// Payload is the closed set of event payloads. Each variant maps to exactly
// one EventType; the unexported method keeps other packages from adding
// variants.
type Payload interface {
	Type() EventType
	At() time.Time
	withTimestamp(time.Time) Payload
	clone() Payload
}

// Meta is embedded in every payload. A zero Timestamp is filled in by Emit.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

func (m Meta) At() time.Time { return m.Timestamp }

type LoginPayload struct {
	Meta
	UserID      int64    `json:"userId"`
	Username    string   `json:"username"`
	Authorities []string `json:"authorities,omitempty"`
}

type LogoutPayload struct {
	Meta
	UserID   int64  `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type TokenExpiredPayload struct {
	Meta
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	// TokenExpirationTime is exp*1000 (epoch millis).
	TokenExpirationTime int64 `json:"tokenExpirationTime"`
}

type TokenRefreshedPayload struct {
	Meta
	UserID            int64  `json:"userId"`
	Username          string `json:"username"`
	NewExpirationTime int64  `json:"newExpirationTime"`
	OldToken          string `json:"oldToken"`
	NewToken          string `json:"newToken"`
}

type AuthErrorPayload struct {
	Meta
	ErrorMessage string    `json:"errorMessage"`
	ErrorType    ErrorType `json:"errorType"`
	Status       int       `json:"status,omitempty"`
	Path         string    `json:"path,omitempty"`
}

type SessionExpiredPayload struct {
	Meta
	UserID   int64  `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type PermissionsChangedPayload struct {
	Meta
	UserID         int64    `json:"userId"`
	OldPermissions []string `json:"oldPermissions"`
	NewPermissions []string `json:"newPermissions"`
}

type UserUpdatedPayload struct {
	Meta
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	// Changed lists the profile fields that differ from the previous profile.
	Changed []string `json:"changed,omitempty"`
}

func (LoginPayload) Type() EventType              { return EventLogin }
func (LogoutPayload) Type() EventType             { return EventLogout }
func (TokenExpiredPayload) Type() EventType       { return EventTokenExpired }
func (TokenRefreshedPayload) Type() EventType     { return EventTokenRefreshed }
func (AuthErrorPayload) Type() EventType          { return EventAuthError }
func (SessionExpiredPayload) Type() EventType     { return EventSessionExpired }
func (PermissionsChangedPayload) Type() EventType { return EventPermissionsChanged }
func (UserUpdatedPayload) Type() EventType        { return EventUserUpdated }

func (p LoginPayload) withTimestamp(t time.Time) Payload              { p.Timestamp = t; return p }
func (p LogoutPayload) withTimestamp(t time.Time) Payload             { p.Timestamp = t; return p }
func (p TokenExpiredPayload) withTimestamp(t time.Time) Payload       { p.Timestamp = t; return p }
func (p TokenRefreshedPayload) withTimestamp(t time.Time) Payload     { p.Timestamp = t; return p }
func (p AuthErrorPayload) withTimestamp(t time.Time) Payload          { p.Timestamp = t; return p }
func (p SessionExpiredPayload) withTimestamp(t time.Time) Payload     { p.Timestamp = t; return p }
func (p PermissionsChangedPayload) withTimestamp(t time.Time) Payload { p.Timestamp = t; return p }
func (p UserUpdatedPayload) withTimestamp(t time.Time) Payload        { p.Timestamp = t; return p }

func (p LoginPayload) clone() Payload {
	p.Authorities = slices.Clone(p.Authorities)
	return p
}

func (p PermissionsChangedPayload) clone() Payload {
	p.OldPermissions = slices.Clone(p.OldPermissions)
	p.NewPermissions = slices.Clone(p.NewPermissions)
	return p
}

func (p UserUpdatedPayload) clone() Payload {
	p.Changed = slices.Clone(p.Changed)
	return p
}

func (p LogoutPayload) clone() Payload         { return p }
func (p TokenExpiredPayload) clone() Payload   { return p }
func (p TokenRefreshedPayload) clone() Payload { return p }
func (p AuthErrorPayload) clone() Payload      { return p }
func (p SessionExpiredPayload) clone() Payload { return p }
