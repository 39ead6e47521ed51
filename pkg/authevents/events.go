package authevents

import (
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/idx"
)

// EventType names one of the authentication lifecycle events.
type EventType string

const (
	EventLogin              EventType = "login"
	EventLogout             EventType = "logout"
	EventTokenExpired       EventType = "token-expired"
	EventTokenRefreshed     EventType = "token-refreshed"
	EventAuthError          EventType = "auth-error"
	EventSessionExpired     EventType = "session-expired"
	EventPermissionsChanged EventType = "permissions-changed"
	EventUserUpdated        EventType = "user-updated"
)

// AllTypes lists every event type in declaration order. Subscribe registers
// against each of these.
var AllTypes = []EventType{
	EventLogin,
	EventLogout,
	EventTokenExpired,
	EventTokenRefreshed,
	EventAuthError,
	EventSessionExpired,
	EventPermissionsChanged,
	EventUserUpdated,
}

// ErrorType classifies an auth-error payload.
type ErrorType string

const (
	ErrorCredentials ErrorType = "credentials"
	ErrorToken       ErrorType = "token"
	ErrorNetwork     ErrorType = "network"
	ErrorServer      ErrorType = "server"
	ErrorPermissions ErrorType = "permissions"
	ErrorUnknown     ErrorType = "unknown"
)

// Event is one record in the bus history.
type Event struct {
	ID        idx.ID    `json:"id"`
	Type      EventType `json:"type"`
	Data      Payload   `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// TimestampMillis returns the record timestamp as epoch milliseconds.
func (e Event) TimestampMillis() int64 { return e.Timestamp.UnixMilli() }

func (e Event) clone() Event {
	e.Data = e.Data.clone()
	return e
}
