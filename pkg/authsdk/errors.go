package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tabsession/pkg/httpx"
)

var (
	ErrNoRefreshToken      = errors.New("authsdk: no refresh token")
	ErrRefreshTokenExpired = errors.New("authsdk: refresh token expired")
	ErrEmptyAccessToken    = errors.New("authsdk: renewal returned no access token")
	ErrSessionEnded        = errors.New("authsdk: session already ended")
)

// Kind classifies an *Error.
type Kind int

const (
	// KindTransport is a network failure or an unsuccessful status.
	KindTransport Kind = iota
	// KindDecode is a response body that could not be decoded.
	KindDecode
	// KindAuth is a 401 for a credential that has not expired.
	KindAuth
	// KindRenewal means the session is gone.
	KindRenewal
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindAuth:
		return "auth"
	case KindRenewal:
		return "renewal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the single error shape returned by the pipeline. Status is 0
// when no response was received.
type Error struct {
	Kind      Kind
	Status    int
	Message   string
	Path      string
	Timestamp string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("authsdk: ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " %d", e.Status)
	}
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsRenewal reports whether err means the session could not be renewed.
func IsRenewal(err error) bool { return kindOf(err) == KindRenewal }

// IsAuth reports whether err is a 401 for a still-valid credential.
func IsAuth(err error) bool { return kindOf(err) == KindAuth }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return -1
}

func renewalError(path string, status int, msg string, cause error) *Error {
	return &Error{Kind: KindRenewal, Status: status, Path: path, Message: msg, Err: cause}
}

// parseErrorResponse turns an unsuccessful response into an *Error,
// reading the {status, message, path, timestamp} envelope when present.
func parseErrorResponse(kind Kind, status int, path string, body []byte) *Error {
	e := &Error{
		Kind:    kind,
		Status:  status,
		Path:    path,
		Message: http.StatusText(status),
	}

	var env httpx.ErrorBody
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			e.Message = env.Message
		}
		if env.Path != "" {
			e.Path = env.Path
		}
		e.Timestamp = env.Timestamp
	}

	return e
}
