package tokenstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("tokenstore: not found")

// Fixed keys in the durable medium.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserProfile  = "user_profile"
)

// Medium is the durable key-value collaborator behind a Store. Drivers live
// under drivers/. Reads must observe every completed write.
type Medium interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete ignores keys that are already absent.
	Delete(ctx context.Context, keys ...string) error
}
