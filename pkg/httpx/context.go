package httpx

import (
	"context"

	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
)

type claimsKey struct{}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the verified claims AuthnMiddleware stored.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(jwtx.Claims)
	return c, ok
}
