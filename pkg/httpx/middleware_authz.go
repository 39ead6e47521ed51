package httpx

import (
	"net/http"
	"strings"
)

// RequireAnyAuthority the caller must hold at least one of the authorities.
// Must run after AuthnMiddleware.
func RequireAnyAuthority(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if ok {
				for _, a := range required {
					if claims.HasAuthority(a) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			w.Header().Set("WWW-Authenticate",
				`Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
			WriteError(w, r, http.StatusForbidden, "missing authority: "+strings.Join(required, ", "))
		})
	}
}
