package clientip

import "net/http"

// Middleware stores the client address resolved from headers in the request context.
// Only list headers the fronting gateway overwrites; anything else is caller controlled.
func Middleware(headers ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithContext(r.Context(), GetIP(r, headers...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
