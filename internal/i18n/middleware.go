package i18n

import "net/http"

// Middleware injects the catalog into every request context.
func Middleware(c *Catalog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Language", c.Lang())
			next.ServeHTTP(w, r.WithContext(WithCatalog(r.Context(), c)))
		})
	}
}
