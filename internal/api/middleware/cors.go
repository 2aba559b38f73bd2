package middleware

import (
	"net/http"
	"slices"
)

// CORS returns a middleware that answers cross-origin requests from the
// viewer frontend. Every response additionally carries a
// Cross-Origin-Resource-Policy header so the frontend can run with
// COEP enabled (SharedArrayBuffer for WebGL rendering). The Range and
// content-length related headers are exposed because the viewer fetches
// NIfTI volumes with partial content requests.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(allowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")

			origin := r.Header.Get("Origin")
			allowed := ""
			switch {
			case origin == "":
				// Same-origin request, nothing to negotiate.
			case allowAll:
				allowed = "*"
			case slices.Contains(allowedOrigins, origin):
				allowed = origin
			}

			if allowed != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, HEAD")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
				w.Header().Set("Access-Control-Expose-Headers", "Content-Range, Content-Length, Accept-Ranges")
				if !allowAll {
					w.Header().Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
