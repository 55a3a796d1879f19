// Package httpwrap provides handler wrappers shared by services.
package httpwrap

import "net/http"

// ClearRawPath drops r.URL.RawPath so chi routes and extracts URL params
// from the decoded path; /api/HTTP/G%45T yields the method "GET".
func ClearRawPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.RawPath = ""
		next.ServeHTTP(w, r)
	})
}
