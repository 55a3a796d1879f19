package fetch

import (
	"fmt"
	"net/http"
	"strings"
)

// RequestRecord is one attempted hop.
type RequestRecord struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// ResponseRecord is the response received for the hop at the same index.
type ResponseRecord struct {
	HTTPVersion string            `json:"http_version"`
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
}

// Result is the full trail of a successful fetch. Request and Response
// always have the same length.
type Result struct {
	Request  []RequestRecord  `json:"request"`
	Response []ResponseRecord `json:"response"`
}

// AllowedHeaders is the set of response headers kept in a ResponseRecord.
var AllowedHeaders = []string{"Content-Type", "Content-Length", "Date", "Server", "Location"}

// FilterHeaders keeps only AllowedHeaders. Keys are matched exactly against
// the canonical names; repeated values are joined with ", ".
func FilterHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(AllowedHeaders))
	for _, name := range AllowedHeaders {
		if v, ok := h[name]; ok {
			out[name] = strings.Join(v, ", ")
		}
	}
	return out
}

// HTTPVersion renders a protocol version as "HTTP/<major>.<minor>".
func HTTPVersion(major, minor int) string {
	return fmt.Sprintf("HTTP/%d.%d", major, minor)
}

// HTTPVersionFromRaw renders a packed version number such as 11 or 10.
func HTTPVersionFromRaw(raw int) string {
	return HTTPVersion(raw/10, raw%10)
}

// IsRedirect reports whether code is a status the fetcher follows.
func IsRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
