package fetch

import (
	"net/url"
	"strings"
)

// DecomposedURL is a URL split into the parts reported back to callers.
// Missing parts are empty strings.
type DecomposedURL struct {
	URL       string `json:"url"`
	Scheme    string `json:"protocol"`
	Authority string `json:"domain"`
	Path      string `json:"path"`
}

// Decompose splits raw into scheme, authority (host[:port]) and path.
// It fails only when raw cannot be tokenized; the scheme is not checked.
func Decompose(raw string) (DecomposedURL, error) {
	u, err := parseURL(raw)
	if err != nil {
		return DecomposedURL{}, err
	}
	return DecomposedURL{
		URL:       raw,
		Scheme:    u.Scheme,
		Authority: u.Host,
		Path:      rawPath(raw, u.Scheme),
	}, nil
}

// rawPath returns the path of raw as written: no decoding and no
// re-escaping of characters net/url would encode. For opaque URLs such as
// mailto:a@b the opaque part is the path.
func rawPath(raw, scheme string) string {
	rest := raw
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if scheme != "" {
		rest = rest[len(scheme)+1:]
	}
	if authority, ok := strings.CutPrefix(rest, "//"); ok {
		i := strings.IndexByte(authority, '/')
		if i < 0 {
			return ""
		}
		rest = authority[i:]
	}
	return rest
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, newError(KindInvalidURL, detailInvalidURL, err)
	}
	return u, nil
}
