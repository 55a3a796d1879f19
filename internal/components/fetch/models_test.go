package fetch

import (
	"net/http"
	"testing"
)

func TestHTTPVersion(t *testing.T) {
	tests := []struct {
		raw  int
		want string
	}{
		{10, "HTTP/1.0"},
		{11, "HTTP/1.1"},
		{20, "HTTP/2.0"},
	}
	for _, tt := range tests {
		if got := HTTPVersionFromRaw(tt.raw); got != tt.want {
			t.Errorf("HTTPVersionFromRaw(%d) = %q, want %q", tt.raw, got, tt.want)
		}
	}
	if got := HTTPVersion(1, 1); got != "HTTP/1.1" {
		t.Errorf("HTTPVersion(1, 1) = %q", got)
	}
}

func TestFilterHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "text/html")
	h.Set("Content-Length", "42")
	h.Set("Date", "Mon, 02 Jan 2006 15:04:05 GMT")
	h.Set("Server", "nginx")
	h.Set("Location", "/next")
	h.Add("Set-Cookie", "a=1")
	h.Set("X-Powered-By", "PHP")
	h["content-type"] = []string{"lowercase variant is not canonical"}

	got := FilterHeaders(h)

	want := map[string]string{
		"Content-Type":   "text/html",
		"Content-Length": "42",
		"Date":           "Mon, 02 Jan 2006 15:04:05 GMT",
		"Server":         "nginx",
		"Location":       "/next",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d headers %v, want %d", len(got), got, len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	for _, k := range []string{"Set-Cookie", "X-Powered-By", "content-type"} {
		if _, ok := got[k]; ok {
			t.Errorf("%s must be dropped", k)
		}
	}
}

func TestFilterHeaders_JoinsRepeatedValues(t *testing.T) {
	h := http.Header{}
	h.Add("Server", "a")
	h.Add("Server", "b")

	if got := FilterHeaders(h)["Server"]; got != "a, b" {
		t.Errorf("Server = %q, want %q", got, "a, b")
	}
}

func TestFilterHeaders_EmptyIsNonNil(t *testing.T) {
	got := FilterHeaders(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("want empty non-nil map, got %#v", got)
	}
}

func TestIsRedirect(t *testing.T) {
	for code, want := range map[int]bool{
		200: false, 300: false, 301: true, 302: true, 303: true,
		304: false, 305: false, 307: true, 308: true, 404: false,
	} {
		if got := IsRedirect(code); got != want {
			t.Errorf("IsRedirect(%d) = %v, want %v", code, got, want)
		}
	}
}
