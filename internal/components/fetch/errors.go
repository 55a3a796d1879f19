package fetch

import (
	"errors"
	"fmt"
)

// Kind is the stable wire identifier of a fetch failure.
type Kind string

const (
	KindInvalidURL          Kind = "INVALID_URL"
	KindInvalidDomainRecord Kind = "INVALID_DOMAIN_RECORD"
	KindSSRFDetected        Kind = "SSRF_DETECTED"
	KindRequestException    Kind = "REQUEST_EXCEPTION"
	KindTooManyRedirects    Kind = "TOO_MANY_REDIRECTS"
)

// Sentinel errors, one per Kind, for use with errors.Is.
var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrInvalidDomainRecord = errors.New("invalid domain record")
	ErrSSRFDetected        = errors.New("ssrf detected")
	ErrRequestException    = errors.New("request exception")
	ErrTooManyRedirects    = errors.New("too many redirects")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidURL:
		return ErrInvalidURL
	case KindInvalidDomainRecord:
		return ErrInvalidDomainRecord
	case KindSSRFDetected:
		return ErrSSRFDetected
	case KindTooManyRedirects:
		return ErrTooManyRedirects
	default:
		return ErrRequestException
	}
}

// Error is the single failure value produced by Fetch and Decompose.
// Detail is safe to return to callers; Err keeps the underlying cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf returns the Kind carried by err. Errors that did not come from
// this package are reported as KindRequestException.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindRequestException
}

func newError(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

const (
	detailInvalidURL       = "The URL you provided is invalid"
	detailInvalidDomain    = "The domain url is pointing to an invalid IP address"
	detailSSRF             = "The URL you provided is a private IP address. This is not allowed"
	detailTooManyRedirects = "Too many redirects while following the url you provided"
)

func requestException(cause error) *Error {
	return newError(KindRequestException, fmt.Sprintf("Generic request exception: %v", cause), cause)
}
