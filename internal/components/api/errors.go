// Package api provides the HTTP surface of the fetch service: the response
// envelope, the fetch handler and the health check.
package api

import (
	"encoding/json"
	"net/http"
)

// Error ids emitted by the HTTP layer itself. Fetch failures use fetch.Kind.
const (
	IDInvalidBody      = "INVALID_BODY"
	IDRateLimited      = "RATE_LIMITED"
	IDNotFound         = "NOT_FOUND"
	IDMethodNotAllowed = "METHOD_NOT_ALLOWED"
	IDInternalError    = "INTERNAL_ERROR"
)

// Envelope is the body of every API response. Exactly one of Errors and
// Data is non-null.
type Envelope struct {
	Status int          `json:"status"`
	Errors *ErrorDetail `json:"errors"`
	Data   any          `json:"data"`
}

// ErrorDetail identifies a failure.
type ErrorDetail struct {
	ID     string `json:"id"`
	Detail string `json:"detail"`
}

func writeEnvelope(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.Status)
	json.NewEncoder(w).Encode(env)
}

// WriteData writes a 200 envelope carrying data.
func WriteData(w http.ResponseWriter, data any) {
	writeEnvelope(w, Envelope{Status: http.StatusOK, Data: data})
}

// WriteError writes an error envelope; the HTTP status and the status
// field always agree.
func WriteError(w http.ResponseWriter, statusCode int, id, detail string) {
	writeEnvelope(w, Envelope{
		Status: statusCode,
		Errors: &ErrorDetail{ID: id, Detail: detail},
	})
}

// WriteBadRequest writes a 400 INVALID_BODY error.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, IDInvalidBody, detail)
}

// WriteTooManyRequests writes a 429 RATE_LIMITED error. Callers set Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusTooManyRequests, IDRateLimited, detail)
}

// NotFoundHandler answers unknown routes with the envelope.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, IDNotFound, "no route for "+r.URL.Path)
}

// MethodNotAllowedHandler answers known routes hit with the wrong verb.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, IDMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
}
