// Package apierr defines the typed API error carried up from handlers to a
// single rendering function at the router edge, per spec §4.6/§7 and
// the teacher's "translate domain error at the boundary" idiom.
package apierr

import "net/http"

// Error is a typed API error: a machine-readable code, the HTTP status it
// maps to, a human message, and optional structured details.
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Details    any
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func New(status int, code, message string) *Error {
	return &Error{HTTPStatus: status, Code: code, Message: message}
}

func WithDetails(status int, code, message string, details any) *Error {
	return &Error{HTTPStatus: status, Code: code, Message: message, Details: details}
}

// Envelope is the wire shape of an error response, per spec §6.
type Envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Render converts an Error into its HTTP status and response envelope.
func Render(err *Error) (int, Envelope) {
	return err.HTTPStatus, Envelope{Code: err.Code, Message: err.Message, Details: err.Details}
}

// Constructors for every error kind in spec §7's table.

func Validation(details any) *Error {
	return WithDetails(http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", details)
}

func TokenError(code string) *Error {
	return New(http.StatusUnauthorized, code, "playback token rejected: "+code)
}

func TokenScopeMismatch() *Error {
	return New(http.StatusForbidden, "PLAYBACK_TOKEN_SCOPE_MISMATCH", "token scope does not match requested stream")
}

func SessionClosed() *Error {
	return New(http.StatusUnauthorized, "PLAYBACK_SESSION_CLOSED", "session is closed; re-issue a token")
}

func StreamNotFound() *Error {
	return New(http.StatusNotFound, "PLAYBACK_STREAM_NOT_FOUND", "stream is not provisioned")
}

func StreamNotReady() *Error {
	return New(http.StatusConflict, "PLAYBACK_STREAM_NOT_READY", "stream is still provisioning")
}

func StreamStopped() *Error {
	return New(http.StatusGone, "PLAYBACK_STREAM_STOPPED", "stream has been deprovisioned")
}

func ManifestNotFound() *Error {
	return New(http.StatusNotFound, "PLAYBACK_MANIFEST_NOT_FOUND", "manifest could not be read")
}

func SegmentNotFound() *Error {
	return New(http.StatusNotFound, "PLAYBACK_SEGMENT_NOT_FOUND", "segment could not be read")
}

func NotFound() *Error {
	return New(http.StatusNotFound, "NOT_FOUND", "Route not found")
}

func Internal(message string) *Error {
	return New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message)
}
