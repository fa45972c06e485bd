package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Exit codes for keyrelay
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitNoCredentials = 2
	ExitUpstreamError = 3
	ExitServeError    = 5
	ExitConfigError   = 6
	ExitInternalFault = 9
)

// Kind classifies a RelayError so the HTTP boundary can map it to a status.
type Kind string

const (
	KindGeneral              Kind = "General"
	KindNoCredentials        Kind = "NoCredentialsConfigured"
	KindCredentialsExhausted Kind = "CredentialsExhausted"
	KindUpstreamTransport    Kind = "UpstreamTransportFailure"
	KindMalformedBody        Kind = "MalformedRequestBody"
	KindConfig               Kind = "ConfigError"
	KindInternalFault        Kind = "InternalFault"
)

// RelayError is the base error type for keyrelay
type RelayError struct {
	Code    int
	Kind    Kind
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *RelayError) ExitCode() int {
	return e.Code
}

// New creates a new RelayError
func New(code int, message string) *RelayError {
	return &RelayError{
		Code:    code,
		Kind:    KindGeneral,
		Message: message,
	}
}

// Wrap wraps an existing error with a RelayError
func Wrap(code int, message string, cause error) *RelayError {
	return &RelayError{
		Code:    code,
		Kind:    KindGeneral,
		Message: message,
		Cause:   cause,
	}
}

func withKind(e *RelayError, kind Kind) *RelayError {
	e.Kind = kind
	return e
}

// Common error constructors

// NoCredentials returns the error raised when the key store is empty
func NoCredentials() *RelayError {
	return withKind(New(ExitNoCredentials, "no API keys configured"), KindNoCredentials)
}

// CredentialsExhausted wraps a selector failure on the forwarding path
func CredentialsExhausted(cause error) *RelayError {
	return withKind(Wrap(ExitNoCredentials, "no API key available for request", cause), KindCredentialsExhausted)
}

// UpstreamTransport returns an error for a request that never got an upstream response
func UpstreamTransport(cause error) *RelayError {
	return withKind(Wrap(ExitUpstreamError, "upstream request failed", cause), KindUpstreamTransport)
}

// MalformedBody returns an error for a body that does not parse as its declared type
func MalformedBody(contentType string) *RelayError {
	return withKind(New(ExitGeneralError, fmt.Sprintf("request body is not valid %s", contentType)), KindMalformedBody)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *RelayError {
	return withKind(Wrap(ExitConfigError, message, cause), KindConfig)
}

// ServeError returns an error for listener and server lifecycle failures
func ServeError(message string, cause error) *RelayError {
	return Wrap(ExitServeError, message, cause)
}

// InternalFault returns an error for an unexpected fault inside a handler
func InternalFault(cause error) *RelayError {
	return withKind(Wrap(ExitInternalFault, "internal fault", cause), KindInternalFault)
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *RelayError {
	return withKind(New(ExitConfigError, message), KindConfig)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.ExitCode()
	}
	return ExitGeneralError
}

// KindOf returns the kind of the first RelayError in err's chain
func KindOf(err error) Kind {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return KindGeneral
}

// HTTPStatus maps an error to the status code surfaced to proxy clients.
// Rotation requests against an empty store are a client error; everything
// else that reaches the request boundary is reported as 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNoCredentials:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
