// Package errors provides typed errors with exit codes and error kinds for keyrelay.
//
// # Error Types
//
// RelayError is the base error type that wraps an error with an exit code
// and a Kind:
//
//	type RelayError struct {
//	    Code    int    // Exit code
//	    Kind    Kind   // Error kind, mapped to an HTTP status at the request boundary
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Error Kinds
//
//	KindNoCredentials        // key store is empty
//	KindCredentialsExhausted // forwarding path could not select a key
//	KindUpstreamTransport    // upstream call failed before a response arrived
//	KindMalformedBody        // body does not parse as its content type (logged only)
//	KindConfig               // invalid configuration
//	KindInternalFault        // unexpected handler fault; the process exits
//
// Upstream non-2xx responses are not errors: they are relayed as-is.
//
// # Extracting Exit Codes and Statuses
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
//
//	http.Error(w, msg, errors.HTTPStatus(err))
package errors
