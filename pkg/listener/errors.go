package listener

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorises accept-path failures. The kind decides how far an
// error propagates: transport errors surface through Accept, configuration
// validation errors are contained in the reload path, handshake errors are
// contained in the connection that failed.
type ErrorKind string

const (
	// KindTransport marks a failure of the underlying transport accept.
	// Fatal to the Accept call that observed it; the caller decides
	// whether to keep looping.
	KindTransport ErrorKind = "transport"

	// KindConfigValidation marks a snapshot that could not be compiled
	// into a server context. Never visible through Accept; the previous
	// context stays authoritative.
	KindConfigValidation ErrorKind = "config_validation"

	// KindConfigMissing marks a connection that arrived before any valid
	// configuration was ever installed. Fails that one accept, not the
	// listener.
	KindConfigMissing ErrorKind = "config_missing"

	// KindHandshake marks a TLS negotiation failure. Observed only by
	// whoever consumes the affected connection.
	KindHandshake ErrorKind = "handshake"
)

// AcceptError is a structured listener error carrying its kind and context.
type AcceptError struct {
	Kind    ErrorKind
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *AcceptError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", string(e.Kind)), e.Message}
	if len(e.Context) > 0 {
		var kv []string
		for k, v := range e.Context {
			kv = append(kv, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, "context: "+strings.Join(kv, ", "))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}
	return strings.Join(parts, " | ")
}

// Unwrap returns the underlying cause.
func (e *AcceptError) Unwrap() error { return e.Cause }

// WithContext attaches a key/value pair to the error.
func (e *AcceptError) WithContext(key string, value interface{}) *AcceptError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Timeout implements net.Error.
func (e *AcceptError) Timeout() bool { return false }

// Temporary implements net.Error. A missing configuration is temporary: a
// snapshot may still arrive, and serving loops such as http.Server keep
// accepting through temporary errors.
func (e *AcceptError) Temporary() bool { return e.Kind == KindConfigMissing }

func newError(kind ErrorKind, message string) *AcceptError {
	return &AcceptError{Kind: kind, Message: message}
}

func newErrorWithCause(kind ErrorKind, message string, cause error) *AcceptError {
	return &AcceptError{Kind: kind, Message: message, Cause: cause}
}

// kindOf extracts the ErrorKind from err, or "" when err is not an
// AcceptError.
func kindOf(err error) ErrorKind {
	var ae *AcceptError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsTransport reports whether err is a transport-level accept failure.
func IsTransport(err error) bool { return kindOf(err) == KindTransport }

// IsConfigMissing reports whether err means no configuration was ever
// installed when a connection arrived.
func IsConfigMissing(err error) bool { return kindOf(err) == KindConfigMissing }

// IsConfigValidation reports whether err is a snapshot validation failure.
func IsConfigValidation(err error) bool { return kindOf(err) == KindConfigValidation }

// IsHandshake reports whether err is a TLS negotiation failure.
func IsHandshake(err error) bool { return kindOf(err) == KindHandshake }
