package crunchyroll

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransportFailure marks network, DNS or TLS failures.
	ErrTransportFailure = errors.New("transport failure")
	// ErrRejectedCredentials marks a non-200 answer from the token endpoint.
	ErrRejectedCredentials = errors.New("rejected credentials")
	// ErrMalformedResponse marks bodies that cannot be decoded into the expected record.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrUnexpectedStatus marks non-200 answers from content endpoints.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrUnexpectedShape marks stream documents that lack the expected nested field.
	ErrUnexpectedShape = errors.New("unexpected shape")
	// ErrNotAuthenticated is returned by content calls made before Login.
	ErrNotAuthenticated = errors.New("client is not authenticated")
)

// AuthErrorKind enumerates the failure modes of credential exchange.
type AuthErrorKind int

const (
	AuthTransportFailure AuthErrorKind = iota + 1
	AuthRejectedCredentials
	AuthMalformedResponse
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthTransportFailure:
		return "transport_failure"
	case AuthRejectedCredentials:
		return "rejected_credentials"
	case AuthMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

func (k AuthErrorKind) sentinel() error {
	switch k {
	case AuthTransportFailure:
		return ErrTransportFailure
	case AuthRejectedCredentials:
		return ErrRejectedCredentials
	case AuthMalformedResponse:
		return ErrMalformedResponse
	default:
		return nil
	}
}

// AuthError is returned by Login and by token refresh.
type AuthError struct {
	Kind   AuthErrorKind
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("crunchyroll ")
	b.WriteString(opOrDefault(e.Op, "auth"))
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the error kind.
func (e *AuthError) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel := e.Kind.sentinel()
	return sentinel != nil && target == sentinel
}

// APIErrorKind enumerates the failure modes of content calls.
type APIErrorKind int

const (
	APITransportFailure APIErrorKind = iota + 1
	APIUnexpectedStatus
	APIMalformedResponse
	APIUnexpectedShape
)

func (k APIErrorKind) String() string {
	switch k {
	case APITransportFailure:
		return "transport_failure"
	case APIUnexpectedStatus:
		return "unexpected_status"
	case APIMalformedResponse:
		return "malformed_response"
	case APIUnexpectedShape:
		return "unexpected_shape"
	default:
		return "unknown"
	}
}

func (k APIErrorKind) sentinel() error {
	switch k {
	case APITransportFailure:
		return ErrTransportFailure
	case APIUnexpectedStatus:
		return ErrUnexpectedStatus
	case APIMalformedResponse:
		return ErrMalformedResponse
	case APIUnexpectedShape:
		return ErrUnexpectedShape
	default:
		return nil
	}
}

// APIError is returned by the content operations of Client.
type APIError struct {
	Kind   APIErrorKind
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("crunchyroll ")
	b.WriteString(opOrDefault(e.Op, "request"))
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " %d", e.Status)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the error kind.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel := e.Kind.sentinel()
	return sentinel != nil && target == sentinel
}

// StatusCode extracts the HTTP status carried by an AuthError or APIError.
func StatusCode(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status, true
	}
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Status != 0 {
		return authErr.Status, true
	}
	return 0, false
}

func opOrDefault(op, fallback string) string {
	if op = strings.TrimSpace(op); op != "" {
		return op
	}
	return fallback
}
