package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crdl/internal/crunchyroll"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Error codes reported in the error_code log field.
const (
	CodeAuthTransport    = "auth_transport_failure"
	CodeAuthRejected     = "auth_rejected_credentials"
	CodeAuthMalformed    = "auth_malformed_response"
	CodeAPITransport     = "api_transport_failure"
	CodeAPIStatus        = "api_unexpected_status"
	CodeAPIMalformed     = "api_malformed_response"
	CodeAPIShape         = "api_unexpected_shape"
	CodeNotAuthenticated = "not_authenticated"
	CodeExternalTool     = "external_tool"
	CodeValidation       = "validation"
	CodeConfiguration    = "configuration"
	CodeNotFound         = "not_found"
	CodeTimeout          = "timeout"
	CodeCanceled         = "canceled"
	CodeTransient        = "transient"
	CodeUnknown          = "unknown"
)

// Classify maps an error onto a stable code for logs and JSON output. Client
// errors are matched before service markers because a wrapped client error
// carries the more specific cause.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var authErr *crunchyroll.AuthError
	if errors.As(err, &authErr) {
		switch authErr.Kind {
		case crunchyroll.AuthTransportFailure:
			return CodeAuthTransport
		case crunchyroll.AuthRejectedCredentials:
			return CodeAuthRejected
		case crunchyroll.AuthMalformedResponse:
			return CodeAuthMalformed
		}
	}
	var apiErr *crunchyroll.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case crunchyroll.APITransportFailure:
			return CodeAPITransport
		case crunchyroll.APIUnexpectedStatus:
			return CodeAPIStatus
		case crunchyroll.APIMalformedResponse:
			return CodeAPIMalformed
		case crunchyroll.APIUnexpectedShape:
			return CodeAPIShape
		}
	}
	switch {
	case errors.Is(err, crunchyroll.ErrNotAuthenticated):
		return CodeNotAuthenticated
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrExternalTool):
		return CodeExternalTool
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTransient):
		return CodeTransient
	default:
		return CodeUnknown
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
