package services

import (
	"errors"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
)

// ErrorKind classifies gateway failures for transport-specific mapping.
type ErrorKind string

const (
	// ErrorUnknown is used when error is nil or not classified.
	ErrorUnknown ErrorKind = "unknown"
	// ErrorUnsupportedPlatform indicates an unknown platform id.
	ErrorUnsupportedPlatform ErrorKind = "unsupported_platform"
	// ErrorNoCredentials indicates a platform that is not connected.
	ErrorNoCredentials ErrorKind = "no_credentials"
	// ErrorInvalidCredentials indicates a rejected API key.
	ErrorInvalidCredentials ErrorKind = "invalid_credentials"
	// ErrorOAuthExchange indicates a rejected authorization code.
	ErrorOAuthExchange ErrorKind = "oauth_exchange_failed"
	// ErrorInvalidState indicates a forged, expired or replayed OAuth state.
	ErrorInvalidState ErrorKind = "invalid_state"
	// ErrorRemote indicates a non-2xx platform response.
	ErrorRemote ErrorKind = "remote_error"
	// ErrorSignatureInvalid indicates webhook signature failure.
	ErrorSignatureInvalid ErrorKind = "signature_invalid"
	// ErrorUnsupported indicates an export format or capability the platform lacks.
	ErrorUnsupported ErrorKind = "unsupported"
	// ErrorNotFound indicates an unknown webhook event.
	ErrorNotFound ErrorKind = "not_found"
	// ErrorConflict indicates an event that cannot be retried.
	ErrorConflict ErrorKind = "conflict"
	// ErrorPayloadTooLarge indicates a webhook body above the size limit.
	ErrorPayloadTooLarge ErrorKind = "payload_too_large"
	// ErrorMalformedRequest indicates a webhook body that could not be read.
	ErrorMalformedRequest ErrorKind = "malformed_request"
	// ErrorPipeline indicates an unhandled ingestion failure.
	ErrorPipeline ErrorKind = "pipeline_failure"
)

// ClassifyError classifies a returned gateway error.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorUnknown
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		return ErrorUnsupportedPlatform
	case errors.Is(err, domain.ErrNoCredentials):
		return ErrorNoCredentials
	case errors.Is(err, domain.ErrInvalidCredentials):
		return ErrorInvalidCredentials
	case errors.Is(err, domain.ErrOAuthExchangeFailed):
		return ErrorOAuthExchange
	case errors.Is(err, domain.ErrInvalidState):
		return ErrorInvalidState
	case errors.Is(err, domain.ErrRemote):
		return ErrorRemote
	case errors.Is(err, domain.ErrSignatureInvalid):
		return ErrorSignatureInvalid
	case errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrUnsupportedOperation),
		errors.Is(err, domain.ErrNoSupportedEvents):
		return ErrorUnsupported
	case errors.Is(err, domain.ErrEventNotFound):
		return ErrorNotFound
	case errors.Is(err, domain.ErrNotRetryable):
		return ErrorConflict
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return ErrorPayloadTooLarge
	case errors.Is(err, domain.ErrMalformedRequest):
		return ErrorMalformedRequest
	case errors.Is(err, ErrPipelineFailure):
		return ErrorPipeline
	default:
		return ErrorUnknown
	}
}
