package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedPlatform indicates an unknown platform id.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrNoCredentials indicates an operation attempted before connecting the platform.
	ErrNoCredentials = errors.New("no credentials")
	// ErrInvalidCredentials indicates API key validation failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOAuthExchangeFailed indicates the token endpoint rejected the authorization code.
	ErrOAuthExchangeFailed = errors.New("oauth exchange failed")
	// ErrRemote indicates a non-2xx response from a platform API.
	ErrRemote = errors.New("remote platform error")
	// ErrSignatureInvalid indicates a webhook signature mismatch.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrUnsupportedFormat indicates an export format the platform does not offer.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrUnsupportedOperation indicates a capability the platform does not offer.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrInvalidState indicates a forged, expired or replayed OAuth state token.
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrNoSupportedEvents indicates a webhook registration with no allowlisted events.
	ErrNoSupportedEvents = errors.New("no supported webhook events")
	// ErrEventNotFound indicates an unknown webhook event id.
	ErrEventNotFound = errors.New("webhook event not found")
	// ErrNotRetryable indicates an event that cannot be routed again.
	ErrNotRetryable = errors.New("webhook event not retryable")
	// ErrPayloadTooLarge indicates a webhook body above the configured limit.
	ErrPayloadTooLarge = errors.New("webhook payload too large")
	// ErrMalformedRequest indicates a webhook body that could not be read.
	ErrMalformedRequest = errors.New("malformed webhook request")
)

const maxRemoteBodyExcerpt = 512

// RemoteError carries a platform's non-2xx response verbatim.
type RemoteError struct {
	Platform   string
	StatusCode int
	Status     string
	Body       string
}

// NewRemoteError builds a RemoteError with a bounded body excerpt.
func NewRemoteError(platform string, statusCode int, status string, body []byte) *RemoteError {
	excerpt := strings.TrimSpace(string(body))
	if len(excerpt) > maxRemoteBodyExcerpt {
		excerpt = excerpt[:maxRemoteBodyExcerpt]
	}
	return &RemoteError{Platform: platform, StatusCode: statusCode, Status: status, Body: excerpt}
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %s", e.Platform, e.Status)
	}
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Status, e.Body)
}

// Is reports RemoteError as ErrRemote.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}
