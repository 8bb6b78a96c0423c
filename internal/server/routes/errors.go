package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	appservices "github.com/fr0stylo/integrationgw/internal/app/services"
)

type errorResponse struct {
	Error        string `json:"error"`
	Kind         string `json:"kind"`
	RemoteStatus string `json:"remoteStatus,omitempty"`
}

// statusForError maps a classified gateway error to an HTTP status.
func statusForError(err error) int {
	switch appservices.ClassifyError(err) {
	case appservices.ErrorUnsupportedPlatform, appservices.ErrorNotFound:
		return http.StatusNotFound
	case appservices.ErrorNoCredentials, appservices.ErrorConflict:
		return http.StatusConflict
	case appservices.ErrorInvalidCredentials, appservices.ErrorUnsupported:
		return http.StatusUnprocessableEntity
	case appservices.ErrorOAuthExchange, appservices.ErrorInvalidState, appservices.ErrorMalformedRequest:
		return http.StatusBadRequest
	case appservices.ErrorPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case appservices.ErrorSignatureInvalid:
		return http.StatusUnauthorized
	case appservices.ErrorRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	status := statusForError(err)
	body := errorResponse{Error: err.Error(), Kind: string(appservices.ClassifyError(err))}
	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		body.RemoteStatus = remote.Status
	}
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: message, Kind: "bad_request"})
}
