package apiv1

import (
	"context"
	"errors"
	"net/http"

	"github.com/doxen-app/doxen/pkg/repository"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	HttpServerBaseRoute string = "/api/v1"
	HttpServerRootRoute string = ""
)

// Response is a standard API response structure
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SuccessResponse returns a successful response
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// ErrorResponse returns an error response
func ErrorResponse(c echo.Context, code int, message string) error {
	return c.JSON(code, Response{
		Success: false,
		Error:   message,
	})
}

// HandleError writes err as a structured error response. Integration errors
// carry their own status and user-facing message; anything else is logged and
// reported as an internal error.
func HandleError(c echo.Context, err error) error {
	if ie, ok := types.AsIntegrationError(err); ok {
		msg := ie.Message
		if msg == "" {
			msg = string(ie.Kind)
		}
		if ie.HTTPStatus() >= http.StatusInternalServerError {
			log.Warn().Err(err).Str("provider", ie.Provider).Str("kind", string(ie.Kind)).Msg("request failed")
		}
		return ErrorResponse(c, ie.HTTPStatus(), msg)
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrorResponse(c, http.StatusNotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse(c, http.StatusGatewayTimeout, "request timed out")
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return ErrorResponse(c, http.StatusInternalServerError, "internal error")
}
