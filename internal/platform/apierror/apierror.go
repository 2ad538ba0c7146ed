// Package apierror renders every API failure as
// {"error":{"kind":...,"message":...,"details":...}}.
package apierror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the payload under the "error" key.
type Body struct {
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type Envelope struct {
	Error Body `json:"error"`
}

// New returns an echo error whose message is already a Body, so Handler
// renders it unchanged.
func New(status int, kind, message string, details interface{}) *echo.HTTPError {
	return echo.NewHTTPError(status, Body{Kind: kind, Message: message, Details: details})
}

// KindForStatus names the failure class for errors raised outside the
// request domain (auth middleware, routing, rate limiting).
func KindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BadRequest"
	case http.StatusUnauthorized:
		return "UnauthenticatedSubmitter"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "NotFound"
	case http.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	case http.StatusConflict:
		return "Conflict"
	case http.StatusRequestEntityTooLarge:
		return "PayloadTooLarge"
	case http.StatusUnsupportedMediaType:
		return "UnsupportedMediaType"
	case http.StatusUnprocessableEntity:
		return "MalformedPayload"
	case http.StatusTooManyRequests:
		return "RateLimited"
	case http.StatusServiceUnavailable:
		return "StoreUnavailable"
	case http.StatusGatewayTimeout:
		return "Timeout"
	default:
		return "Internal"
	}
}

// Handler is the echo HTTPErrorHandler. Internal errors are logged and
// never leak their text to the client.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := Body{Kind: "Internal", Message: "internal server error"}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			switch m := he.Message.(type) {
			case Body:
				body = m
			case string:
				body = Body{Kind: KindForStatus(status), Message: m}
			default:
				body = Body{Kind: KindForStatus(status), Message: http.StatusText(status)}
			}
			if he.Internal != nil {
				err = he.Internal
			}
		}

		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, Envelope{Error: body})
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}
