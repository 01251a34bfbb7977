package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ahrav/go-assess/internal/callback"
	"github.com/ahrav/go-assess/internal/domain"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// statusFor maps the domain error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, callback.ErrUnauthorized), errors.Is(err, errNoIdentity):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrResultRejected):
		return http.StatusUnprocessableEntity, "result_rejected"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrTransientStorage):
		return http.StatusServiceUnavailable, "transient_storage"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func newErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg, ok := he.Message.(string)
			if !ok {
				msg = http.StatusText(he.Code)
			}
			_ = c.JSON(he.Code, errorBody{Error: msg, Code: "http"})
			return
		}

		code, kind := statusFor(err)
		body := errorBody{Error: err.Error(), Code: kind}
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			body.Field = ve.Field
		}

		switch {
		case code >= http.StatusInternalServerError:
			logger.ErrorContext(c.Request().Context(), "request failed",
				"method", c.Request().Method, "path", c.Path(), "error", err)
			if code == http.StatusServiceUnavailable {
				c.Response().Header().Set("Retry-After", "1")
			} else {
				body.Error = http.StatusText(code)
			}
		case code == http.StatusUnauthorized:
			logger.WarnContext(c.Request().Context(), "unauthorized request",
				"path", c.Path(), "error", err)
			body.Error = http.StatusText(code)
		}
		_ = c.JSON(code, body)
	}
}
