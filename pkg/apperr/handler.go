package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// HTTPErrorHandler renders *Error, *echo.HTTPError and unknown errors as
// JSON bodies of the form {"message": ..., "code": ...}.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func render(err error) (int, map[string]interface{}) {
	if ae, ok := As(err); ok {
		body := map[string]interface{}{
			"message": ae.Message,
			"code":    string(ae.Kind),
		}
		if ae.Kind == KindUnexpected {
			body["message"] = "Server error"
		}
		for k, v := range ae.Details {
			body[k] = v
		}
		return ae.Status(), body
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, map[string]interface{}{
			"message": msg,
			"code":    string(kindForStatus(he.Code)),
		}
	}

	return http.StatusInternalServerError, map[string]interface{}{
		"message": "Server error",
		"code":    string(KindUnexpected),
	}
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return KindValidation
	case http.StatusConflict:
		return KindConflict
	default:
		return KindUnexpected
	}
}
