package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrorHandler renders every error as {"error": message}. echo.HTTPError
// keeps its status and message; anything else is a 500 carrying the error
// text.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := err.Error()

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			msg = httpErrorMessage(he)
		}

		if status >= 500 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Int("status", status).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Error: msg})
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprint(m)
	}
}
