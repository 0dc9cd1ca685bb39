package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maia-sdr/spectrometerd/internal/errors"
	"github.com/maia-sdr/spectrometerd/internal/logger"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusCode maps an error to an HTTP status. Validation errors are the
// client's fault, everything else is reported as a server error.
func statusCode(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil {
			return fmt.Sprintf("%v: %v", he.Message, he.Internal)
		}
		return fmt.Sprint(he.Message)
	}
	return err.Error()
}

// handleError replaces echo's default error handler.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("Request failed",
			logger.String("method", c.Request().Method),
			logger.String("path", c.Path()),
			logger.Error(err))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, ErrorResponse{Error: errorMessage(err)})
	}
	if writeErr != nil {
		s.log.Debug("Failed to write error response", logger.Error(writeErr))
	}
}
