package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"docsummary/internal/auth"
	"docsummary/internal/domain"
	"docsummary/internal/extractor"
	"docsummary/internal/store"
	"docsummary/internal/summarizer"
	"docsummary/internal/upload"
)

const codeInternal = "INTERNAL"

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
	var httpErr *echo.HTTPError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, summarizer.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, upload.ErrTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, extractor.ErrExtraction):
		return http.StatusUnprocessableEntity, "EXTRACTION_FAILED"
	case errors.Is(err, summarizer.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "MODEL_UNAVAILABLE"
	case errors.Is(err, summarizer.ErrUpstreamError):
		return http.StatusBadGateway, "MODEL_ERROR"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.As(err, &httpErr):
		return httpErr.Code, statusCode(httpErr.Code)
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_INPUT"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusRequestEntityTooLarge:
		return "FILE_TOO_LARGE"
	default:
		return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, code := classify(err)

	message := err.Error()

	var httpErr *echo.HTTPError
	switch {
	case code == codeInternal:
		s.log.ErrorContext(c.Request().Context(), "Request failed",
			"error", err,
			"path", c.Path())

		message = http.StatusText(status)
	case errors.As(err, &httpErr):
		message = fmt.Sprint(httpErr.Message)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, envelope{Error: &apiError{Code: code, Message: message}})
	}

	if err != nil {
		s.log.ErrorContext(c.Request().Context(), "Failed to write error response",
			"error", err)
	}
}

func (s *Server) unauthorized(_ echo.Context, err error) error {
	return err
}
