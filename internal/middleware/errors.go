package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the JSON body of every error answer.
type ErrorResponse struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}

// JSONError writes an ErrorResponse for status.
func JSONError(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      c.Request().URL.Path,
	})
}
