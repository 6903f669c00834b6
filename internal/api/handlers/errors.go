package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/serverhost/internal/console"
	"github.com/TheGojiOG/serverhost/internal/process"
	"github.com/TheGojiOG/serverhost/internal/server"
	"github.com/TheGojiOG/serverhost/internal/state"
)

// statusCode maps supervision errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, process.ErrNotFound), errors.Is(err, state.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, console.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, process.ErrAlreadyRunning),
		errors.Is(err, process.ErrInvalidState),
		errors.Is(err, process.ErrIdentityMismatch):
		return http.StatusConflict
	case errors.Is(err, process.ErrPlatformUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, server.ErrClosed), errors.Is(err, process.ErrDisposed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusCode(err), gin.H{"error": err.Error()})
}
