package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"onboarding-reconciler/internal/domain"
)

// statusFor maps the error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage prefers the remote store's own message.
func errorMessage(err error) string {
	if remoteErr, ok := domain.AsRemote(err); ok && remoteErr.Message != "" {
		return remoteErr.Message
	}
	return err.Error()
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"success": false, "error": errorMessage(err)}
	var nf *domain.NotFoundError
	if errors.As(err, &nf) && len(nf.Tried) > 0 {
		body["tried"] = nf.Tried
	}
	ev := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = h.logger.Error()
	}
	ev.Err(err).Str(requestIDKey, c.GetString(requestIDKey)).Str("path", c.FullPath()).Int("status", status).Msg("request failed")
	c.JSON(status, body)
}
