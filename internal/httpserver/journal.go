package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"onboarding-reconciler/internal/domain"
)

func (h *handlers) listJournal(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		h.fail(c, domain.NewValidationError("email", "email is required"))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(c, domain.NewValidationError("limit", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	entries, err := h.deps.Journal.ListByEmail(c.Request.Context(), email, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
