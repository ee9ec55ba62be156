package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"onboarding-reconciler/internal/domain"
)

type validateReferenceRequest struct {
	Reference string `json:"reference"`
}

func (h *handlers) validateReference(c *gin.Context) {
	var req validateReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reference) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "reference is required"})
		return
	}
	ref := strings.TrimSpace(req.Reference)

	res, err := h.deps.References.Resolve(c.Request.Context(), ref)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			body := gin.H{"valid": false, "message": nf.Subject + " not found", "searchedValue": ref}
			if h.opts.ExposeDebug {
				body["debug"] = nf.Tried
			}
			c.JSON(http.StatusNotFound, body)
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "sales_person": res.Record, "strategy": res.Strategy})
}
