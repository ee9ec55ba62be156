package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"onboarding-reconciler/internal/domain"
)

func (h *handlers) getServices(c *gin.Context) {
	services, err := h.deps.Catalog.ListServices(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "services": services})
}

func (h *handlers) getCompanyTypes(c *gin.Context) {
	types, err := h.deps.Catalog.ListCompanyTypes(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "companyTypes": types})
}

// proxyImage streams a stored file with the store credential attached.
func (h *handlers) proxyImage(c *gin.Context) {
	fileURL := strings.TrimSpace(c.Query("url"))
	if fileURL == "" {
		h.fail(c, domain.NewValidationError("url", "url is required"))
		return
	}
	file, err := h.deps.Files.Download(c.Request.Context(), fileURL)
	if err != nil {
		if remoteErr, ok := domain.AsRemote(err); ok && remoteErr.Client() {
			c.JSON(remoteErr.Status, gin.H{"success": false, "error": errorMessage(err)})
			return
		}
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, file.ContentType, file.Body)
}
