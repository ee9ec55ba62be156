package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"onboarding-reconciler/internal/domain"
)

type extractAddressRequest struct {
	AddressText string `json:"addressText"`
}

type extractDocumentRequest struct {
	Text          string `json:"text"`
	CompanyTypeID string `json:"companyTypeId"`
}

func (h *handlers) extractionEnabled(c *gin.Context) bool {
	if h.deps.Extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "text extraction is not configured"})
		return false
	}
	return true
}

func (h *handlers) extractAddress(c *gin.Context) {
	if !h.extractionEnabled(c) {
		return
	}
	var req extractAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, domain.NewValidationError("body", err.Error()))
		return
	}
	addr, err := h.deps.Extractor.ParseAddress(c.Request.Context(), req.AddressText)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "address": addr})
}

func (h *handlers) extractCompanyDocument(c *gin.Context) {
	if !h.extractionEnabled(c) {
		return
	}
	var req extractDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, domain.NewValidationError("body", err.Error()))
		return
	}
	info, err := h.deps.Extractor.ParseCompanyDocument(c.Request.Context(), req.Text, req.CompanyTypeID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "companyInfo": info})
}
