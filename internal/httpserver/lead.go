package httpserver

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/service/wizard"
)

// filePartPrefix names multipart file parts: files.<category>.
const filePartPrefix = "files."

type getLeadRequest struct {
	Email string `json:"email"`
}

func (h *handlers) updateLead(c *gin.Context) {
	var (
		sub wizard.Submission
		err error
	)
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		var closeFiles func()
		sub, closeFiles, err = readMultipartSubmission(c)
		defer closeFiles()
	} else {
		err = c.ShouldBindJSON(&sub)
	}
	if err != nil {
		h.fail(c, domain.NewValidationError("body", err.Error()))
		return
	}
	if strings.TrimSpace(sub.Email) == "" {
		h.fail(c, domain.NewValidationError("email", "email is required"))
		return
	}

	res, err := h.deps.Wizard.Submit(c.Request.Context(), sub)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"lead":      res.Lead,
		"name":      res.Name,
		"created":   res.Created,
		"converted": res.Converted,
		"message":   res.Message,
		"services":  res.Services,
		"sync":      res.Report,
		"degraded":  res.Degraded,
	})
}

// readMultipartSubmission decodes the payload part and collects the attached files. The
// returned func closes every opened file and is never nil.
func readMultipartSubmission(c *gin.Context) (wizard.Submission, func(), error) {
	var (
		sub   wizard.Submission
		files []multipart.File
	)
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	form, err := c.MultipartForm()
	if err != nil {
		return sub, closeAll, err
	}
	if raw := form.Value["payload"]; len(raw) > 0 && strings.TrimSpace(raw[0]) != "" {
		if err := json.Unmarshal([]byte(raw[0]), &sub); err != nil {
			return sub, closeAll, err
		}
	}
	for part, headers := range form.File {
		category, ok := strings.CutPrefix(part, filePartPrefix)
		if !ok {
			continue
		}
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return sub, closeAll, err
			}
			files = append(files, f)
			sub.Uploads = append(sub.Uploads, wizard.Upload{Category: category, FileName: fh.Filename, Content: f})
		}
	}
	return sub, closeAll, nil
}

func (h *handlers) getLead(c *gin.Context) {
	var req getLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		h.fail(c, domain.NewValidationError("email", "email is required"))
		return
	}

	st, err := h.deps.Wizard.Load(c.Request.Context(), req.Email)
	if err != nil {
		if domain.IsNotFound(err) {
			c.JSON(http.StatusOK, gin.H{"success": false, "lead": nil, "message": "No lead found for this user"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "lead": st})
}
