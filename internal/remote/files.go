package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"onboarding-reconciler/internal/domain"
)

const (
	privateFilesPrefix = "/private/files/"
	publicFilesPrefix  = "/files/"
)

// FileUpload is one file submitted to the store's file manager.
type FileUpload struct {
	FileName string
	Content  io.Reader
	Private  bool
	Folder   string
	Doctype  string
	Docname  string
}

// Download is a file fetched from the store.
type Download struct {
	ContentType string
	Body        []byte
}

// Upload submits the bytes and returns the store's reference to them.
func (c *Client) Upload(ctx context.Context, up FileUpload) (domain.FileRef, error) {
	name := path.Base(strings.TrimSpace(up.FileName))
	if name == "" || name == "." || name == "/" {
		return domain.FileRef{}, domain.NewValidationError("fileName", "file name is required")
	}
	if up.Content == nil {
		return domain.FileRef{}, domain.NewValidationError("content", "file content is required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return domain.FileRef{}, fmt.Errorf("read upload content: %w", err)
	}
	fields := map[string]string{
		"file_name":  name,
		"is_private": "0",
		"folder":     up.Folder,
		"doctype":    up.Doctype,
		"docname":    up.Docname,
	}
	if up.Private {
		fields["is_private"] = "1"
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return domain.FileRef{}, fmt.Errorf("build upload form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return domain.FileRef{}, fmt.Errorf("build upload form: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, methodPrefix+"upload_file", nil, &buf, mw.FormDataContentType())
	if err != nil {
		return domain.FileRef{}, err
	}
	if err := resp.check(); err != nil {
		return domain.FileRef{}, err
	}
	rec, err := UnwrapOne(resp.body)
	if err != nil {
		return domain.FileRef{}, &domain.RemoteError{Method: http.MethodPost, Resource: "upload_file", Status: resp.status, Message: "unparseable response body", Err: err}
	}
	ref := domain.FileRef{
		Name:     stringField(rec, "name"),
		FileName: stringField(rec, "file_name"),
		URL:      stringField(rec, "file_url"),
	}
	if ref.FileName == "" {
		ref.FileName = name
	}
	if ref.URL == "" {
		return domain.FileRef{}, &domain.RemoteError{Method: http.MethodPost, Resource: "upload_file", Status: resp.status, Message: "upload response carried no file_url"}
	}
	return ref, nil
}

// Download fetches a stored file with the credential attached. Absolute URLs are accepted
// only when they point at the configured endpoint. A 404 on a private file path is retried
// on the public path.
func (c *Client) Download(ctx context.Context, fileURL string) (*Download, error) {
	p, err := c.filePath(fileURL)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodGet, p, nil, nil, "")
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound && strings.HasPrefix(p, privateFilesPrefix) {
		public := publicFilesPrefix + strings.TrimPrefix(p, privateFilesPrefix)
		c.logger.Debug().Str("path", p).Str("retry", public).Msg("private file not found, retrying public path")
		resp, err = c.do(ctx, http.MethodGet, public, nil, nil, "")
		if err != nil {
			return nil, err
		}
	}
	if resp.status == http.StatusNotFound {
		return nil, domain.NewNotFoundError("file", fileURL)
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	ct := resp.header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(resp.body)
	}
	return &Download{ContentType: ct, Body: resp.body}, nil
}

func (c *Client) filePath(fileURL string) (string, error) {
	raw := strings.TrimSpace(fileURL)
	if raw == "" {
		return "", domain.NewValidationError("url", "file url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.NewValidationError("url", "file url is malformed")
	}
	if u.IsAbs() {
		base, err := url.Parse(c.endpoint)
		if err != nil || !strings.EqualFold(base.Host, u.Host) {
			return "", domain.NewValidationError("url", "file url does not belong to the remote store")
		}
	}
	p := u.EscapedPath()
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if path.Clean(p) != p && path.Clean(p)+"/" != p {
		return "", domain.NewValidationError("url", "file url is malformed")
	}
	if !strings.HasPrefix(p, privateFilesPrefix) && !strings.HasPrefix(p, publicFilesPrefix) {
		return "", domain.NewValidationError("url", "only stored files can be fetched")
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p, nil
}

func stringField(rec Record, key string) string {
	if rec == nil {
		return ""
	}
	if s, ok := rec[key].(string); ok {
		return s
	}
	return ""
}
