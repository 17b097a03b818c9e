package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/Sharjeel-Saleem-06/baatcheet/internal/utils"
)

// UploadResult is the backend's answer to a multipart upload. The id replaces
// the attachment's temporary local id.
type UploadResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ProcessingStatus reports the server-side processing state of an uploaded
// file (OCR for images, text extraction for documents).
type ProcessingStatus struct {
	Status        string `json:"status"` // uploading|processing|completed|failed
	ExtractedText string `json:"extractedText,omitempty"`
}

// UploadImage sends one image as a multipart request to the image endpoint.
func (c *Client) UploadImage(ctx context.Context, name, mimeType string, r io.Reader) (*UploadResult, error) {
	return c.uploadMultipart(ctx, "Client.UploadImage", "/images/upload", name, mimeType, r)
}

// UploadDocument sends one document to the file endpoint.
func (c *Client) UploadDocument(ctx context.Context, name, mimeType string, r io.Reader) (*UploadResult, error) {
	return c.uploadMultipart(ctx, "Client.UploadDocument", "/files/upload", name, mimeType, r)
}

func (c *Client) ImageStatus(ctx context.Context, id string) (*ProcessingStatus, error) {
	return c.status(ctx, "Client.ImageStatus", "/images/"+url.PathEscape(id)+"/status")
}

func (c *Client) DocumentStatus(ctx context.Context, id string) (*ProcessingStatus, error) {
	return c.status(ctx, "Client.DocumentStatus", "/files/"+url.PathEscape(id)+"/status")
}

func (c *Client) status(ctx context.Context, op, path string) (*ProcessingStatus, error) {
	var out ProcessingStatus
	if err := c.doJSON(ctx, op, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) uploadMultipart(ctx context.Context, op, path, name, mimeType string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := createFilePart(mw, "file", name, mimeType)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build multipart body", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, utils.E(utils.CodeUploadFailed, op, "failed to read file", err)
	}
	if err := mw.Close(); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to finalize multipart body", err)
	}

	req, err := c.newRequest(ctx, op, http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, wrapTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(op, resp)
	}

	var out UploadResult
	if err := decodeJSONBody(resp.Body, &out); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to decode upload response", err)
	}
	if out.ID == "" {
		return nil, utils.E(utils.CodeUploadFailed, op, "upload response missing id", nil)
	}
	return &out, nil
}

// createFilePart is CreateFormFile with an honest Content-Type instead of the
// default octet-stream.
func createFilePart(mw *multipart.Writer, field, name, mimeType string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	if mimeType != "" {
		h.Set("Content-Type", mimeType)
	}
	return mw.CreatePart(h)
}

func decodeJSONBody(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

