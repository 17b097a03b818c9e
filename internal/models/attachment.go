package models

import "time"

type AttachmentStatus string

const (
	AttachmentUploading  AttachmentStatus = "uploading"
	AttachmentProcessing AttachmentStatus = "processing"
	AttachmentReady      AttachmentStatus = "ready"
	AttachmentFailed     AttachmentStatus = "failed"
)

type AttachmentCategory string

const (
	CategoryImage    AttachmentCategory = "image"
	CategoryDocument AttachmentCategory = "document"
)

// Attachment is a file associated with a draft or sent message. The upload
// pipeline owns it exclusively until it reaches a terminal status; after that
// it is read-only to the message referencing it. ID is a temporary uuid until
// the upload completes, then the server-assigned id (replaced, never
// duplicated).
type Attachment struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	SizeBytes int64              `json:"size_bytes"`
	MimeType  string             `json:"mime_type"`
	LocalPath string             `json:"-"` // preview source, never sent
	Category  AttachmentCategory `json:"category"`
	Status    AttachmentStatus   `json:"status"`

	URL           string `json:"url,omitempty"`
	ExtractedText string `json:"extracted_text,omitempty"`

	// FailReason records why processing degraded (upload failure, server
	// "failed", or poll cap exceeded). Informational only: a degraded
	// attachment never blocks submission.
	FailReason string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Terminal reports whether the pipeline is done with the attachment.
func (a *Attachment) Terminal() bool {
	return a.Status == AttachmentReady || a.Status == AttachmentFailed
}
