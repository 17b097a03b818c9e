package uploads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sharjeel-Saleem-06/baatcheet/internal/api"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/models"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/utils"
)

// Backend is the slice of the API client the pipeline uses. Images and
// documents have distinct upload and status endpoints.
type Backend interface {
	UploadImage(ctx context.Context, name, mimeType string, r io.Reader) (*api.UploadResult, error)
	UploadDocument(ctx context.Context, name, mimeType string, r io.Reader) (*api.UploadResult, error)
	ImageStatus(ctx context.Context, id string) (*api.ProcessingStatus, error)
	DocumentStatus(ctx context.Context, id string) (*api.ProcessingStatus, error)
}

var imageMimes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var documentMimes = map[string]bool{
	"application/pdf": true,
	"text/plain":      true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// FileInput is one file handed to the pipeline, content already in memory
// (attachments are capped well below anything worth streaming).
type FileInput struct {
	Name      string
	MimeType  string
	LocalPath string
	Content   []byte
}

// Pipeline runs validate → classify → upload → poll-until-terminal for each
// attachment independently; files never affect their batch siblings. Server
// processing that fails or outlives the poll cap degrades the attachment to
// ready without extracted text so the user can always proceed. The pipeline
// owns every attachment until it is terminal; afterwards the record is
// read-only to callers.
type Pipeline struct {
	API Backend
	Log *logrus.Entry

	PollInterval     time.Duration // default 1s
	MaxPollAttempts  int           // default 60
	MaxImageBytes    int64         // default 10MB
	MaxDocumentBytes int64         // default 5MB

	// OnChange observes every attachment transition with a snapshot copy.
	OnChange func(models.Attachment)

	mu    sync.Mutex
	order []string                      // local ids, insertion order
	byID  map[string]*models.Attachment // keyed by local id for the draft's lifetime
}

func (p *Pipeline) defaults() {
	if p.PollInterval <= 0 {
		p.PollInterval = time.Second
	}
	if p.MaxPollAttempts <= 0 {
		p.MaxPollAttempts = 60
	}
	if p.MaxImageBytes <= 0 {
		p.MaxImageBytes = 10 << 20
	}
	if p.MaxDocumentBytes <= 0 {
		p.MaxDocumentBytes = 5 << 20
	}
	if p.Log == nil {
		p.Log = logrus.NewEntry(logrus.New())
	}
}

// Add validates and classifies one file and, when accepted, starts its
// upload/poll pipeline in the background. A rejected file produces an error,
// no attachment, and no upload call. ctx should outlive the draft, not the
// triggering UI event.
func (p *Pipeline) Add(ctx context.Context, in FileInput) (models.Attachment, error) {
	const op = "UploadPipeline.Add"
	p.defaults()

	size := int64(len(in.Content))
	category, err := p.classify(op, in.MimeType, size)
	if err != nil {
		return models.Attachment{}, err
	}

	att := &models.Attachment{
		ID:        uuid.NewString(),
		Name:      in.Name,
		SizeBytes: size,
		MimeType:  in.MimeType,
		LocalPath: in.LocalPath,
		Category:  category,
		Status:    models.AttachmentUploading,
		CreatedAt: time.Now().UTC(),
	}

	p.mu.Lock()
	if p.byID == nil {
		p.byID = make(map[string]*models.Attachment)
	}
	local := att.ID
	p.byID[local] = att
	p.order = append(p.order, local)
	snap := *att
	p.mu.Unlock()

	p.notify(snap)
	go p.run(ctx, local, in.Content)
	return snap, nil
}

// AddPasted routes a pasted blob through the same pipeline as a picked file.
func (p *Pipeline) AddPasted(ctx context.Context, mimeType string, data []byte) (models.Attachment, error) {
	name := fmt.Sprintf("pasted-%d%s", time.Now().Unix(), extFor(mimeType))
	return p.Add(ctx, FileInput{Name: name, MimeType: mimeType, Content: data})
}

func (p *Pipeline) classify(op, mimeType string, size int64) (models.AttachmentCategory, error) {
	switch {
	case imageMimes[mimeType]:
		if size > p.MaxImageBytes {
			return "", utils.E(utils.CodeFileTooLarge, op,
				fmt.Sprintf("image exceeds %dMB limit", p.MaxImageBytes>>20), nil)
		}
		return models.CategoryImage, nil
	case documentMimes[mimeType]:
		// tighter cap: extraction cost scales with document size
		if size > p.MaxDocumentBytes {
			return "", utils.E(utils.CodeFileTooLarge, op,
				fmt.Sprintf("document exceeds %dMB limit", p.MaxDocumentBytes>>20), nil)
		}
		return models.CategoryDocument, nil
	default:
		return "", utils.E(utils.CodeUnsupportedFileType, op, "unsupported file type: "+mimeType, nil)
	}
}

// run drives one attachment to a terminal state.
func (p *Pipeline) run(ctx context.Context, local string, content []byte) {
	att, ok := p.get(local)
	if !ok {
		return
	}
	log := p.Log.WithFields(logrus.Fields{"attachment": local, "category": att.Category})

	var res *api.UploadResult
	var err error
	r := bytes.NewReader(content)
	if att.Category == models.CategoryImage {
		res, err = p.API.UploadImage(ctx, att.Name, att.MimeType, r)
	} else {
		res, err = p.API.UploadDocument(ctx, att.Name, att.MimeType, r)
	}
	if err != nil {
		log.WithError(err).Warn("upload failed")
		p.update(local, func(a *models.Attachment) {
			a.Status = models.AttachmentFailed
			a.FailReason = string(utils.CodeUploadFailed)
		})
		return
	}

	// The temporary id is replaced by the canonical server id, never
	// duplicated; the pipeline keeps tracking under the local key.
	p.update(local, func(a *models.Attachment) {
		a.ID = res.ID
		a.URL = res.URL
		a.Status = models.AttachmentProcessing
	})

	fetch := func(ctx context.Context) (*api.ProcessingStatus, error) {
		if att.Category == models.CategoryImage {
			return p.API.ImageStatus(ctx, res.ID)
		}
		return p.API.DocumentStatus(ctx, res.ID)
	}
	isTerminal := func(st *api.ProcessingStatus) bool {
		return st != nil && (st.Status == "completed" || st.Status == "failed")
	}

	final, reached, perr := pollUntil(ctx, p.PollInterval, p.MaxPollAttempts, fetch, isTerminal)
	if ctx.Err() != nil {
		return // draft discarded mid-flight
	}

	switch {
	case reached && final.Status == "completed":
		p.update(local, func(a *models.Attachment) {
			a.Status = models.AttachmentReady
			a.ExtractedText = final.ExtractedText
		})
	case reached:
		// server reported extraction failure: degrade, do not block
		log.Warn("processing failed, attachment degraded to ready")
		p.update(local, func(a *models.Attachment) {
			a.Status = models.AttachmentReady
		})
	default:
		log.WithError(perr).WithField("code", utils.CodeProcessingTimeout).
			Warn("processing never reached a terminal state, forcing ready")
		p.update(local, func(a *models.Attachment) {
			a.Status = models.AttachmentReady
			a.FailReason = string(utils.CodeProcessingTimeout)
		})
	}
}

func (p *Pipeline) get(local string) (models.Attachment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	att := p.byID[local]
	if att == nil {
		return models.Attachment{}, false
	}
	return *att, true
}

func (p *Pipeline) update(local string, fn func(*models.Attachment)) {
	p.mu.Lock()
	att := p.byID[local]
	if att == nil {
		p.mu.Unlock()
		return
	}
	fn(att)
	snap := *att
	p.mu.Unlock()
	p.notify(snap)
}

func (p *Pipeline) notify(att models.Attachment) {
	if p.OnChange != nil {
		p.OnChange(att)
	}
}

// Attachments returns snapshots in insertion order.
func (p *Pipeline) Attachments() []models.Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Attachment, 0, len(p.order))
	for _, id := range p.order {
		if att := p.byID[id]; att != nil {
			out = append(out, *att)
		}
	}
	return out
}

// AllReady reports whether no attachment is still uploading or processing:
// the submission gate. Failed attachments are terminal and never block the
// send; ReadyIDs already keeps them out of the request. An empty draft is
// trivially ready.
func (p *Pipeline) AllReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.order {
		if att := p.byID[id]; att != nil && !att.Terminal() {
			return false
		}
	}
	return true
}

// ReadyIDs returns the server ids of ready attachments, in order, for the
// submit request.
func (p *Pipeline) ReadyIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, id := range p.order {
		if att := p.byID[id]; att != nil && att.Status == models.AttachmentReady {
			out = append(out, att.ID)
		}
	}
	return out
}

// Remove drops an attachment from the draft, by local or server id.
func (p *Pipeline) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, local := range p.order {
		att := p.byID[local]
		if local == id || (att != nil && att.ID == id) {
			delete(p.byID, local)
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

// Reset clears the draft after a submission.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = nil
	p.byID = make(map[string]*models.Attachment)
}

func extFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	case "text/plain":
		return ".txt"
	default:
		return ""
	}
}
