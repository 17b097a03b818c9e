package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/Sharjeel-Saleem-06/baatcheet/internal/utils"
)

// Transcription is the whole-utterance fallback result, including the
// backend's language classification.
type Transcription struct {
	Text            string `json:"text"`
	IsRomanUrdu     bool   `json:"isRomanUrdu"`
	IsMixedLanguage bool   `json:"isMixedLanguage"`
	PrimaryLanguage string `json:"primaryLanguage"`
}

// LanguageInfo is the classification of an already-transcribed text.
type LanguageInfo struct {
	IsRomanUrdu     bool   `json:"isRomanUrdu"`
	IsMixedLanguage bool   `json:"isMixedLanguage"`
	PrimaryLanguage string `json:"primaryLanguage"`
}

// Transcribe submits a whole recorded utterance for transcription. Used when
// the continuous engine produced no transcript for a capture.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcription, error) {
	const op = "Client.Transcribe"

	if len(audio) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "audio is required", nil)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := createFilePart(mw, "audio", "utterance", mimeType)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build multipart body", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to write audio", err)
	}
	if err := mw.Close(); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to finalize multipart body", err)
	}

	req, err := c.newRequest(ctx, op, http.MethodPost, "/audio/transcribe", &buf)
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

	var out Transcription
	if err := decodeJSONBody(resp.Body, &out); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to decode transcription", err)
	}
	return &out, nil
}

// DetectLanguage classifies an existing transcript. Used when the continuous
// engine supplied the text and no fallback transcription ran.
func (c *Client) DetectLanguage(ctx context.Context, text string) (*LanguageInfo, error) {
	const op = "Client.DetectLanguage"

	if text == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "text is required", nil)
	}

	in := map[string]string{"text": text}
	var out LanguageInfo
	if err := c.doJSON(ctx, op, http.MethodPost, "/language/detect", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
