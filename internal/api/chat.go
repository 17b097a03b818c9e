package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Sharjeel-Saleem-06/baatcheet/internal/utils"
)

type ChatRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversationId,omitempty"`
	AttachmentIDs  []string `json:"attachmentIds,omitempty"`
	Stream         bool     `json:"stream"`
}

// StreamEvent is one record of the incremental response stream. A record
// carries either a content delta or the conversation id (sent once, when the
// server created the conversation).
type StreamEvent struct {
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// StreamChat issues the chat-completions request and, on success, decodes its
// newline-delimited event stream. Auth and request errors are returned
// synchronously; no stream is started for them. Malformed records are skipped.
// Cancelling ctx aborts the stream; the pump then reports CodeAborted.
func (c *Client) StreamChat(ctx context.Context, reqBody ChatRequest) (<-chan StreamEvent, <-chan error, error) {
	const op = "Client.StreamChat"

	reqBody.Stream = true
	if strings.TrimSpace(reqBody.Message) == "" {
		return nil, nil, utils.E(utils.CodeInvalidArgument, op, "message is required", nil)
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, utils.E(utils.CodeInternal, op, "failed to encode request body", err)
	}

	req, err := c.newRequest(ctx, op, http.MethodPost, "/chat-completions", bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, nil, wrapTransport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, nil, decodeError(op, resp)
	}

	events := make(chan StreamEvent, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var ev StreamEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				c.log.WithError(err).Debug("skipping malformed stream record")
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				errs <- utils.E(utils.CodeAborted, op, "stream aborted", ctx.Err())
				return
			}
		}

		if err := sc.Err(); err != nil {
			if ctx.Err() != nil {
				errs <- utils.E(utils.CodeAborted, op, "stream aborted", ctx.Err())
				return
			}
			errs <- utils.E(utils.CodeRequestFailed, op, "stream read failed", err)
		}
	}()

	return events, errs, nil
}
