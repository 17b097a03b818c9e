package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sharjeel-Saleem-06/baatcheet/internal/api"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/utils"
)

// StoppedMarker is appended to the partial content when the user aborts a
// stream; partial output still has value.
const StoppedMarker = "[stopped]"

// Streamer is the API slice the consumer needs. *api.Client satisfies it.
type Streamer interface {
	StreamChat(ctx context.Context, req api.ChatRequest) (<-chan api.StreamEvent, <-chan error, error)
}

// Result of one completed exchange.
type Result struct {
	Content        string
	ConversationID string
	Stopped        bool // user abort; Content carries the stopped marker
}

// Consumer runs streaming exchanges against the chat endpoint. Exactly one
// exchange may be in flight; its cancel handle is a single field, replaced
// per exchange and never accumulated.
type Consumer struct {
	API Streamer
	Log *logrus.Entry

	// OnPartial republishes the accumulated text after every content delta.
	OnPartial func(accumulated string)

	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelFunc
}

// InFlight reports whether an exchange is currently streaming.
func (c *Consumer) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Cancel aborts the in-flight exchange, if any. The running Send then
// returns a Stopped result with the accumulated partial content.
func (c *Consumer) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Send runs one exchange to completion. A concurrent call is refused with
// CodeConflict. Auth failures surface before any stream is started.
func (c *Consumer) Send(ctx context.Context, message, conversationID string, attachmentIDs []string) (*Result, error) {
	const op = "StreamConsumer.Send"

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, utils.E(utils.CodeConflict, op, "a response is already streaming", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.inFlight = true
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.inFlight = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	events, errs, err := c.API.StreamChat(runCtx, api.ChatRequest{
		Message:        message,
		ConversationID: conversationID,
		AttachmentIDs:  attachmentIDs,
	})
	if err != nil {
		return nil, err
	}

	var acc strings.Builder
	convID := conversationID
	for ev := range events {
		if ev.ConversationID != "" && convID == "" {
			convID = ev.ConversationID
		}
		if ev.Content != "" {
			acc.WriteString(ev.Content)
			if c.OnPartial != nil {
				c.OnPartial(acc.String())
			}
		}
	}

	// The pump closes errs after events, writing at most one error first.
	streamErr := <-errs
	if streamErr != nil {
		if utils.IsCode(streamErr, utils.CodeAborted) {
			content := acc.String()
			if content != "" {
				content += " " + StoppedMarker
			} else {
				content = StoppedMarker
			}
			if c.Log != nil {
				c.Log.WithField("partial_len", acc.Len()).Info("stream stopped by user")
			}
			return &Result{Content: content, ConversationID: convID, Stopped: true}, nil
		}
		return nil, streamErr
	}

	return &Result{Content: acc.String(), ConversationID: convID}, nil
}
