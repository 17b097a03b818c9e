package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sharjeel-Saleem-06/baatcheet/internal/models"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/stream"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/uploads"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/utils"
)

// VoiceGate is the one thing the coordinator needs to know about voice
// capture: whether a gesture is in progress.
type VoiceGate interface {
	Busy() bool
}

// ConversationLister refreshes the externally-owned conversation list after a
// submission. *api.Client satisfies it.
type ConversationLister interface {
	Conversations(ctx context.Context) ([]models.Conversation, error)
}

// Coordinator is the submission policy: input may go out only when the
// trimmed text is non-empty, no response is streaming, no voice capture is
// active, and every draft attachment is ready. It owns the ordered message
// list and wires the consumer, pipeline and voice gate together.
type Coordinator struct {
	Consumer *stream.Consumer
	Uploads  *uploads.Pipeline
	Voice    VoiceGate
	Lists    ConversationLister
	Log      *logrus.Entry

	OnMessages      func(msgs []models.Message)
	OnConversations func(convs []models.Conversation)

	mu             sync.Mutex
	messages       []models.Message
	conversationID string
	pendingVoice   *models.VoiceMetadata
	pendingMethod  models.InputMethod
}

// SetPendingVoice records voice-origin metadata to be carried onto the next
// submitted message.
func (co *Coordinator) SetPendingVoice(meta *models.VoiceMetadata) {
	co.mu.Lock()
	co.pendingVoice = meta
	co.pendingMethod = models.InputVoice
	co.mu.Unlock()
}

// Messages returns a snapshot of the ordered message list.
func (co *Coordinator) Messages() []models.Message {
	co.mu.Lock()
	defer co.mu.Unlock()
	return append([]models.Message(nil), co.messages...)
}

// ConversationID returns the current conversation id, empty before the
// server assigned one.
func (co *Coordinator) ConversationID() string {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.conversationID
}

// CanSubmit checks the submission preconditions without side effects.
func (co *Coordinator) CanSubmit(input string) error {
	const op = "ChatCoordinator.CanSubmit"

	if strings.TrimSpace(input) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "message is empty", nil)
	}
	if co.Consumer.InFlight() {
		return utils.E(utils.CodeConflict, op, "a response is already streaming", nil)
	}
	if co.Voice != nil && co.Voice.Busy() {
		return utils.E(utils.CodeConflict, op, "voice capture in progress", nil)
	}
	if co.Uploads != nil && !co.Uploads.AllReady() {
		return utils.E(utils.CodeConflict, op, "attachments are still processing", nil)
	}
	return nil
}

// Submit appends the user message optimistically, clears the draft
// attachments and pending voice metadata, and runs the streaming exchange.
// The assistant message mutates while streaming and is finalized (or, on
// failure, removed) when the exchange ends. No API call is made when a
// precondition fails.
func (co *Coordinator) Submit(ctx context.Context, input string) (*models.Message, error) {
	if err := co.CanSubmit(input); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(input)

	var attachmentIDs []string
	var first *models.Attachment
	if co.Uploads != nil {
		attachmentIDs = co.Uploads.ReadyIDs()
		if atts := co.Uploads.Attachments(); len(atts) > 0 {
			a := atts[0]
			first = &a
		}
		co.Uploads.Reset()
	}

	co.mu.Lock()
	method := co.pendingMethod
	if method == "" {
		method = models.InputTyped
	}
	userMsg := models.Message{
		ID:          uuid.NewString(),
		Role:        models.RoleUser,
		Content:     text,
		Attachment:  first,
		InputMethod: method,
		Voice:       co.pendingVoice,
		CreatedAt:   time.Now().UTC(),
	}
	co.pendingVoice = nil
	co.pendingMethod = ""
	convID := co.conversationID
	co.messages = append(co.messages, userMsg)
	co.mu.Unlock()
	co.publish()

	return co.exchange(ctx, text, convID, attachmentIDs)
}

// Regenerate re-runs the exchange for a previously submitted user message.
// Refused while another exchange is in flight.
func (co *Coordinator) Regenerate(ctx context.Context, userMessageID string) (*models.Message, error) {
	const op = "ChatCoordinator.Regenerate"

	if co.Consumer.InFlight() {
		return nil, utils.E(utils.CodeConflict, op, "a response is already streaming", nil)
	}

	co.mu.Lock()
	var text string
	for _, m := range co.messages {
		if m.ID == userMessageID && m.Role == models.RoleUser {
			text = m.Content
			break
		}
	}
	convID := co.conversationID
	co.mu.Unlock()

	if text == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user message not found", nil)
	}
	return co.exchange(ctx, text, convID, nil)
}

// exchange appends the streaming assistant draft, runs the consumer, and
// finalizes or removes the draft.
func (co *Coordinator) exchange(ctx context.Context, text, convID string, attachmentIDs []string) (*models.Message, error) {
	draft := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Streaming: true,
		CreatedAt: time.Now().UTC(),
	}
	co.mu.Lock()
	co.messages = append(co.messages, draft)
	co.mu.Unlock()
	co.publish()

	co.Consumer.OnPartial = func(acc string) {
		co.setContent(draft.ID, acc, true)
		co.publish()
	}

	res, err := co.Consumer.Send(ctx, text, convID, attachmentIDs)
	if err != nil {
		co.remove(draft.ID)
		co.publish()
		if co.Log != nil {
			co.Log.WithError(err).Warn("exchange failed")
		}
		return nil, err
	}

	co.mu.Lock()
	if res.ConversationID != "" {
		co.conversationID = res.ConversationID
	}
	var final *models.Message
	for i := range co.messages {
		if co.messages[i].ID == draft.ID {
			co.messages[i].Content = res.Content
			co.messages[i].Streaming = false
			m := co.messages[i]
			final = &m
			break
		}
	}
	co.mu.Unlock()
	co.publish()

	co.refreshConversations(ctx)
	return final, nil
}

func (co *Coordinator) refreshConversations(ctx context.Context) {
	if co.Lists == nil || co.OnConversations == nil {
		return
	}
	convs, err := co.Lists.Conversations(ctx)
	if err != nil {
		if co.Log != nil {
			co.Log.WithError(err).Warn("conversation list refresh failed")
		}
		return
	}
	co.OnConversations(convs)
}

func (co *Coordinator) setContent(id, content string, streaming bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	for i := range co.messages {
		if co.messages[i].ID == id {
			co.messages[i].Content = content
			co.messages[i].Streaming = streaming
			return
		}
	}
}

func (co *Coordinator) remove(id string) {
	co.mu.Lock()
	defer co.mu.Unlock()
	for i := range co.messages {
		if co.messages[i].ID == id {
			co.messages = append(co.messages[:i], co.messages[i+1:]...)
			return
		}
	}
}

func (co *Coordinator) publish() {
	if co.OnMessages != nil {
		co.OnMessages(co.Messages())
	}
}
