package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sharjeel-Saleem-06/baatcheet/internal/api"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/models"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/stream"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/uploads"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/utils"
)

// scriptedStreamer scripts responses for the consumer under the coordinator.
type scriptedStreamer struct {
	mu    sync.Mutex
	calls []api.ChatRequest

	// script per call: events then optional error
	events [][]api.StreamEvent
	errs   []error

	block chan struct{} // when set, the stream stays open until closed
}

func (s *scriptedStreamer) StreamChat(ctx context.Context, req api.ChatRequest) (<-chan api.StreamEvent, <-chan error, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, req)
	var evs []api.StreamEvent
	var serr error
	if n < len(s.events) {
		evs = s.events[n]
	}
	if n < len(s.errs) {
		serr = s.errs[n]
	}
	block := s.block
	s.mu.Unlock()

	if serr != nil && len(evs) == 0 {
		return nil, nil, serr
	}

	out := make(chan api.StreamEvent, len(evs)+1)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for _, ev := range evs {
			select {
			case out <- ev:
			case <-ctx.Done():
				errCh <- utils.E(utils.CodeAborted, "Client.StreamChat", "stream aborted", ctx.Err())
				return
			}
		}
		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				errCh <- utils.E(utils.CodeAborted, "Client.StreamChat", "stream aborted", ctx.Err())
				return
			}
		}
	}()
	return out, errCh, nil
}

func (s *scriptedStreamer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedStreamer) lastCall() api.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

type stuckVoice struct{ busy bool }

func (v stuckVoice) Busy() bool { return v.busy }

type fakeLister struct {
	mu    sync.Mutex
	calls int
	convs []models.Conversation
}

func (f *fakeLister) Conversations(ctx context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.convs, nil
}

// uploadsBackend drives the pipeline with immediate completion.
type uploadsBackend struct {
	hold      chan struct{} // processing never terminates until closed
	uploadErr error
}

func (u *uploadsBackend) UploadImage(ctx context.Context, name, mimeType string, r io.Reader) (*api.UploadResult, error) {
	if u.uploadErr != nil {
		return nil, u.uploadErr
	}
	return &api.UploadResult{ID: "srv-" + name}, nil
}

func (u *uploadsBackend) UploadDocument(ctx context.Context, name, mimeType string, r io.Reader) (*api.UploadResult, error) {
	return &api.UploadResult{ID: "srv-" + name}, nil
}

func (u *uploadsBackend) ImageStatus(ctx context.Context, id string) (*api.ProcessingStatus, error) {
	if u.hold != nil {
		select {
		case <-u.hold:
		default:
			return &api.ProcessingStatus{Status: "processing"}, nil
		}
	}
	return &api.ProcessingStatus{Status: "completed"}, nil
}

func (u *uploadsBackend) DocumentStatus(ctx context.Context, id string) (*api.ProcessingStatus, error) {
	return u.ImageStatus(ctx, id)
}

func newCoordinator(s *scriptedStreamer) (*Coordinator, *uploadsBackend) {
	ub := &uploadsBackend{}
	return &Coordinator{
		Consumer: &stream.Consumer{API: s},
		Uploads: &uploads.Pipeline{
			API:             ub,
			PollInterval:    time.Millisecond,
			MaxPollAttempts: 60,
		},
		Lists: &fakeLister{},
	}, ub
}

func TestSubmitAppendsOptimisticallyAndFinalizes(t *testing.T) {
	s := &scriptedStreamer{events: [][]api.StreamEvent{{
		{ConversationID: "conv-1"},
		{Content: "Wa alaikum "},
		{Content: "salam"},
	}}}
	co, _ := newCoordinator(s)

	lister := &fakeLister{convs: []models.Conversation{{ID: "conv-1", Title: "salam"}}}
	co.Lists = lister
	var gotConvs []models.Conversation
	co.OnConversations = func(cs []models.Conversation) { gotConvs = cs }

	msg, err := co.Submit(context.Background(), "  salam  ")
	require.NoError(t, err)
	assert.Equal(t, "Wa alaikum salam", msg.Content)
	assert.Equal(t, models.RoleAssistant, msg.Role)
	assert.False(t, msg.Streaming)

	msgs := co.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "salam", msgs[0].Content, "input is trimmed")
	assert.Equal(t, models.InputTyped, msgs[0].InputMethod)

	assert.Equal(t, "conv-1", co.ConversationID())
	assert.Len(t, gotConvs, 1, "conversation list refreshed after completion")
	assert.Equal(t, 1, lister.calls)
}

func TestEmptyInputRejectedWithoutAPICall(t *testing.T) {
	s := &scriptedStreamer{}
	co, _ := newCoordinator(s)

	_, err := co.Submit(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
	assert.Zero(t, s.callCount())
	assert.Empty(t, co.Messages())
}

func TestSubmitGatedOnAttachmentReadiness(t *testing.T) {
	s := &scriptedStreamer{events: [][]api.StreamEvent{{{Content: "ok"}}}}
	co, ub := newCoordinator(s)
	ub.hold = make(chan struct{}) // processing never terminates yet
	co.Uploads.MaxPollAttempts = 100000

	_, err := co.Uploads.Add(context.Background(), uploads.FileInput{
		Name: "a.png", MimeType: "image/png", Content: make([]byte, 8),
	})
	require.NoError(t, err)
	_, err = co.Uploads.Add(context.Background(), uploads.FileInput{
		Name: "b.png", MimeType: "image/png", Content: make([]byte, 8),
	})
	require.NoError(t, err)

	// one may finish uploading fast, but both stay in processing
	require.Eventually(t, func() bool {
		atts := co.Uploads.Attachments()
		return len(atts) == 2 && atts[0].Status == models.AttachmentProcessing
	}, 5*time.Second, time.Millisecond)

	_, err = co.Submit(context.Background(), "Describe this")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
	assert.Zero(t, s.callCount(), "gated submission must issue zero API calls")

	close(ub.hold)
	require.Eventually(t, co.Uploads.AllReady, 5*time.Second, time.Millisecond)

	msg, err := co.Submit(context.Background(), "Describe this")
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)

	req := s.lastCall()
	assert.ElementsMatch(t, []string{"srv-a.png", "srv-b.png"}, req.AttachmentIDs)
	assert.True(t, co.Uploads.AllReady(), "draft cleared after submission")
	assert.Empty(t, co.Uploads.Attachments())
}

func TestFailedUploadNeverWedgesTheSendGate(t *testing.T) {
	s := &scriptedStreamer{events: [][]api.StreamEvent{{{Content: "still works"}}}}
	co, ub := newCoordinator(s)
	ub.uploadErr = errors.New("bucket on fire")

	_, err := co.Uploads.Add(context.Background(), uploads.FileInput{
		Name: "doomed.png", MimeType: "image/png", Content: make([]byte, 8),
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		atts := co.Uploads.Attachments()
		return len(atts) == 1 && atts[0].Status == models.AttachmentFailed
	}, 5*time.Second, time.Millisecond)

	msg, err := co.Submit(context.Background(), "send anyway")
	require.NoError(t, err)
	assert.Equal(t, "still works", msg.Content)
	assert.Empty(t, s.lastCall().AttachmentIDs, "failed attachment never reaches the request")
}

func TestSubmitRefusedWhileVoiceActive(t *testing.T) {
	s := &scriptedStreamer{}
	co, _ := newCoordinator(s)
	co.Voice = stuckVoice{busy: true}

	_, err := co.Submit(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
	assert.Zero(t, s.callCount())
}

func TestSubmitRefusedWhileStreaming(t *testing.T) {
	s := &scriptedStreamer{block: make(chan struct{})}
	co, _ := newCoordinator(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = co.Submit(context.Background(), "first")
	}()
	require.Eventually(t, co.Consumer.InFlight, time.Second, time.Millisecond)

	_, err := co.Submit(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
	assert.Equal(t, 1, s.callCount())

	close(s.block)
	<-done
}

func TestCancelCommitsPartialAssistantMessage(t *testing.T) {
	s := &scriptedStreamer{
		block:  make(chan struct{}),
		events: [][]api.StreamEvent{{{Content: "Hello"}, {Content: " wor"}}},
	}
	co, _ := newCoordinator(s)

	done := make(chan struct{})
	var msg *models.Message
	var err error
	go func() {
		defer close(done)
		msg, err = co.Submit(context.Background(), "hi")
	}()

	require.Eventually(t, func() bool {
		msgs := co.Messages()
		return len(msgs) == 2 && msgs[1].Content == "Hello wor"
	}, time.Second, time.Millisecond)

	co.Consumer.Cancel()
	<-done

	require.NoError(t, err, "user abort is success with partial result")
	assert.Equal(t, "Hello wor "+stream.StoppedMarker, msg.Content)
	assert.False(t, co.Consumer.InFlight())
}

func TestExchangeFailureRemovesAssistantDraft(t *testing.T) {
	s := &scriptedStreamer{errs: []error{
		utils.E(utils.CodeSessionExpired, "Client.StreamChat", "session expired", nil),
	}}
	co, _ := newCoordinator(s)

	_, err := co.Submit(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeSessionExpired))

	msgs := co.Messages()
	require.Len(t, msgs, 1, "assistant draft removed, user message kept")
	assert.Equal(t, models.RoleUser, msgs[0].Role)

	// quiescent and resubmittable
	s.mu.Lock()
	s.errs = nil
	s.events = [][]api.StreamEvent{nil, {{Content: "back"}}}
	s.mu.Unlock()
	msg, err := co.Submit(context.Background(), "hello again")
	require.NoError(t, err)
	assert.Equal(t, "back", msg.Content)
}

func TestVoiceMetadataCarriedOntoNextMessage(t *testing.T) {
	s := &scriptedStreamer{events: [][]api.StreamEvent{{{Content: "a"}}}}
	co, _ := newCoordinator(s)

	co.SetPendingVoice(&models.VoiceMetadata{IsRomanUrdu: true, PrimaryLanguage: "ur"})
	_, err := co.Submit(context.Background(), "kya haal hai")
	require.NoError(t, err)

	msgs := co.Messages()
	require.NotNil(t, msgs[0].Voice)
	assert.True(t, msgs[0].Voice.IsRomanUrdu)
	assert.Equal(t, models.InputVoice, msgs[0].InputMethod)

	// metadata is consumed, not sticky
	s.mu.Lock()
	s.events = append(s.events, []api.StreamEvent{{Content: "b"}})
	s.mu.Unlock()
	_, err = co.Submit(context.Background(), "typed now")
	require.NoError(t, err)
	msgs = co.Messages()
	assert.Nil(t, msgs[2].Voice)
	assert.Equal(t, models.InputTyped, msgs[2].InputMethod)
}

func TestRegenerateRefusedWhileInFlight(t *testing.T) {
	s := &scriptedStreamer{block: make(chan struct{})}
	co, _ := newCoordinator(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = co.Submit(context.Background(), "first")
	}()
	require.Eventually(t, co.Consumer.InFlight, time.Second, time.Millisecond)

	_, err := co.Regenerate(context.Background(), "whatever")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	close(s.block)
	<-done
}

func TestRegenerateReplaysUserMessage(t *testing.T) {
	s := &scriptedStreamer{events: [][]api.StreamEvent{
		{{Content: "first answer"}},
		{{Content: "second answer"}},
	}}
	co, _ := newCoordinator(s)

	_, err := co.Submit(context.Background(), "sawal")
	require.NoError(t, err)

	userID := co.Messages()[0].ID
	msg, err := co.Regenerate(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "second answer", msg.Content)
	assert.Equal(t, "sawal", s.lastCall().Message)
	assert.Len(t, co.Messages(), 3)
}
