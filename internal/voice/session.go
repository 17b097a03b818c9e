package voice

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sharjeel-Saleem-06/baatcheet/internal/api"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/audio"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/models"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/providers/stt"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/utils"
)

type State int32

const (
	StateIdle State = iota
	StateAcquiring
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Result is what one recording gesture produced. Committed is false when the
// gesture was cancelled or yielded no usable text.
type Result struct {
	Text      string
	Meta      *models.VoiceMetadata
	Committed bool
}

// Transcriber is the backend surface the session needs: the whole-utterance
// fallback and language classification. *api.Client satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audioBytes []byte, mimeType string) (*api.Transcription, error)
	DetectLanguage(ctx context.Context, text string) (*api.LanguageInfo, error)
}

// Session is one microphone capture gesture: device acquisition, level
// monitoring, continuous transcription with restart-on-end, silence auto-stop
// and the whole-utterance fallback. At most one session is active; a second
// Start is refused. All owned resources are torn down before the state
// returns to idle, whichever of stop/cancel/error got there first.
type Session struct {
	Device audio.Device
	Engine stt.LiveEngine
	API    Transcriber
	Log    *logrus.Entry

	// Local, when set, transcribes the fallback utterance directly and the
	// backend only classifies the language. Unset, the backend transcribes
	// too.
	Local stt.Provider

	SilenceWindow   time.Duration // quiet window after a final segment, default 3.5s
	RestartCooldown time.Duration // pause before relaunching a terminated engine
	CaptureOpts     audio.CaptureOptions
	FallbackMime    string

	OnLevel   func(level float64)
	OnPreview func(text string) // live transcript preview, interim included
	OnResult  func(res Result)

	mu    sync.Mutex
	state State

	// active is the shared flag every late-arriving continuation checks:
	// restart supervisor, silence timer, segment and capture pumps. Once
	// false, they all become no-ops.
	active atomic.Bool

	cancelRun context.CancelFunc
	stream    audio.Stream
	monitor   *audio.LevelMonitor
	wg        sync.WaitGroup

	liveMu sync.Mutex
	live   stt.LiveSession

	segMu    sync.Mutex
	finals   []string
	interim  string
	wordSeen bool
	silence  *time.Timer

	fbMu     sync.Mutex
	fallback bytes.Buffer
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a gesture is in progress in any form.
func (s *Session) Busy() bool { return s.State() != StateIdle }

// Start acquires the microphone and begins capturing. Refused while a gesture
// is already in progress. A denied or absent microphone surfaces
// CodePermissionDenied and leaves the session idle.
func (s *Session) Start(ctx context.Context) error {
	const op = "VoiceSession.Start"

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "voice session already active", nil)
	}
	s.state = StateAcquiring
	s.mu.Unlock()

	s.applyDefaults()

	stream, err := s.Device.Open(ctx, s.CaptureOpts)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()

		var ae *utils.AppError
		if errors.As(err, &ae) {
			return err
		}
		return utils.E(utils.CodePermissionDenied, op, "microphone unavailable", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.stream = stream
	s.cancelRun = cancel
	s.monitor = audio.NewLevelMonitor(0, s.OnLevel)
	s.state = StateActive
	s.mu.Unlock()

	s.segMu.Lock()
	s.finals = nil
	s.interim = ""
	s.wordSeen = false
	s.silence = nil
	s.segMu.Unlock()

	s.fbMu.Lock()
	s.fallback.Reset()
	s.fbMu.Unlock()

	s.active.Store(true)
	s.monitor.Start()

	s.wg.Add(2)
	go s.superviseLive(runCtx)
	go s.pumpAudio(runCtx)

	s.Log.WithField("state", s.State().String()).Info("voice capture started")
	return nil
}

// Stop ends the gesture and commits whatever was heard. If the continuous
// engine produced final segments they become the result and the fallback
// audio is discarded; otherwise the recorded utterance goes to the fallback
// transcriber. A fallback failure is reported but not fatal: the session
// still returns to idle with an uncommitted result.
func (s *Session) Stop(ctx context.Context) error {
	if !s.beginTeardown() {
		return nil
	}
	s.teardown()

	res := s.finalize(ctx)

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	if s.OnResult != nil {
		s.OnResult(res)
	}
	s.Log.WithFields(logrus.Fields{
		"committed": res.Committed,
		"words":     len(strings.Fields(res.Text)),
	}).Info("voice capture stopped")
	return nil
}

// Cancel ends the gesture and discards everything: no transcript is
// committed and the fallback transcription never runs.
func (s *Session) Cancel() error {
	if !s.beginTeardown() {
		return nil
	}
	s.teardown()

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	if s.OnResult != nil {
		s.OnResult(Result{})
	}
	s.Log.Info("voice capture cancelled")
	return nil
}

func (s *Session) applyDefaults() {
	if s.SilenceWindow <= 0 {
		s.SilenceWindow = 3500 * time.Millisecond
	}
	if s.RestartCooldown <= 0 {
		s.RestartCooldown = 300 * time.Millisecond
	}
	if s.CaptureOpts.SampleRateHz == 0 {
		s.CaptureOpts = audio.DefaultCaptureOptions()
	}
	if s.FallbackMime == "" {
		s.FallbackMime = "audio/pcm;rate=16000"
	}
	if s.Log == nil {
		s.Log = logrus.NewEntry(logrus.New())
	}
}

// beginTeardown moves the session into stopping exactly once.
func (s *Session) beginTeardown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive && s.state != StateAcquiring {
		return false
	}
	s.state = StateStopping
	return true
}

// teardown releases every owned resource in a fixed order and waits for the
// pumps to exit. After it returns no goroutine of this gesture is running.
func (s *Session) teardown() {
	s.active.Store(false)

	s.segMu.Lock()
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
	s.segMu.Unlock()

	s.mu.Lock()
	cancel := s.cancelRun
	stream := s.stream
	monitor := s.monitor
	s.cancelRun = nil
	s.stream = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if live := s.currentLive(); live != nil {
		_ = live.Close()
	}
	if monitor != nil {
		monitor.Stop()
	}
	if stream != nil {
		_ = stream.Close()
	}

	s.wg.Wait()
	s.setLive(nil)
}

// finalize produces the gesture result after teardown.
func (s *Session) finalize(ctx context.Context) Result {
	s.segMu.Lock()
	text := strings.TrimSpace(strings.Join(s.finals, " "))
	s.segMu.Unlock()

	if text != "" {
		// Continuous transcript wins; fallback audio is discarded.
		return Result{Text: text, Meta: s.classify(ctx, text), Committed: true}
	}

	s.fbMu.Lock()
	audioBytes := append([]byte(nil), s.fallback.Bytes()...)
	s.fallback.Reset()
	s.fbMu.Unlock()

	if len(audioBytes) == 0 {
		return Result{}
	}

	if s.Local != nil {
		r, err := s.Local.Transcribe(ctx, audioBytes, "")
		if err != nil {
			s.Log.WithError(err).Warn("local fallback transcription failed")
		} else if t := strings.TrimSpace(r.Text); t != "" {
			return Result{Text: t, Meta: s.classify(ctx, t), Committed: true}
		}
	}

	if s.API == nil {
		return Result{}
	}

	tr, err := s.API.Transcribe(ctx, audioBytes, s.FallbackMime)
	if err != nil {
		s.Log.WithError(err).Warn("fallback transcription failed")
		return Result{}
	}
	if strings.TrimSpace(tr.Text) == "" {
		return Result{}
	}
	return Result{
		Text: tr.Text,
		Meta: &models.VoiceMetadata{
			IsRomanUrdu:     tr.IsRomanUrdu,
			IsMixedLanguage: tr.IsMixedLanguage,
			PrimaryLanguage: tr.PrimaryLanguage,
		},
		Committed: true,
	}
}

// classify asks the backend which language the committed text is in.
// Best effort: a failure only costs the metadata.
func (s *Session) classify(ctx context.Context, text string) *models.VoiceMetadata {
	if s.API == nil {
		return nil
	}
	info, err := s.API.DetectLanguage(ctx, text)
	if err != nil {
		s.Log.WithError(err).Warn("language detection failed")
		return nil
	}
	return &models.VoiceMetadata{
		IsRomanUrdu:     info.IsRomanUrdu,
		IsMixedLanguage: info.IsMixedLanguage,
		PrimaryLanguage: info.PrimaryLanguage,
	}
}

func (s *Session) setLive(l stt.LiveSession) {
	s.liveMu.Lock()
	s.live = l
	s.liveMu.Unlock()
}

func (s *Session) currentLive() stt.LiveSession {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	return s.live
}

// superviseLive keeps a continuous engine session alive for the duration of
// the gesture. Providers terminate streams on their own schedule; while the
// active flag holds, termination means cooldown then relaunch. The flag check
// makes a restart racing teardown impossible.
func (s *Session) superviseLive(ctx context.Context) {
	defer s.wg.Done()

	if s.Engine == nil {
		return // fallback-only capture
	}

	for s.active.Load() && ctx.Err() == nil {
		live, err := s.Engine.Start(ctx)
		if err != nil {
			if !s.active.Load() || ctx.Err() != nil {
				return
			}
			s.Log.WithError(err).Warn("live engine start failed")
			if !s.cooldown(ctx) {
				return
			}
			continue
		}
		s.setLive(live)

		for seg := range live.Segments() {
			if !s.active.Load() {
				break
			}
			s.handleSegment(seg)
		}
		s.setLive(nil)

		if err := live.Err(); err != nil && s.active.Load() {
			s.Log.WithError(err).Warn("live engine ended with error")
		}
		if !s.active.Load() || ctx.Err() != nil {
			return
		}
		s.Log.Debug("live engine ended, restarting")
		if !s.cooldown(ctx) {
			return
		}
	}
}

func (s *Session) cooldown(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.RestartCooldown):
		return s.active.Load()
	}
}

// pumpAudio fans captured frames out to the level monitor, the fallback
// recorder and the live engine. A dead capture stream while active is treated
// as a stop gesture.
func (s *Session) pumpAudio(ctx context.Context) {
	defer s.wg.Done()

	for {
		frame, err := s.stream0().Read(ctx)
		if err != nil {
			if s.active.Load() && ctx.Err() == nil {
				s.Log.WithError(err).Warn("capture stream ended")
				go func() {
					fctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
					defer cancel()
					_ = s.Stop(fctx)
				}()
			}
			return
		}

		s.monitor.Push(frame)

		s.fbMu.Lock()
		s.fallback.Write(frame)
		s.fbMu.Unlock()

		if live := s.currentLive(); live != nil {
			if err := live.Send(frame); err != nil {
				s.Log.WithError(err).Debug("live send failed")
			}
		}
	}
}

func (s *Session) stream0() audio.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return deadStream{}
	}
	return s.stream
}

type deadStream struct{}

func (deadStream) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (deadStream) Close() error { return nil }

// handleSegment folds one transcript segment into the draft. Final segments
// commit text and re-arm the silence window; interim segments only refresh
// the preview and the last-speech time.
func (s *Session) handleSegment(seg stt.Segment) {
	s.segMu.Lock()

	if seg.Final {
		s.interim = ""
		if strings.TrimSpace(seg.Text) != "" {
			s.finals = append(s.finals, strings.TrimSpace(seg.Text))
			s.wordSeen = true
		}
		if s.wordSeen {
			if s.silence == nil {
				s.silence = time.AfterFunc(s.SilenceWindow, s.autoStop)
			} else {
				s.silence.Reset(s.SilenceWindow)
			}
		}
	} else {
		s.interim = seg.Text
	}

	preview := strings.TrimSpace(strings.Join(append(append([]string(nil), s.finals...), s.interim), " "))
	s.segMu.Unlock()

	if s.OnPreview != nil {
		s.OnPreview(preview)
	}
}

// autoStop fires when the quiet window elapses after a final segment. It is a
// late continuation, so it checks the active flag before acting.
func (s *Session) autoStop() {
	if !s.active.Load() {
		return
	}
	s.Log.Debug("silence window elapsed, stopping")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()
}
