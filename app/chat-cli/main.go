package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Sharjeel-Saleem-06/baatcheet/config"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/api"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/audio"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/chat"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/logger"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/models"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/providers/stt"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/stream"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/uploads"
	"github.com/Sharjeel-Saleem-06/baatcheet/internal/voice"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New()

	tokens := api.StaticToken(os.Getenv("BAATCHEET_TOKEN"))
	client := api.NewClient(cfg.APIBaseURL, tokens, log)

	pipeline := &uploads.Pipeline{
		API:              client,
		Log:              logger.Component(log, "upload_pipeline"),
		PollInterval:     cfg.PollInterval,
		MaxPollAttempts:  cfg.PollMaxAttempts,
		MaxImageBytes:    cfg.MaxImageBytes,
		MaxDocumentBytes: cfg.MaxDocumentBytes,
	}

	consumer := &stream.Consumer{
		API: client,
		Log: logger.Component(log, "stream_consumer"),
	}

	engine, local, err := newSTT(context.Background(), cfg, tokens)
	if err != nil {
		log.WithError(err).Fatal("transcription init failed")
	}

	mic := &fileDevice{}
	voiceResults := make(chan voice.Result, 1)
	session := &voice.Session{
		Device:          mic,
		Engine:          engine,
		API:             client,
		Local:           local,
		Log:             logger.Component(log, "voice_session"),
		SilenceWindow:   cfg.SilenceWindow,
		RestartCooldown: cfg.RestartCooldown,
		CaptureOpts: audio.CaptureOptions{
			SampleRateHz:     cfg.SampleRateHz,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGain:         true,
		},
		OnPreview: func(text string) { fmt.Printf("\r… %s", text) },
		OnResult:  func(r voice.Result) { voiceResults <- r },
	}

	co := &chat.Coordinator{
		Consumer: consumer,
		Uploads:  pipeline,
		Voice:    session,
		Lists:    client,
		Log:      logger.Component(log, "coordinator"),
	}
	co.OnMessages = func(msgs []models.Message) {
		if n := len(msgs); n > 0 && msgs[n-1].Streaming {
			fmt.Printf("\r%s", msgs[n-1].Content)
		}
	}

	fmt.Println("baatcheet chat (/voice <pcm-file> to speak, ctrl-d to quit)")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		input := line
		if path, ok := strings.CutPrefix(line, "/voice "); ok {
			mic.path = strings.TrimSpace(path)
			if err := session.Start(context.Background()); err != nil {
				log.WithError(err).Error("voice capture failed")
				continue
			}
			res := <-voiceResults
			if !res.Committed {
				fmt.Println("\r(nothing transcribed)")
				continue
			}
			fmt.Printf("\ryou said: %s\n", res.Text)
			co.SetPendingVoice(res.Meta)
			input = res.Text
		}

		msg, err := co.Submit(context.Background(), input)
		if err != nil {
			log.WithError(err).Error("submit failed")
			continue
		}
		fmt.Printf("\r%s\n", msg.Content)
	}
}

// newSTT picks the continuous engine per config. The google engine also gets
// a direct recognizer so the fallback utterance skips the backend round-trip.
func newSTT(ctx context.Context, cfg config.Config, tokens api.TokenSource) (stt.LiveEngine, stt.Provider, error) {
	switch cfg.LiveEngine {
	case "google":
		g, err := stt.NewGoogleLive(ctx)
		if err != nil {
			return nil, nil, err
		}
		sp, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			return nil, nil, err
		}
		return g, sp, nil
	case "none":
		return nil, nil, nil // fallback-only capture through the backend
	default:
		return &stt.WSEngine{URL: cfg.RealtimeWSURL, Bearer: tokens.Token}, nil, nil
	}
}

// fileDevice replays a recorded PCM16 file as the capture source; platform
// microphone capture is host-owned and out of the CLI's reach.
type fileDevice struct {
	path string
}

func (d *fileDevice) Open(ctx context.Context, opts audio.CaptureOptions) (audio.Stream, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, err
	}
	return &fileStream{data: data}, nil
}

type fileStream struct {
	data []byte
	off  int
}

// Read yields 100ms frames; io.EOF at the end reads as the device stopping,
// which the voice session turns into a stop gesture.
func (s *fileStream) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.off >= len(s.data) {
		return nil, io.EOF
	}
	frame := 3200
	if end := s.off + frame; end < len(s.data) {
		b := s.data[s.off:end]
		s.off = end
		return b, nil
	}
	b := s.data[s.off:]
	s.off = len(s.data)
	return b, nil
}

func (s *fileStream) Close() error { return nil }
