package stt

import (
	"context"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

// GoogleLive is a continuous engine on Cloud Speech StreamingRecognize with
// interim results. Google caps one streaming call at roughly five minutes and
// then ends it from the provider side; callers restart while capturing.
type GoogleLive struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
	Language     string
}

func NewGoogleLive(ctx context.Context) (*GoogleLive, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleLive{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
		Language:     "ur-PK",
	}, nil
}

func (g *GoogleLive) Close() error { return g.c.Close() }

func (g *GoogleLive) Start(ctx context.Context) (LiveSession, error) {
	stream, err := g.c.StreamingRecognize(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   g.Encoding,
					SampleRateHertz:            g.SampleRateHz,
					LanguageCode:               g.Language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	}
	if err := stream.Send(cfg); err != nil {
		return nil, err
	}

	s := &googleLiveSession{
		stream: stream,
		segs:   make(chan Segment, 16),
		done:   make(chan struct{}),
	}
	go s.recv()
	return s, nil
}

type googleLiveSession struct {
	stream speechpb.Speech_StreamingRecognizeClient

	mu     sync.Mutex
	closed bool
	err    error

	segs chan Segment
	done chan struct{} // closed in Close; unblocks a recv stuck on segs
}

func (s *googleLiveSession) Send(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil // late frame after teardown, drop
	}
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: pcm,
		},
	})
}

func (s *googleLiveSession) Segments() <-chan Segment { return s.segs }

func (s *googleLiveSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *googleLiveSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	return s.stream.CloseSend()
}

func (s *googleLiveSession) recv() {
	defer close(s.segs)
	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			return // provider ended the stream
		}
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = err
			}
			s.mu.Unlock()
			return
		}

		for _, res := range resp.Results {
			if len(res.Alternatives) == 0 {
				continue
			}
			alt := res.Alternatives[0]
			if alt.Transcript == "" {
				continue
			}
			seg := Segment{
				Text:       alt.Transcript,
				Final:      res.IsFinal,
				Confidence: float64(alt.Confidence),
			}
			select {
			case s.segs <- seg:
			case <-s.done:
				return
			}
		}
	}
}
