package stt

import "context"

// Segment is one transcript chunk from a continuous engine. Interim segments
// may be revised; a final segment will not change again.
type Segment struct {
	Text       string
	Final      bool
	Confidence float64
}

// Result is a whole-utterance transcription.
type Result struct {
	Text       string
	Confidence float64
}

// Provider transcribes a complete recorded utterance in one call.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (*Result, error)
	Close() error
}

// LiveEngine opens continuous transcription sessions. A session ends either
// because the client closes it or because the provider terminates the stream
// (time caps, idle policies); the voice session's supervisor restarts it in
// the latter case.
type LiveEngine interface {
	Start(ctx context.Context) (LiveSession, error)
}

// LiveSession is one continuous transcription stream. Segments is closed when
// the stream ends for any reason; Err reports why, nil meaning a clean
// client-initiated close or provider end-of-stream.
type LiveSession interface {
	Send(pcm []byte) error
	Segments() <-chan Segment
	Err() error
	Close() error
}
