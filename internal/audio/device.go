package audio

import "context"

// CaptureOptions mirror the constraints requested when acquiring the
// microphone. All three processing toggles are on by default.
type CaptureOptions struct {
	SampleRateHz     int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGain         bool
}

func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		SampleRateHz:     16000,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGain:         true,
	}
}

// Device abstracts microphone acquisition. The concrete device is supplied by
// the host application (platform capture is collaborator-owned); a denied or
// absent microphone surfaces CodePermissionDenied from Open.
type Device interface {
	Open(ctx context.Context, opts CaptureOptions) (Stream, error)
}

// Stream yields PCM16 little-endian frames from an open capture. A Stream is
// exclusively owned by one voice session and closed during its teardown.
type Stream interface {
	// Read blocks until the next frame is available or ctx is done.
	// io.EOF means the device stopped producing.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}
