package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// LevelMonitor turns raw PCM frames into a normalized loudness signal for the
// recording indicator. Frames are pushed by the capture pump as they arrive;
// the monitor republishes the latest level on its own rendering-frequency
// tick, decoupled from transcription timing.
type LevelMonitor struct {
	interval time.Duration
	onLevel  func(level float64)

	bits atomic.Uint64 // float64 bits of the latest level

	done     chan struct{}
	stopOnce sync.Once
}

// NewLevelMonitor creates a monitor publishing through onLevel every
// interval. A zero interval defaults to ~60 updates per second.
func NewLevelMonitor(interval time.Duration, onLevel func(float64)) *LevelMonitor {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &LevelMonitor{
		interval: interval,
		onLevel:  onLevel,
		done:     make(chan struct{}),
	}
}

func (m *LevelMonitor) Start() {
	go func() {
		t := time.NewTicker(m.interval)
		defer t.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-t.C:
				if m.onLevel != nil {
					m.onLevel(m.Level())
				}
			}
		}
	}()
}

// Push feeds one PCM16LE frame. Safe to call after Stop; late frames are
// simply recorded and never published.
func (m *LevelMonitor) Push(frame []byte) {
	m.bits.Store(math.Float64bits(rms16(frame)))
}

// Level returns the most recent normalized loudness in [0,1].
func (m *LevelMonitor) Level() float64 {
	return math.Float64frombits(m.bits.Load())
}

// Stop halts publication. Idempotent.
func (m *LevelMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// rms16 computes root-mean-square loudness of little-endian PCM16 samples,
// normalized to [0,1].
func rms16(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[2*i:]))
		f := float64(s)
		sum += f * f
	}
	v := math.Sqrt(sum/float64(n)) / 32768.0
	if v > 1 {
		v = 1
	}
	return v
}
