// Package audiocapture captures microphone PCM for transcription backends.
package audiocapture

import (
	"errors"
	"sync"
	"time"
)

// ErrNotCapturing is returned when trying to read audio while not capturing.
var ErrNotCapturing = errors.New("not capturing audio")

// ErrAlreadyCapturing is returned when starting capture while already capturing.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// Capture records the default microphone and fans samples out to registered
// callbacks while keeping a bounded buffer of the running session.
type Capture struct {
	mu sync.RWMutex

	capturing  bool
	startTime  time.Time
	sampleRate int

	buffer *RingBuffer

	onAudio []func(samples []float32)

	impl captureImpl
}

// captureImpl is the capture mechanism. The default implementation shells out
// to ffmpeg; tests substitute a synthetic source. The callback must not be
// invoked before start returns.
type captureImpl interface {
	start(sampleRate int, callback func(samples []float32)) error
	stop() error
}

// Config holds configuration for audio capture.
type Config struct {
	SampleRate int           // default 16000 Hz (what the backends expect)
	BufferSize time.Duration // session buffer length, default 5 minutes

	// ffmpeg source settings.
	Command     string // recorder binary, default "ffmpeg"
	InputFormat string // e.g. "pulse", "avfoundation", "dshow"
	InputDevice string // e.g. "default"
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		BufferSize: 5 * time.Minute,
	}
}

// New creates a capture instance reading from the system microphone.
func New(cfg Config) (*Capture, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 5 * time.Minute
	}

	c := &Capture{
		sampleRate: cfg.SampleRate,
		buffer:     NewRingBuffer(int(cfg.BufferSize.Seconds()) * cfg.SampleRate),
	}
	c.impl = newFFmpegSource(cfg)
	return c, nil
}

// newWithImpl wires a custom capture mechanism, used by tests.
func newWithImpl(cfg Config, impl captureImpl) *Capture {
	c, _ := New(cfg)
	c.impl = impl
	return c
}

// Start begins capturing. The session buffer is cleared so Session returns
// only audio from this capture.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return ErrAlreadyCapturing
	}

	c.buffer.Clear()
	if err := c.impl.start(c.sampleRate, c.handleAudio); err != nil {
		return err
	}

	c.capturing = true
	c.startTime = time.Now()
	return nil
}

// Stop stops capturing. Stopping an idle capture is a no-op.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return nil
	}
	err := c.impl.stop()
	c.capturing = false
	return err
}

// IsCapturing reports whether a capture is running.
func (c *Capture) IsCapturing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capturing
}

// Duration returns how long the current capture has been running.
func (c *Capture) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.capturing {
		return 0
	}
	return time.Since(c.startTime)
}

// OnAudio registers a callback for live audio data.
// Callbacks receive float32 samples in the range [-1, 1].
func (c *Capture) OnAudio(callback func(samples []float32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = append(c.onAudio, callback)
}

// Session returns all samples buffered since Start, oldest first.
// Captures longer than the configured buffer keep only the tail.
func (c *Capture) Session() []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buffer.Read(c.buffer.Len())
}

// SampleRate returns the configured sample rate.
func (c *Capture) SampleRate() int {
	return c.sampleRate
}

func (c *Capture) handleAudio(samples []float32) {
	c.mu.RLock()
	callbacks := c.onAudio
	c.mu.RUnlock()

	c.buffer.Write(samples)

	for _, cb := range callbacks {
		cb(samples)
	}
}

// RingBuffer is a thread-safe circular buffer for audio samples.
type RingBuffer struct {
	mu       sync.RWMutex
	data     []float32
	writePos int
	size     int
	filled   int
}

// NewRingBuffer creates a ring buffer with the given capacity in samples.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{
		data: make([]float32, size),
		size: size,
	}
}

// Write adds samples, overwriting the oldest once full.
func (rb *RingBuffer) Write(samples []float32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, s := range samples {
		rb.data[rb.writePos] = s
		rb.writePos = (rb.writePos + 1) % rb.size
		if rb.filled < rb.size {
			rb.filled++
		}
	}
}

// Read returns the last n samples, oldest first.
func (rb *RingBuffer) Read(n int) []float32 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.filled {
		n = rb.filled
	}
	if n == 0 {
		return nil
	}

	result := make([]float32, n)
	startPos := (rb.writePos - n + rb.size) % rb.size
	for i := 0; i < n; i++ {
		result[i] = rb.data[(startPos+i)%rb.size]
	}
	return result
}

// Clear empties the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.writePos = 0
	rb.filled = 0
}

// Len returns the number of buffered samples.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.filled
}
