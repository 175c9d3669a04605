// Package stt provides speech-to-text backend contracts and implementations.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotRunning is returned when a backend operation requires an active session.
var ErrNotRunning = errors.New("stt: backend not running")

// ErrNoAudio is returned when finalization finds no captured samples.
var ErrNoAudio = errors.New("stt: no audio captured")

// PartialFunc receives in-flight recognition text. live includes volatile
// text that may still change; stable only grows.
type PartialFunc func(live, stable string)

// Backend drives one dictation capture from start to final transcript.
// Implementations are not safe for concurrent Start calls.
type Backend interface {
	// Name returns the backend identifier used in logs and artifacts.
	Name() string

	// Start begins capturing and recognizing. onPartial may be nil for
	// batch backends. onError reports asynchronous failures after Start
	// has returned.
	Start(ctx context.Context, onPartial PartialFunc, onError func(error)) error

	// Stop abandons the session without producing a transcript.
	Stop() error

	// StopAndFinalize stops capturing and returns the final transcript,
	// waiting up to timeout for the backend to flush pending audio.
	StopAndFinalize(ctx context.Context, timeout time.Duration) (string, error)
}

// StreamingBackend is implemented by backends that deliver partial
// results while capture is still running.
type StreamingBackend interface {
	Backend
	StreamingEnabled() bool
}

// Streaming reports whether b delivers partials during capture.
func Streaming(b Backend) bool {
	sb, ok := b.(StreamingBackend)
	return ok && sb.StreamingEnabled()
}

// Options configures backend construction.
type Options struct {
	APIKey   string
	Model    string // backend-specific model override
	Language string // ISO-639-1 hint, empty for auto
}

// New constructs the named backend.
func New(name string, opts Options) (Backend, error) {
	switch name {
	case "whisper", "":
		return NewWhisper(opts)
	case "realtime":
		return NewRealtime(opts)
	default:
		return nil, fmt.Errorf("stt: unknown backend %q", name)
	}
}
