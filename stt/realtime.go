package stt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.voxtype.dev/voxtype/audiocapture"
)

// Realtime streams microphone audio over WebRTC and receives live
// transcription text on the data channel while capture is running.
type Realtime struct {
	apiKey   string
	language string
	capture  *audiocapture.Capture

	mu        sync.Mutex
	running   bool
	link      *rtcLink
	cancel    context.CancelFunc
	onPartial PartialFunc
	onError   func(error)
	tracker   transcriptTracker

	// flush is signaled whenever a turn completes, waking finalization.
	flush chan struct{}
}

// NewRealtime creates the streaming WebRTC backend.
func NewRealtime(opts Options) (*Realtime, error) {
	cfg := audiocapture.DefaultConfig()
	cfg.SampleRate = rtcSampleRate

	capture, err := audiocapture.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create audio capture: %w", err)
	}

	return &Realtime{
		apiKey:   opts.APIKey,
		language: opts.Language,
		capture:  capture,
		flush:    make(chan struct{}, 1),
	}, nil
}

func (r *Realtime) Name() string { return "realtime" }

// StreamingEnabled reports that partials arrive during capture.
func (r *Realtime) StreamingEnabled() bool { return true }

// Start connects the WebRTC session and begins streaming audio.
func (r *Realtime) Start(ctx context.Context, onPartial PartialFunc, onError func(error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return audiocapture.ErrAlreadyCapturing
	}

	link := newRTCLink(r.apiKey)
	if err := link.connect(ctx, r.language); err != nil {
		_ = link.close()
		return fmt.Errorf("connect realtime: %w", err)
	}

	if err := r.capture.Start(); err != nil {
		_ = link.close()
		return fmt.Errorf("start capture: %w", err)
	}
	r.capture.OnAudio(func(samples []float32) {
		if err := link.sendAudio(samples); err != nil {
			slog.Warn("send audio", "error", err)
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	r.link = link
	r.cancel = cancel
	r.onPartial = onPartial
	r.onError = onError
	r.tracker = transcriptTracker{}
	r.running = true

	go r.processEvents(ctx, link)
	return nil
}

func (r *Realtime) processEvents(ctx context.Context, link *rtcLink) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-link.errs:
			r.mu.Lock()
			onError := r.onError
			r.mu.Unlock()
			if onError != nil {
				onError(err)
			}
		case ev := <-link.events:
			r.handleEvent(ev)
		}
	}
}

func (r *Realtime) handleEvent(ev serverEvent) {
	if ev.Type == eventError {
		msg := "realtime session error"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		r.mu.Lock()
		onError := r.onError
		r.mu.Unlock()
		if onError != nil {
			onError(fmt.Errorf("realtime: %s", msg))
		}
		return
	}

	r.mu.Lock()
	changed := r.tracker.apply(ev)
	live, stable := r.tracker.live(), r.tracker.stable()
	flushed := r.tracker.flushed()
	onPartial := r.onPartial
	r.mu.Unlock()

	if !changed {
		return
	}
	if onPartial != nil {
		onPartial(live, stable)
	}
	if ev.Type == eventTranscriptionCompleted && flushed {
		select {
		case r.flush <- struct{}{}:
		default:
		}
	}
}

// Stop abandons the session without a transcript.
func (r *Realtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	r.teardownLocked()
	return nil
}

// StopAndFinalize stops capturing, commits the input buffer, and waits
// for the final turn to complete before returning the transcript. On
// timeout the text accumulated so far is returned.
func (r *Realtime) StopAndFinalize(ctx context.Context, timeout time.Duration) (string, error) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return "", ErrNotRunning
	}
	r.running = false
	link := r.link
	r.mu.Unlock()

	if err := r.capture.Stop(); err != nil {
		slog.Warn("stop capture", "error", err)
	}
	if err := link.send(map[string]any{"type": "input_audio_buffer.commit"}); err != nil {
		slog.Debug("commit input buffer", "error", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

wait:
	for {
		r.mu.Lock()
		done := r.tracker.flushed()
		r.mu.Unlock()
		if done {
			break
		}
		select {
		case <-ctx.Done():
			break wait
		case <-deadline.C:
			break wait
		case <-r.flush:
		}
	}

	r.mu.Lock()
	text := r.tracker.live()
	r.teardownLocked()
	r.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoAudio
	}
	return text, nil
}

func (r *Realtime) teardownLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.link != nil {
		_ = r.link.close()
		r.link = nil
	}
	if r.capture.IsCapturing() {
		_ = r.capture.Stop()
	}
}
