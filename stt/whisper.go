package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.voxtype.dev/voxtype/audiocapture"
)

// Whisper is a batch backend: it buffers the whole capture and submits
// it for transcription when the session ends. It produces no partials.
type Whisper struct {
	client   openai.Client
	model    openai.AudioModel
	language string
	capture  *audiocapture.Capture

	mu      sync.Mutex
	running bool
	onError func(error)
}

// NewWhisper creates the Whisper batch backend.
func NewWhisper(opts Options) (*Whisper, error) {
	capture, err := audiocapture.New(audiocapture.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("create audio capture: %w", err)
	}

	model := openai.AudioModelWhisper1
	if opts.Model != "" {
		model = openai.AudioModel(opts.Model)
	}

	return &Whisper{
		client:   openai.NewClient(option.WithAPIKey(opts.APIKey)),
		model:    model,
		language: opts.Language,
		capture:  capture,
	}, nil
}

func (w *Whisper) Name() string { return "whisper" }

// Start begins buffering microphone audio. onPartial is ignored, batch
// transcription has nothing to report until finalization.
func (w *Whisper) Start(ctx context.Context, onPartial PartialFunc, onError func(error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return audiocapture.ErrAlreadyCapturing
	}
	if err := w.capture.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	w.running = true
	w.onError = onError
	return nil
}

// Stop discards the session without transcribing.
func (w *Whisper) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	return w.capture.Stop()
}

// StopAndFinalize stops capturing and transcribes the buffered audio.
func (w *Whisper) StopAndFinalize(ctx context.Context, timeout time.Duration) (string, error) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return "", ErrNotRunning
	}
	w.running = false
	w.mu.Unlock()

	if err := w.capture.Stop(); err != nil {
		return "", fmt.Errorf("stop capture: %w", err)
	}

	samples := w.capture.Session()
	if len(samples) == 0 {
		return "", ErrNoAudio
	}

	wav := encodeWAV(samples, w.capture.SampleRate())
	slog.Debug("submitting audio for transcription",
		"samples", len(samples), "bytes", len(wav), "model", w.model)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: w.model,
	}
	if w.language != "" {
		params.Language = openai.String(w.language)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
