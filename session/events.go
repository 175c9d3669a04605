package session

import (
	"time"

	"go.voxtype.dev/voxtype/inject"
	"go.voxtype.dev/voxtype/metrics"
)

// Event kinds.
const (
	KindStartRequested         = "start_requested"
	KindStopRequested          = "stop_requested"
	KindProgress               = "progress"
	KindCaptureTooShort        = "capture_too_short"
	KindCaptureFailed          = "capture_failed"
	KindTranscriptionSucceeded = "transcription_succeeded"
	KindTranscriptionFailed    = "transcription_failed"
	KindRefinementStarted      = "refinement_started"
	KindRefinementSucceeded    = "refinement_succeeded"
	KindRefinementSkipped      = "refinement_skipped"
	KindRefinementFallback     = "refinement_fallback"
	KindInjectionStarted       = "injection_started"
	KindInjectionSucceeded     = "injection_succeeded"
	KindInjectionSkipped       = "injection_skipped"
	KindInjectionFailed        = "injection_failed"
	KindReset                  = "reset"
)

// Event is the only way a Snapshot may change.
// Check the concrete type via type switch.
type Event interface {
	Kind() string
}

// StartRequested begins a new run: clears transcripts, artifacts and
// refinement state, and records the backend and run identity.
type StartRequested struct {
	Backend string
	RunID   string
	Status  string // human-readable run message
}

func (StartRequested) Kind() string { return KindStartRequested }

// StopRequested moves a listening session into transcribing.
type StopRequested struct{}

func (StopRequested) Kind() string { return KindStopRequested }

// Progress updates the live and stable partial text only.
type Progress struct {
	Live   string
	Stable string
}

func (Progress) Kind() string { return KindProgress }

// CaptureTooShort rejects a capture below the short-capture threshold.
type CaptureTooShort struct {
	Elapsed   time.Duration
	Artifacts Artifacts
}

func (CaptureTooShort) Kind() string { return KindCaptureTooShort }

// CaptureFailed terminates the run with a capture error.
type CaptureFailed struct {
	Message   string
	Artifacts Artifacts
}

func (CaptureFailed) Kind() string { return KindCaptureFailed }

// TranscriptionSucceeded seeds raw = final = stable text.
type TranscriptionSucceeded struct {
	Text string
}

func (TranscriptionSucceeded) Kind() string { return KindTranscriptionSucceeded }

// TranscriptionFailed terminates the run with a transcription error.
type TranscriptionFailed struct {
	Message   string
	Artifacts Artifacts
}

func (TranscriptionFailed) Kind() string { return KindTranscriptionFailed }

// RefinementStarted updates the status line while refining.
type RefinementStarted struct {
	Provider string
}

func (RefinementStarted) Kind() string { return KindRefinementStarted }

// RefinementSucceeded installs the refined text as the final output.
type RefinementSucceeded struct {
	Refined string
	Note    RefinementNote
}

func (RefinementSucceeded) Kind() string { return KindRefinementSucceeded }

// RefinementSkipped records that the refiner was not called (raw mode).
type RefinementSkipped struct {
	Note RefinementNote
}

func (RefinementSkipped) Kind() string { return KindRefinementSkipped }

// RefinementFallback records a rejected or failed refinement; the raw
// transcript remains the final output.
type RefinementFallback struct {
	Message string
	Note    RefinementNote
}

func (RefinementFallback) Kind() string { return KindRefinementFallback }

// InjectionStarted updates the status line while injecting.
type InjectionStarted struct{}

func (InjectionStarted) Kind() string { return KindInjectionStarted }

// InjectionSucceeded completes the run after delivery. Message may fold in a
// soft warning.
type InjectionSucceeded struct {
	Message     string
	Diagnostics *inject.Diagnostics
	Artifacts   Artifacts
	Latency     []metrics.KeySummary
}

func (InjectionSucceeded) Kind() string { return KindInjectionSucceeded }

// InjectionSkipped completes the run without delivery (auto-inject off).
type InjectionSkipped struct {
	Message   string
	Artifacts Artifacts
	Latency   []metrics.KeySummary
}

func (InjectionSkipped) Kind() string { return KindInjectionSkipped }

// InjectionFailed terminates the run with a hard delivery error.
type InjectionFailed struct {
	Message     string
	Diagnostics *inject.Diagnostics
	Artifacts   Artifacts
}

func (InjectionFailed) Kind() string { return KindInjectionFailed }

// Reset returns a terminal (or idle) machine to idle, clearing the run.
type Reset struct{}

func (Reset) Kind() string { return KindReset }
