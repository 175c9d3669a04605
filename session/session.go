// Package session models the dictation pipeline as a finite state machine:
// an immutable Snapshot advanced only by Events through a pure reducer.
// The reducer performs no I/O and schedules no work; side effects belong to
// the orchestrator in package dictation.
package session

import (
	"time"

	"go.voxtype.dev/voxtype/inject"
	"go.voxtype.dev/voxtype/metrics"
)

// Phase is one of the finite pipeline states a capture session can be in.
// Exactly one phase is active at a time.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseListening    Phase = "listening"
	PhaseTranscribing Phase = "transcribing"
	PhaseRefining     Phase = "refining"
	PhaseInjecting    Phase = "injecting"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

// Terminal reports whether p is a resting phase a fresh start may leave from.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// OutputSource marks which transcript the final text came from.
type OutputSource string

const (
	SourceRaw     OutputSource = "raw"
	SourceRefined OutputSource = "refined"
)

// Artifacts holds persisted artifact locations for the current run.
// Each field is optional and independently settable.
type Artifacts struct {
	Primary        string `json:"primary,omitempty"`
	Raw            string `json:"raw,omitempty"`
	Refined        string `json:"refined,omitempty"`
	FailureContext string `json:"failure_context,omitempty"`
}

// merge overlays non-empty fields of other onto a copy of a.
func (a Artifacts) merge(other Artifacts) Artifacts {
	if other.Primary != "" {
		a.Primary = other.Primary
	}
	if other.Raw != "" {
		a.Raw = other.Raw
	}
	if other.Refined != "" {
		a.Refined = other.Refined
	}
	if other.FailureContext != "" {
		a.FailureContext = other.FailureContext
	}
	return a
}

// RefinementNote carries diagnostics from a refinement terminal event.
type RefinementNote struct {
	Outcome  string        `json:"outcome"` // "succeeded", "skipped", "fallback"
	Provider string        `json:"provider,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Latency  time.Duration `json:"latency,omitempty"`
}

// Snapshot is the immutable pipeline state. The reducer replaces it wholesale
// on every accepted event; it is never mutated in place.
type Snapshot struct {
	Phase   Phase  `json:"phase"`
	Backend string `json:"backend,omitempty"`
	Status  string `json:"status"`

	// Live partials while listening/transcribing.
	LiveText   string `json:"live_text,omitempty"`
	StableText string `json:"stable_text,omitempty"`

	RawText     string       `json:"raw_text,omitempty"`
	RefinedText string       `json:"refined_text,omitempty"`
	FinalText   string       `json:"final_text,omitempty"`
	Source      OutputSource `json:"source,omitempty"`

	Artifacts Artifacts `json:"artifacts"`

	// RunID is minted at start and cleared only when returning to idle.
	RunID string `json:"run_id,omitempty"`

	// LastEvent is the kind of the last applied event, for diagnostics.
	LastEvent string `json:"last_event,omitempty"`

	Failure string `json:"failure,omitempty"`

	Refinement *RefinementNote     `json:"refinement,omitempty"`
	Injection  *inject.Diagnostics `json:"injection,omitempty"`

	// Latency carries trailing percentile summaries, set at run completion.
	Latency []metrics.KeySummary `json:"latency,omitempty"`
}

// Initial returns the snapshot a machine starts from.
func Initial() Snapshot {
	return Snapshot{Phase: PhaseIdle, Status: "Ready"}
}
