package dictation

import (
	"context"
	"time"

	"go.voxtype.dev/voxtype/inject"
	"go.voxtype.dev/voxtype/refine"
	"go.voxtype.dev/voxtype/session"
	"go.voxtype.dev/voxtype/stt"
)

// Transcriber is the speech backend contract the orchestrator drives.
// stt.Backend satisfies it.
type Transcriber interface {
	Name() string
	Start(ctx context.Context, onPartial stt.PartialFunc, onError func(error)) error
	Stop() error
	StopAndFinalize(ctx context.Context, timeout time.Duration) (string, error)
}

// Injector delivers final text. It never returns an error; failures are
// part of the report. inject.Engine satisfies it.
type Injector interface {
	Inject(text, preferredApp string, allowFallback bool) inject.Result
}

// Refiner runs the optional LLM cleanup pass. It never returns an
// error; unavailability is a result variant. refine.Refiner satisfies it.
type Refiner interface {
	Refine(ctx context.Context, raw string) refine.Result
}

// Store persists transcripts and failure contexts. store.Store
// satisfies it.
type Store interface {
	SaveTranscript(kind, backend, runID, text string) (string, error)
	SaveFailureContext(backend, runID, report string) (string, error)
}

// ClipboardWriter covers the clipboard-only delivery mode.
type ClipboardWriter interface {
	WriteText(text string) error
}

// Frontmost reports the application currently holding input focus.
type Frontmost interface {
	FrontmostApp() string
}

// Permissions reports the platform permission state used both for
// refusing work early and for failure-context diagnostics.
type Permissions interface {
	MicrophoneGranted() bool
	AccessibilityGranted() bool
}

// SnapshotSink receives every snapshot the orchestrator produces.
// Publish is called from the orchestrator's serialized context and must
// not call back into the service.
type SnapshotSink interface {
	Publish(session.Snapshot)
}

// SinkFunc adapts a function to a SnapshotSink.
type SinkFunc func(session.Snapshot)

func (f SinkFunc) Publish(s session.Snapshot) { f(s) }
