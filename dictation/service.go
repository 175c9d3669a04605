// Package dictation orchestrates one capture session at a time: it drives
// the session state machine, owns every asynchronous side effect, and
// serializes all snapshot mutation behind a single lock. Collaborators
// report back through run-guarded callbacks so stale completions from an
// abandoned run can never corrupt a newer one.
package dictation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.voxtype.dev/voxtype/guardrail"
	"go.voxtype.dev/voxtype/inject"
	"go.voxtype.dev/voxtype/metrics"
	"go.voxtype.dev/voxtype/refine"
	"go.voxtype.dev/voxtype/session"
)

// Config controls orchestrator behavior.
type Config struct {
	HotkeyMode            string
	AutoInject            bool
	AllowCommandVFallback bool
	CopyToClipboard       bool
	PreferredApp          string

	RefinementEnabled  bool
	RefinementProvider string

	// MinCaptureDuration rejects captures shorter than this as too-short.
	MinCaptureDuration time.Duration
	// FinalizeTimeout bounds how long a backend may take to flush.
	FinalizeTimeout time.Duration
	// LatencyWindow caps the per-key latency sample rings.
	LatencyWindow int
}

// Deps are the collaborators the service drives. Backend and Injector
// are required; the rest may be nil and their steps degrade gracefully.
type Deps struct {
	Backend     Transcriber
	Refiner     Refiner
	Injector    Injector
	Store       Store
	Clipboard   ClipboardWriter
	Frontmost   Frontmost
	Permissions Permissions
	Sink        SnapshotSink
	Logger      *slog.Logger
}

// allGranted is the permission default when no checker is wired.
type allGranted struct{}

func (allGranted) MicrophoneGranted() bool    { return true }
func (allGranted) AccessibilityGranted() bool { return true }

// Service is the pipeline orchestrator.
type Service struct {
	cfg      Config
	machine  *session.Machine
	backend  Transcriber
	refiner  Refiner
	injector Injector
	store    Store
	clip     ClipboardWriter
	front    Frontmost
	perms    Permissions
	sink     SnapshotSink
	agg      *metrics.Aggregator
	log      *slog.Logger

	// Injectable for tests.
	now      func() time.Time
	newRunID func() string

	mu            sync.Mutex
	snap          session.Snapshot
	startInFlight bool
	pendingStop   bool
	captureStart  time.Time
	firstPartial  time.Time
	stopAt        time.Time
	finalAt       time.Time
}

// NewService creates the orchestrator. Deps.Backend and Deps.Injector
// must be set.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Backend == nil {
		return nil, fmt.Errorf("dictation: backend required")
	}
	if deps.Injector == nil {
		return nil, fmt.Errorf("dictation: injector required")
	}

	if cfg.MinCaptureDuration <= 0 {
		cfg.MinCaptureDuration = 200 * time.Millisecond
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	perms := deps.Permissions
	if perms == nil {
		perms = allGranted{}
	}

	return &Service{
		cfg:      cfg,
		machine:  session.NewMachine(log),
		backend:  deps.Backend,
		refiner:  deps.Refiner,
		injector: deps.Injector,
		store:    deps.Store,
		clip:     deps.Clipboard,
		front:    deps.Frontmost,
		perms:    perms,
		sink:     deps.Sink,
		agg:      metrics.NewAggregator(cfg.LatencyWindow),
		log:      log,
		now:      time.Now,
		newRunID: uuid.NewString,
		snap:     session.Initial(),
	}, nil
}

// Snapshot returns the current pipeline snapshot.
func (s *Service) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Latency returns the trailing latency summaries.
func (s *Service) Latency() []metrics.KeySummary {
	return s.agg.Summary()
}

// StartRecording begins a new run. It refuses while a run is mid-flight;
// from a terminal phase it resets to idle first.
func (s *Service) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Phase != session.PhaseIdle && !s.snap.Phase.Terminal() {
		return fmt.Errorf("dictation: busy in phase %s", s.snap.Phase)
	}
	if s.snap.Phase.Terminal() {
		s.applyLocked(session.Reset{})
	}

	runID := s.newRunID()
	s.applyLocked(session.StartRequested{
		Backend: s.backend.Name(),
		RunID:   runID,
		Status:  "Listening",
	})

	s.pendingStop = false
	s.captureStart = time.Time{}
	s.firstPartial = time.Time{}
	s.stopAt = time.Time{}
	s.finalAt = time.Time{}

	if !s.perms.MicrophoneGranted() {
		s.failCaptureLocked("microphone permission missing", nil)
		return nil
	}

	s.startInFlight = true
	go s.startBackend(runID)
	return nil
}

// StopRecording ends the active capture. A stop that races backend
// startup is stored as the single pending stop and replayed exactly
// once when startup completes.
func (s *Service) StopRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Phase != session.PhaseListening {
		return fmt.Errorf("dictation: not recording")
	}
	if s.startInFlight || s.captureStart.IsZero() {
		s.pendingStop = true
		return nil
	}
	s.stopLocked()
	return nil
}

// Reset returns a terminal machine to idle.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Phase != session.PhaseIdle && !s.snap.Phase.Terminal() {
		return fmt.Errorf("dictation: busy in phase %s", s.snap.Phase)
	}
	s.applyLocked(session.Reset{})
	return nil
}

// applyLocked feeds one event through the reducer and publishes the
// resulting snapshot. Callers hold s.mu.
func (s *Service) applyLocked(ev session.Event) {
	s.snap = s.machine.Reduce(s.snap, ev)
	if s.sink != nil {
		s.sink.Publish(s.snap)
	}
}

// current reports whether the given run is still active in the given
// phase. Every async completion checks this before applying effects.
func (s *Service) current(runID string, phase session.Phase) bool {
	return s.snap.RunID == runID && s.snap.Phase == phase
}

func (s *Service) startBackend(runID string) {
	err := s.backend.Start(context.Background(), s.partialFunc(runID), s.errorFunc(runID))

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(runID, session.PhaseListening) {
		// The run moved on while the backend was starting.
		if err == nil {
			go func() { _ = s.backend.Stop() }()
		}
		return
	}

	s.startInFlight = false
	if err != nil {
		s.pendingStop = false
		s.failCaptureLocked(fmt.Sprintf("capture start failed: %v", err), nil)
		return
	}

	s.captureStart = s.now()
	if s.pendingStop {
		s.pendingStop = false
		s.stopLocked()
	}
}

func (s *Service) partialFunc(runID string) func(live, stable string) {
	return func(live, stable string) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.snap.RunID != runID {
			return
		}
		switch s.snap.Phase {
		case session.PhaseListening, session.PhaseTranscribing:
		default:
			return
		}
		if s.firstPartial.IsZero() && strings.TrimSpace(live+stable) != "" {
			s.firstPartial = s.now()
		}
		s.applyLocked(session.Progress{Live: live, Stable: stable})
	}
}

func (s *Service) errorFunc(runID string) func(error) {
	return func(err error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.snap.RunID != runID || s.snap.Phase.Terminal() {
			return
		}
		s.failCaptureLocked(fmt.Sprintf("capture failed: %v", err), nil)
	}
}

func (s *Service) failCaptureLocked(reason string, diag *inject.Diagnostics) {
	arts := s.saveFailureLocked(reason, diag)
	s.applyLocked(session.CaptureFailed{Message: reason, Artifacts: arts})
}

// stopLocked computes the capture duration, rejects short captures, and
// otherwise moves to transcribing and finalizes asynchronously.
func (s *Service) stopLocked() {
	elapsed := s.now().Sub(s.captureStart)
	if elapsed < s.cfg.MinCaptureDuration {
		reason := fmt.Sprintf("capture too short: %dms", elapsed.Milliseconds())
		arts := s.saveFailureLocked(reason, nil)
		s.applyLocked(session.CaptureTooShort{Elapsed: elapsed, Artifacts: arts})
		go func() { _ = s.backend.Stop() }()
		return
	}

	s.stopAt = s.now()
	s.applyLocked(session.StopRequested{})
	runID := s.snap.RunID
	go s.finalize(runID)
}

func (s *Service) finalize(runID string) {
	text, err := s.backend.StopAndFinalize(context.Background(), s.cfg.FinalizeTimeout)

	s.mu.Lock()
	if !s.current(runID, session.PhaseTranscribing) {
		s.mu.Unlock()
		return
	}

	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		reason := "transcription returned empty text"
		if err != nil {
			reason = fmt.Sprintf("transcription failed: %v", err)
		}
		arts := s.saveFailureLocked(reason, nil)
		s.applyLocked(session.TranscriptionFailed{Message: reason, Artifacts: arts})
		s.mu.Unlock()
		return
	}

	s.finalAt = s.now()
	s.applyLocked(session.TranscriptionSucceeded{Text: text})
	s.mu.Unlock()

	s.refineStep(runID, text)
}

// refineStep runs the optional cleanup pass and applies its terminal
// event. In raw mode the refiner is never called.
func (s *Service) refineStep(runID, raw string) {
	if !s.cfg.RefinementEnabled || s.refiner == nil {
		s.mu.Lock()
		if s.current(runID, session.PhaseRefining) {
			s.applyLocked(session.RefinementSkipped{
				Note: session.RefinementNote{Outcome: "skipped", Reason: "raw-mode"},
			})
		}
		s.mu.Unlock()
		s.injectStep(runID)
		return
	}

	s.mu.Lock()
	if !s.current(runID, session.PhaseRefining) {
		s.mu.Unlock()
		return
	}
	s.applyLocked(session.RefinementStarted{Provider: s.cfg.RefinementProvider})
	s.mu.Unlock()

	res := s.refiner.Refine(context.Background(), raw)

	s.mu.Lock()
	if !s.current(runID, session.PhaseRefining) {
		s.mu.Unlock()
		return
	}

	switch res.Outcome {
	case refine.OutcomeRefined:
		verdict := guardrail.Validate(raw, res.Text)
		if verdict.Accepted {
			s.applyLocked(session.RefinementSucceeded{
				Refined: res.Text,
				Note: session.RefinementNote{
					Outcome:  "succeeded",
					Provider: res.Provider,
					Latency:  res.Latency,
				},
			})
		} else {
			s.applyLocked(session.RefinementFallback{
				Message: "refinement rejected: " + string(verdict.Reason),
				Note: session.RefinementNote{
					Outcome:  "fallback",
					Provider: res.Provider,
					Reason:   string(verdict.Reason),
					Latency:  res.Latency,
				},
			})
		}
	case refine.OutcomeSkipped:
		s.applyLocked(session.RefinementSkipped{
			Note: session.RefinementNote{
				Outcome:  "skipped",
				Provider: res.Provider,
				Reason:   res.Reason,
			},
		})
	default:
		s.applyLocked(session.RefinementFallback{
			Message: "refinement unavailable: " + res.Reason,
			Note: session.RefinementNote{
				Outcome:  "fallback",
				Provider: res.Provider,
				Reason:   res.Reason,
				Latency:  res.Latency,
			},
		})
	}
	s.mu.Unlock()

	s.injectStep(runID)
}

// injectStep persists transcripts and delivers the final text, or skips
// delivery in clipboard-only mode.
func (s *Service) injectStep(runID string) {
	s.mu.Lock()
	if !s.current(runID, session.PhaseInjecting) {
		s.mu.Unlock()
		return
	}

	final := s.snap.FinalText
	arts, persistWarn := s.persistTranscriptsLocked()

	if !s.cfg.AutoInject {
		msg := "Delivery disabled"
		if s.cfg.CopyToClipboard && s.clip != nil {
			if err := s.clip.WriteText(final); err != nil {
				msg = fmt.Sprintf("Delivery disabled; clipboard copy failed: %v", err)
			} else {
				msg = "Copied to clipboard"
			}
		}
		if persistWarn != "" {
			msg += " (" + persistWarn + ")"
		}
		lat := s.recordLatencyLocked()
		s.applyLocked(session.InjectionSkipped{Message: msg, Artifacts: arts, Latency: lat})
		s.mu.Unlock()
		return
	}

	s.applyLocked(session.InjectionStarted{})
	preferred := s.cfg.PreferredApp
	if preferred == "" && s.front != nil {
		preferred = s.front.FrontmostApp()
	}
	s.mu.Unlock()

	result := s.injector.Inject(final, preferred, s.cfg.AllowCommandVFallback)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(runID, session.PhaseInjecting) {
		return
	}

	diag := result.Diagnostics
	switch result.Disposition {
	case inject.Delivered, inject.DeliveredWithWarning:
		msg := result.Message
		if msg == "" {
			msg = "Inserted"
		}
		if result.Warning != "" {
			msg += " (" + result.Warning + ")"
		}
		if persistWarn != "" {
			msg += " (" + persistWarn + ")"
		}
		lat := s.recordLatencyLocked()
		s.applyLocked(session.InjectionSucceeded{
			Message:     msg,
			Diagnostics: &diag,
			Artifacts:   arts,
			Latency:     lat,
		})
	default:
		reason := result.FailureKind
		if result.Message != "" {
			reason = result.FailureKind + ": " + result.Message
		}
		fc := s.saveFailureLocked(reason, &diag)
		arts.FailureContext = fc.FailureContext
		s.applyLocked(session.InjectionFailed{
			Message:     result.Message,
			Diagnostics: &diag,
			Artifacts:   arts,
		})
	}
}

// persistTranscriptsLocked saves the primary transcript and, when a
// refinement pass ran, the raw and refined variants. Persistence
// failures degrade the status message but never block the run.
func (s *Service) persistTranscriptsLocked() (session.Artifacts, string) {
	if s.store == nil {
		return session.Artifacts{}, ""
	}

	var arts session.Artifacts
	var failed bool
	snap := s.snap

	save := func(kind, text string) string {
		if text == "" {
			return ""
		}
		loc, err := s.store.SaveTranscript(kind, snap.Backend, snap.RunID, text)
		if err != nil {
			failed = true
			s.log.Warn("save transcript", "kind", kind, "error", err)
			return ""
		}
		return loc
	}

	arts.Primary = save("primary", snap.FinalText)
	if snap.RefinedText != "" {
		arts.Raw = save("raw", snap.RawText)
		arts.Refined = save("refined", snap.RefinedText)
	}

	if failed {
		return arts, "transcript persistence failed"
	}
	return arts, ""
}

// saveFailureLocked writes a failure-context artifact and returns its
// location. Callers hold s.mu.
func (s *Service) saveFailureLocked(reason string, diag *inject.Diagnostics) session.Artifacts {
	if s.store == nil {
		return session.Artifacts{}
	}
	report := s.failureReport(s.snap, reason, diag)
	loc, err := s.store.SaveFailureContext(s.snap.Backend, s.snap.RunID, report)
	if err != nil {
		s.log.Warn("save failure context", "error", err)
		return session.Artifacts{}
	}
	return session.Artifacts{FailureContext: loc}
}

// recordLatencyLocked feeds this run's timings into the aggregator and
// returns the trailing summaries.
func (s *Service) recordLatencyLocked() []metrics.KeySummary {
	nowT := s.now()
	backend := s.snap.Backend

	dims := make(map[metrics.Dimension]time.Duration)
	if !s.captureStart.IsZero() {
		dims[metrics.DimTotal] = nowT.Sub(s.captureStart)
		if !s.firstPartial.IsZero() {
			dims[metrics.DimFirstPartial] = s.firstPartial.Sub(s.captureStart)
		}
	}
	if !s.stopAt.IsZero() && !s.finalAt.IsZero() {
		dims[metrics.DimStopToFinal] = s.finalAt.Sub(s.stopAt)
	}
	if len(dims) > 0 {
		s.agg.Record(backend, dims)
	}

	if note := s.snap.Refinement; note != nil && note.Outcome != "skipped" {
		rdims := map[metrics.Dimension]time.Duration{
			metrics.DimRefine: note.Latency,
		}
		if !s.finalAt.IsZero() {
			rdims[metrics.DimStopOverhead] = nowT.Sub(s.finalAt)
		}
		s.agg.Record(backend+"+refine", rdims)
	}

	return s.agg.Summary()
}
