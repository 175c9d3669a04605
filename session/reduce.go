package session

import (
	"fmt"
	"log/slog"
	"slices"
)

// guards restricts which phases accept each event kind. An event arriving
// from any other phase is rejected: the reducer logs the violation and
// returns the snapshot unchanged.
var guards = map[string][]Phase{
	KindStartRequested:         {PhaseIdle, PhaseCompleted, PhaseFailed},
	KindStopRequested:          {PhaseListening},
	KindProgress:               {PhaseListening, PhaseTranscribing},
	KindCaptureTooShort:        {PhaseListening},
	KindCaptureFailed:          {PhaseListening, PhaseTranscribing, PhaseRefining, PhaseInjecting},
	KindTranscriptionSucceeded: {PhaseTranscribing},
	KindTranscriptionFailed:    {PhaseTranscribing, PhaseRefining},
	KindRefinementStarted:      {PhaseRefining},
	KindRefinementSucceeded:    {PhaseRefining},
	KindRefinementSkipped:      {PhaseRefining},
	KindRefinementFallback:     {PhaseRefining},
	KindInjectionStarted:       {PhaseInjecting},
	KindInjectionSucceeded:     {PhaseInjecting},
	KindInjectionSkipped:       {PhaseInjecting},
	KindInjectionFailed:        {PhaseInjecting},
	KindReset:                  {PhaseIdle, PhaseCompleted, PhaseFailed},
}

// Machine applies events to snapshots. Reduce is a pure function of
// (snapshot, event); the logger is the sole observability seam and carries
// no state into the transition.
type Machine struct {
	log *slog.Logger
}

// NewMachine creates a machine. A nil logger falls back to slog.Default.
func NewMachine(log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{log: log}
}

// Reduce returns the snapshot produced by applying ev to s. Illegal
// (phase, event) pairs return s unchanged; Reduce never panics on them and
// is safe to call repeatedly with the same rejected event.
func (m *Machine) Reduce(s Snapshot, ev Event) Snapshot {
	allowed, known := guards[ev.Kind()]
	if !known || !slices.Contains(allowed, s.Phase) {
		m.log.Warn("event rejected",
			"event", ev.Kind(),
			"phase", s.Phase,
			"run_id", s.RunID)
		return s
	}

	from := s.Phase
	next := m.apply(s, ev)
	next.LastEvent = ev.Kind()

	m.log.Debug("transition",
		"event", ev.Kind(),
		"from", from,
		"to", next.Phase,
		"run_id", next.RunID)
	return next
}

func (m *Machine) apply(s Snapshot, ev Event) Snapshot {
	switch e := ev.(type) {
	case StartRequested:
		status := e.Status
		if status == "" {
			status = fmt.Sprintf("Listening (%s)", e.Backend)
		}
		return Snapshot{
			Phase:   PhaseListening,
			Backend: e.Backend,
			RunID:   e.RunID,
			Status:  status,
		}

	case StopRequested:
		s.Phase = PhaseTranscribing
		s.Status = "Transcribing"
		return s

	case Progress:
		if e.Live != "" {
			s.LiveText = e.Live
		}
		if e.Stable != "" {
			s.StableText = e.Stable
		}
		return s

	case CaptureTooShort:
		s.Phase = PhaseFailed
		s.Failure = fmt.Sprintf("capture too short (%s)", e.Elapsed)
		s.Status = "Capture too short, try again"
		s.Artifacts = s.Artifacts.merge(e.Artifacts)
		return s

	case CaptureFailed:
		s.Phase = PhaseFailed
		s.Failure = e.Message
		s.Status = e.Message
		s.Artifacts = s.Artifacts.merge(e.Artifacts)
		return s

	case TranscriptionSucceeded:
		s.Phase = PhaseRefining
		s.StableText = e.Text
		s.RawText = e.Text
		s.FinalText = e.Text
		s.Source = SourceRaw
		s.Status = "Refining"
		return s

	case TranscriptionFailed:
		s.Phase = PhaseFailed
		s.Failure = e.Message
		s.Status = e.Message
		s.Artifacts = s.Artifacts.merge(e.Artifacts)
		return s

	case RefinementStarted:
		s.Status = "Refining (" + e.Provider + ")"
		return s

	case RefinementSucceeded:
		s.Phase = PhaseInjecting
		s.RefinedText = e.Refined
		s.FinalText = e.Refined
		s.Source = SourceRefined
		note := e.Note
		s.Refinement = &note
		s.Status = "Inserting text"
		return s

	case RefinementSkipped:
		s.Phase = PhaseInjecting
		s.Source = SourceRaw
		note := e.Note
		s.Refinement = &note
		s.Status = "Inserting text"
		return s

	case RefinementFallback:
		s.Phase = PhaseInjecting
		s.Source = SourceRaw
		s.FinalText = s.RawText
		note := e.Note
		s.Refinement = &note
		s.Status = "Inserting text (" + e.Message + ")"
		return s

	case InjectionStarted:
		s.Status = "Inserting text"
		return s

	case InjectionSucceeded:
		s.Phase = PhaseCompleted
		s.Status = orDefault(e.Message, "Done")
		s.Injection = e.Diagnostics
		s.Artifacts = s.Artifacts.merge(e.Artifacts)
		s.Latency = e.Latency
		return s

	case InjectionSkipped:
		s.Phase = PhaseCompleted
		s.Status = orDefault(e.Message, "Done (not inserted)")
		s.Artifacts = s.Artifacts.merge(e.Artifacts)
		s.Latency = e.Latency
		return s

	case InjectionFailed:
		s.Phase = PhaseFailed
		s.Failure = e.Message
		s.Status = e.Message
		s.Injection = e.Diagnostics
		s.Artifacts = s.Artifacts.merge(e.Artifacts)
		return s

	case Reset:
		return Initial()

	default:
		// Unreachable: every kind in guards has a case above.
		panic(fmt.Sprintf("session: no transition for event %q", ev.Kind()))
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
