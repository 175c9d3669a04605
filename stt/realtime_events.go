package stt

import "strings"

// Data-channel event types the transcription session emits.
const (
	eventTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	eventTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	eventSpeechStarted          = "input_audio_buffer.speech_started"
	eventError                  = "error"
)

// serverEvent is one message from the realtime data channel. Only the
// fields the dictation flow consumes are decoded.
type serverEvent struct {
	EventID    string       `json:"event_id,omitempty"`
	Type       string       `json:"type"`
	ItemID     string       `json:"item_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Error      *serverError `json:"error,omitempty"`
}

// serverError carries the error payload of an "error" event.
type serverError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// transcriptTracker accumulates the session transcript from delta and
// completed events. Completed turns are stable; the pending delta text
// is volatile until its turn completes. Turns the server has opened with
// speech_started but not yet completed are counted so finalization waits
// for them even before their first delta arrives.
type transcriptTracker struct {
	turns   []string
	pending string
	open    int
}

// apply folds one event into the tracker and reports whether it changed
// the visible text.
func (t *transcriptTracker) apply(ev serverEvent) bool {
	switch ev.Type {
	case eventSpeechStarted:
		t.open++
		return false
	case eventTranscriptionDelta:
		if ev.Delta == "" {
			return false
		}
		t.pending += ev.Delta
		return true
	case eventTranscriptionCompleted:
		if ev.Transcript != "" {
			t.turns = append(t.turns, ev.Transcript)
		}
		t.pending = ""
		if t.open > 0 {
			t.open--
		}
		return true
	}
	return false
}

// stable returns the text of all completed turns.
func (t *transcriptTracker) stable() string {
	return joinTurns(t.turns, "")
}

// live returns stable text plus the volatile pending delta.
func (t *transcriptTracker) live() string {
	return joinTurns(t.turns, t.pending)
}

// flushed reports whether no volatile text remains and every started
// turn has completed.
func (t *transcriptTracker) flushed() bool {
	return t.pending == "" && t.open == 0
}

func joinTurns(turns []string, tail string) string {
	parts := make([]string, 0, len(turns)+1)
	for _, turn := range turns {
		if turn != "" {
			parts = append(parts, turn)
		}
	}
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, " ")
}
