package store

import (
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DefaultOptions(t.TempDir()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetTranscript(t *testing.T) {
	s := openTestStore(t)

	loc, err := s.SaveTranscript(KindPrimary, "whisper", "run-1", "hello world")
	if err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	if !strings.HasPrefix(loc, "primary/whisper/") {
		t.Errorf("location = %q, want primary/whisper/ prefix", loc)
	}
	if !strings.HasSuffix(loc, "-run-1") {
		t.Errorf("location = %q, want run id suffix", loc)
	}

	got, err := s.Get(loc)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "hello world" {
		t.Errorf("Get = %q, want saved text", got)
	}
}

func TestSaveFailureContext(t *testing.T) {
	s := openTestStore(t)

	report := "run_id: run-2\nreason: transcription failed"
	loc, err := s.SaveFailureContext("realtime", "run-2", report)
	if err != nil {
		t.Fatalf("SaveFailureContext: %v", err)
	}
	if !strings.HasPrefix(loc, "failure/realtime/") {
		t.Errorf("location = %q, want failure/realtime/ prefix", loc)
	}

	got, err := s.Get(loc)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != report {
		t.Errorf("Get = %q, want saved report", got)
	}
}

func TestListOrdersByTimestamp(t *testing.T) {
	s := openTestStore(t)

	// Control the clock so successive saves sort deterministically.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	s.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	if _, err := s.SaveTranscript(KindRaw, "whisper", "first", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveTranscript(KindRaw, "whisper", "second", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveTranscript(KindRefined, "whisper", "other", "c"); err != nil {
		t.Fatal(err)
	}

	keys, err := s.List(KindRaw)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("List returned %d keys, want 2", len(keys))
	}
	if !strings.HasSuffix(keys[0], "-first") || !strings.HasSuffix(keys[1], "-second") {
		t.Errorf("keys out of order: %v", keys)
	}
}

func TestGetMissingLocation(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("primary/whisper/nope"); err == nil {
		t.Fatal("expected error for missing location")
	}
}
