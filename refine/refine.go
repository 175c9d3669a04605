// Package refine cleans up raw dictation transcripts with an LLM pass.
// Refinement is best effort: the Refiner reports outcomes, never errors,
// so a failed pass degrades to the raw transcript upstream.
package refine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pemistahl/lingua-go"
)

// Outcome classifies a refinement attempt.
type Outcome string

const (
	// OutcomeRefined means the completer produced usable text.
	OutcomeRefined Outcome = "refined"
	// OutcomeSkipped means refinement was not attempted.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFallback means the attempt failed and the raw text stands.
	OutcomeFallback Outcome = "fallback"
)

// Result is the terminal state of one refinement pass.
type Result struct {
	Outcome  Outcome
	Text     string // refined text, only set for OutcomeRefined
	Provider string
	Reason   string // why skipped or fallen back
	Latency  time.Duration
}

// Config controls the Refiner.
type Config struct {
	Enabled  bool
	Provider string // "openai", "openai-compatible", "claude", "gemini"
	Timeout  time.Duration
}

// Refiner runs transcripts through a Completer with a dictation-specific
// prompt. The language of the transcript is detected so the model keeps
// the output in the speaker's language.
type Refiner struct {
	cfg       Config
	completer Completer
	detector  lingua.LanguageDetector
	log       *slog.Logger
}

// detectionLanguages is the set the detector discriminates between.
// Dictation in a language outside this set still refines, the prompt
// just omits the language hint.
var detectionLanguages = []lingua.Language{
	lingua.English,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Russian,
	lingua.Japanese,
	lingua.Korean,
	lingua.Chinese,
}

// NewRefiner creates a Refiner around the given completer. completer may
// be nil when refinement is disabled.
func NewRefiner(cfg Config, completer Completer, log *slog.Logger) *Refiner {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(detectionLanguages...).
		Build()

	return &Refiner{
		cfg:       cfg,
		completer: completer,
		detector:  detector,
		log:       log,
	}
}

// Refine runs one pass over raw. It always returns a Result; callers
// decide whether to adopt the refined text.
func (r *Refiner) Refine(ctx context.Context, raw string) Result {
	if !r.cfg.Enabled || r.completer == nil {
		return Result{Outcome: OutcomeSkipped, Reason: "refinement-disabled"}
	}
	if strings.TrimSpace(raw) == "" {
		return Result{Outcome: OutcomeSkipped, Reason: "empty-transcript"}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	messages := []Message{
		{Role: "system", Content: r.systemPrompt(raw)},
		{Role: "user", Content: raw},
	}

	start := time.Now()
	text, usage, err := r.completer.Complete(ctx, messages)
	elapsed := time.Since(start)

	if err != nil {
		r.log.Warn("refinement failed", "provider", r.cfg.Provider, "error", err)
		return Result{
			Outcome:  OutcomeFallback,
			Provider: r.cfg.Provider,
			Reason:   err.Error(),
			Latency:  elapsed,
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Result{
			Outcome:  OutcomeFallback,
			Provider: r.cfg.Provider,
			Reason:   "empty-response",
			Latency:  elapsed,
		}
	}

	r.log.Debug("refinement succeeded",
		"provider", r.cfg.Provider, "latency", elapsed, "tokens", usage.TotalTokens)

	return Result{
		Outcome:  OutcomeRefined,
		Text:     text,
		Provider: r.cfg.Provider,
		Latency:  elapsed,
	}
}

// systemPrompt builds the refinement instruction, with a language hint
// when detection is confident.
func (r *Refiner) systemPrompt(raw string) string {
	prompt := "You clean up dictated speech. Fix punctuation, casing and " +
		"obvious transcription slips. Keep the speaker's wording, meaning, " +
		"numbers, URLs and names exactly as spoken. Output only the cleaned " +
		"text with no commentary."

	if lang, ok := r.detector.DetectLanguageOf(raw); ok {
		prompt += fmt.Sprintf(" Respond in %s.", lang.String())
	}
	return prompt
}
