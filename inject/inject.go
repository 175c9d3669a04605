// Package inject delivers final transcript text into the application that
// currently has input focus. Delivery walks an ordered strategy chain:
// direct insertion at the focused target, value replacement when the target
// reports as editable, and finally a clipboard-mediated paste. The clipboard
// is touched by the paste strategy only; the accessibility strategies never
// read or write it.
package inject

import (
	"log/slog"
	"time"
)

// Strategy identifies one delivery mechanism in the chain.
type Strategy string

const (
	StrategyInsert    Strategy = "ax-insert"
	StrategySetValue  Strategy = "ax-set-value"
	StrategyClipboard Strategy = "clipboard-paste"
)

// Outcome is the per-strategy attempt result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Attempt records one strategy attempt, in order.
type Attempt struct {
	Strategy Strategy `json:"strategy"`
	Outcome  Outcome  `json:"outcome"`
	Reason   string   `json:"reason,omitempty"`
}

// Diagnostics describes everything one Inject call did. Built once per call,
// immutable afterwards; this is the primary debugging surface when delivery
// goes wrong, so no field may be silently omitted.
type Diagnostics struct {
	Chain          []Strategy    `json:"chain"`
	Attempts       []Attempt     `json:"attempts"`
	FinalStrategy  Strategy      `json:"final_strategy,omitempty"`
	FocusedRole    string        `json:"focused_role,omitempty"`
	FocusedSubrole string        `json:"focused_subrole,omitempty"`
	FocusWait      time.Duration `json:"focus_wait"`
	PreferredApp   string        `json:"preferred_app,omitempty"`
	FrontmostApp   string        `json:"frontmost_app,omitempty"`
}

// Disposition is the overall outcome of an Inject call.
type Disposition string

const (
	// Delivered means the text reached the target cleanly.
	Delivered Disposition = "delivered"
	// DeliveredWithWarning means the text was delivered but something
	// non-fatal happened, e.g. the clipboard could not be restored.
	DeliveredWithWarning Disposition = "delivered-with-warning"
	// Failed means no strategy delivered the text.
	Failed Disposition = "failed"
)

// Failure kinds for Disposition == Failed.
const (
	FailEmptyText         = "empty-text"
	FailAccessibility     = "accessibility-permission-missing"
	FailFocusTimeout      = "focus-stabilization-timed-out"
	FailTargetNotEditable = "target-not-editable"
	FailClipboardWrite    = "clipboard-unavailable"
	FailPasteKeystroke    = "paste-keystroke-unavailable"
)

// Result is the report returned by Inject. Inject never returns an error;
// failures are part of the report.
type Result struct {
	Disposition Disposition
	FailureKind string // set when Disposition == Failed
	Warning     string // set when Disposition == DeliveredWithWarning
	Message     string
	Diagnostics Diagnostics
}

// Target is a focused, interactable UI element discovered through the
// platform accessibility tree.
type Target interface {
	Role() string
	Subrole() string
	// Editable reports whether the target accepts value replacement.
	Editable() bool
	InsertText(text string) error
	SetValue(text string) error
}

// Focus looks up the focused element and the frontmost application.
// Implemented by a platform collaborator; tests use fakes.
type Focus interface {
	// FocusedTarget returns the currently focused element, if any.
	FocusedTarget() (Target, bool)
	// Activate brings the identified application to the front.
	Activate(appID string) error
	// FrontmostApp returns the identifier of the frontmost application.
	FrontmostApp() string
}

// Clipboard reads and writes the system clipboard as text.
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// Keystroker synthesizes the platform paste keystroke.
type Keystroker interface {
	Paste() error
}

// Config controls engine timing and permissions.
type Config struct {
	// FocusTimeout bounds how long Inject polls for a focused target.
	FocusTimeout time.Duration
	// PollInterval is the focus polling period.
	PollInterval time.Duration
	// WriteSettle is the pause between the clipboard write and the paste
	// keystroke, giving the target time to observe the new contents.
	WriteSettle time.Duration
	// PasteSettle is the pause between the paste keystroke and the
	// clipboard restore attempt.
	PasteSettle time.Duration
	// AssistiveAccess reports whether the platform assistive-access
	// permission is granted. Nil means granted.
	AssistiveAccess func() bool
}

func (c *Config) defaults() {
	if c.FocusTimeout <= 0 {
		c.FocusTimeout = 900 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.WriteSettle <= 0 {
		c.WriteSettle = 80 * time.Millisecond
	}
	if c.PasteSettle <= 0 {
		c.PasteSettle = 120 * time.Millisecond
	}
}

// Engine runs the delivery chain.
type Engine struct {
	focus Focus
	clip  Clipboard
	keys  Keystroker
	cfg   Config
	log   *slog.Logger

	sleep func(time.Duration) // replaced in tests
}

// NewEngine creates an injection engine. A nil logger falls back to the
// default slog logger.
func NewEngine(focus Focus, clip Clipboard, keys Keystroker, cfg Config, log *slog.Logger) *Engine {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		focus: focus,
		clip:  clip,
		keys:  keys,
		cfg:   cfg,
		log:   log,
		sleep: time.Sleep,
	}
}

// Inject attempts to deliver text, preferring preferredApp as the placement
// hint. allowFallback permits the clipboard-paste strategy. Inject never
// panics and never returns an error; every outcome is in the Result.
func (e *Engine) Inject(text, preferredApp string, allowFallback bool) Result {
	diag := Diagnostics{PreferredApp: preferredApp}
	if e.focus != nil {
		diag.FrontmostApp = e.focus.FrontmostApp()
	}

	if text == "" {
		return e.fail(diag, FailEmptyText, "nothing to inject: text is empty")
	}
	if e.cfg.AssistiveAccess != nil && !e.cfg.AssistiveAccess() {
		return e.fail(diag, FailAccessibility, "assistive access permission is not granted")
	}

	target, found := e.awaitFocus(preferredApp, &diag)

	if found {
		diag.FocusedRole = target.Role()
		diag.FocusedSubrole = target.Subrole()

		diag.Chain = append(diag.Chain, StrategyInsert)
		insertErr := target.InsertText(text)
		if insertErr == nil {
			diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategyInsert, Outcome: OutcomeSuccess})
			diag.FinalStrategy = StrategyInsert
			e.log.Debug("text injected", "strategy", StrategyInsert, "role", diag.FocusedRole)
			return Result{Disposition: Delivered, Message: "inserted at focused element", Diagnostics: diag}
		}
		diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategyInsert, Outcome: OutcomeFailed, Reason: insertErr.Error()})

		diag.Chain = append(diag.Chain, StrategySetValue)
		switch {
		case !target.Editable():
			diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategySetValue, Outcome: OutcomeSkipped, Reason: "target does not report as editable"})
		default:
			setErr := target.SetValue(text)
			if setErr == nil {
				diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategySetValue, Outcome: OutcomeSuccess})
				diag.FinalStrategy = StrategySetValue
				e.log.Debug("text injected", "strategy", StrategySetValue, "role", diag.FocusedRole)
				return Result{Disposition: Delivered, Message: "replaced value of focused element", Diagnostics: diag}
			}
			diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategySetValue, Outcome: OutcomeFailed, Reason: setErr.Error()})
		}
	}

	if !allowFallback {
		diag.Chain = append(diag.Chain, StrategyClipboard)
		diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategyClipboard, Outcome: OutcomeSkipped, Reason: "clipboard fallback disabled by configuration"})
		if !found {
			return e.fail(diag, FailFocusTimeout, "no focusable target appeared within the focus timeout")
		}
		return e.fail(diag, FailTargetNotEditable, "focused target rejected both accessibility strategies")
	}

	return e.pasteViaClipboard(text, diag)
}

// awaitFocus optionally activates the preferred application, then polls for a
// focused target for up to FocusTimeout. The wait time recorded in the
// diagnostics is the actual elapsed time when a target appears, the full
// configured timeout when polling exhausts, and zero when there is no focus
// bridge to poll at all.
func (e *Engine) awaitFocus(preferredApp string, diag *Diagnostics) (Target, bool) {
	if e.focus == nil {
		return nil, false
	}

	if preferredApp != "" {
		if err := e.focus.Activate(preferredApp); err != nil {
			e.log.Debug("activate preferred app failed", "app", preferredApp, "error", err)
		}
	}

	start := time.Now()
	for {
		if target, ok := e.focus.FocusedTarget(); ok {
			diag.FocusWait = time.Since(start)
			return target, true
		}
		if time.Since(start)+e.cfg.PollInterval > e.cfg.FocusTimeout {
			diag.FocusWait = e.cfg.FocusTimeout
			return nil, false
		}
		e.sleep(e.cfg.PollInterval)
	}
}

// pasteViaClipboard is strategy 3: snapshot the clipboard, write the text,
// synthesize the paste keystroke, then try to restore the previous contents.
// A clipboard that changed externally during the window is left alone.
func (e *Engine) pasteViaClipboard(text string, diag Diagnostics) Result {
	diag.Chain = append(diag.Chain, StrategyClipboard)

	if e.clip == nil {
		diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategyClipboard, Outcome: OutcomeSkipped, Reason: "no clipboard is wired"})
		return e.fail(diag, FailClipboardWrite, "clipboard paste unavailable: no clipboard is wired")
	}
	if e.keys == nil {
		diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategyClipboard, Outcome: OutcomeSkipped, Reason: "no keystroke synthesizer is wired"})
		return e.fail(diag, FailPasteKeystroke, "clipboard paste unavailable: no keystroke synthesizer is wired")
	}

	previous, readErr := e.clip.ReadText()
	if readErr != nil {
		e.log.Debug("clipboard snapshot failed", "error", readErr)
	}

	if err := e.clip.WriteText(text); err != nil {
		diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategyClipboard, Outcome: OutcomeFailed, Reason: err.Error()})
		return e.fail(diag, FailClipboardWrite, "clipboard write failed: "+err.Error())
	}
	e.sleep(e.cfg.WriteSettle)

	if err := e.keys.Paste(); err != nil {
		diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategyClipboard, Outcome: OutcomeFailed, Reason: err.Error()})
		return e.fail(diag, FailPasteKeystroke, "paste keystroke failed: "+err.Error())
	}
	e.sleep(e.cfg.PasteSettle)

	diag.Attempts = append(diag.Attempts, Attempt{Strategy: StrategyClipboard, Outcome: OutcomeSuccess})
	diag.FinalStrategy = StrategyClipboard

	if readErr != nil {
		return Result{
			Disposition: DeliveredWithWarning,
			Warning:     "pasted via clipboard; previous contents could not be read for restore",
			Message:     "pasted via clipboard",
			Diagnostics: diag,
		}
	}

	current, err := e.clip.ReadText()
	if err == nil && current != text {
		// Something else wrote the clipboard during the paste window;
		// restoring would clobber it.
		return Result{
			Disposition: DeliveredWithWarning,
			Warning:     "pasted via clipboard; contents changed externally, restore skipped",
			Message:     "pasted via clipboard",
			Diagnostics: diag,
		}
	}

	if err := e.clip.WriteText(previous); err != nil {
		return Result{
			Disposition: DeliveredWithWarning,
			Warning:     "pasted via clipboard; previous contents could not be restored",
			Message:     "pasted via clipboard",
			Diagnostics: diag,
		}
	}

	return Result{Disposition: Delivered, Message: "pasted via clipboard", Diagnostics: diag}
}

func (e *Engine) fail(diag Diagnostics, kind, msg string) Result {
	e.log.Warn("injection failed", "kind", kind, "attempts", len(diag.Attempts))
	return Result{Disposition: Failed, FailureKind: kind, Message: msg, Diagnostics: diag}
}
