package inject

import (
	"errors"
	"testing"
	"time"
)

type fakeTarget struct {
	role      string
	subrole   string
	editable  bool
	insertErr error
	setErr    error

	insertCalls int
	setCalls    int
}

func (t *fakeTarget) Role() string    { return t.role }
func (t *fakeTarget) Subrole() string { return t.subrole }
func (t *fakeTarget) Editable() bool  { return t.editable }

func (t *fakeTarget) InsertText(string) error {
	t.insertCalls++
	return t.insertErr
}

func (t *fakeTarget) SetValue(string) error {
	t.setCalls++
	return t.setErr
}

type fakeFocus struct {
	target      *fakeTarget
	appearAfter int // FocusedTarget calls before the target appears
	frontmost   string

	calls         int
	activateCalls int
	activated     string
}

func (f *fakeFocus) FocusedTarget() (Target, bool) {
	f.calls++
	if f.target == nil || f.calls <= f.appearAfter {
		return nil, false
	}
	return f.target, true
}

func (f *fakeFocus) Activate(app string) error {
	f.activateCalls++
	f.activated = app
	return nil
}

func (f *fakeFocus) FrontmostApp() string { return f.frontmost }

type fakeClipboard struct {
	contents string
	readErr  error
	writeErr error

	reads  int
	writes []string

	// swapOnPaste simulates an external clipboard write between the
	// paste keystroke and the restore attempt.
	swapOnPaste string
	swapArmed   bool
}

func (c *fakeClipboard) ReadText() (string, error) {
	c.reads++
	if c.readErr != nil {
		return "", c.readErr
	}
	return c.contents, nil
}

func (c *fakeClipboard) WriteText(text string) (err error) {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, text)
	c.contents = text
	if c.swapOnPaste != "" {
		c.swapArmed = true
	}
	return nil
}

type fakeKeys struct {
	err   error
	clip  *fakeClipboard
	calls int
}

func (k *fakeKeys) Paste() error {
	k.calls++
	if k.clip != nil && k.clip.swapArmed {
		k.clip.contents = k.clip.swapOnPaste
		k.clip.swapArmed = false
	}
	return k.err
}

func newTestEngine(focus Focus, clip Clipboard, keys Keystroker, cfg Config) *Engine {
	e := NewEngine(focus, clip, keys, cfg, nil)
	e.sleep = func(time.Duration) {}
	return e
}

func TestInject_DirectInsertShortCircuits(t *testing.T) {
	target := &fakeTarget{role: "AXTextArea", editable: true}
	clip := &fakeClipboard{contents: "before"}
	keys := &fakeKeys{}
	e := newTestEngine(&fakeFocus{target: target}, clip, keys, Config{})

	res := e.Inject("hello", "", true)

	if res.Disposition != Delivered {
		t.Fatalf("Disposition = %s, want delivered", res.Disposition)
	}
	if len(res.Diagnostics.Chain) != 1 || res.Diagnostics.Chain[0] != StrategyInsert {
		t.Errorf("Chain = %v, want [ax-insert]", res.Diagnostics.Chain)
	}
	if res.Diagnostics.FinalStrategy != StrategyInsert {
		t.Errorf("FinalStrategy = %s", res.Diagnostics.FinalStrategy)
	}
	if target.setCalls != 0 {
		t.Error("set-value attempted after insert succeeded")
	}
	// The accessibility strategies must never touch the clipboard.
	if clip.reads != 0 || len(clip.writes) != 0 || keys.calls != 0 {
		t.Errorf("clipboard touched: reads=%d writes=%v pastes=%d", clip.reads, clip.writes, keys.calls)
	}
}

func TestInject_SetValueAfterInsertFails(t *testing.T) {
	target := &fakeTarget{role: "AXTextField", editable: true, insertErr: errors.New("insert rejected")}
	clip := &fakeClipboard{}
	e := newTestEngine(&fakeFocus{target: target}, clip, &fakeKeys{}, Config{})

	res := e.Inject("hello", "", true)

	if res.Disposition != Delivered {
		t.Fatalf("Disposition = %s, want delivered", res.Disposition)
	}
	if res.Diagnostics.FinalStrategy != StrategySetValue {
		t.Errorf("FinalStrategy = %s, want ax-set-value", res.Diagnostics.FinalStrategy)
	}
	if got := res.Diagnostics.Attempts; len(got) != 2 || got[0].Outcome != OutcomeFailed || got[1].Outcome != OutcomeSuccess {
		t.Errorf("Attempts = %+v", got)
	}
	if clip.reads != 0 || len(clip.writes) != 0 {
		t.Error("clipboard touched by accessibility strategies")
	}
}

func TestInject_FallbackDisabledNoTarget(t *testing.T) {
	cfg := Config{FocusTimeout: 200 * time.Millisecond, PollInterval: 50 * time.Millisecond}
	e := newTestEngine(&fakeFocus{}, &fakeClipboard{}, &fakeKeys{}, cfg)

	res := e.Inject("hello", "", false)

	if res.Disposition != Failed || res.FailureKind != FailFocusTimeout {
		t.Fatalf("got %s/%s, want failed/%s", res.Disposition, res.FailureKind, FailFocusTimeout)
	}
	if res.Diagnostics.FocusWait != cfg.FocusTimeout {
		t.Errorf("FocusWait = %v, want configured timeout %v", res.Diagnostics.FocusWait, cfg.FocusTimeout)
	}
	// Strategy 3 is recorded as explicitly skipped, never silently omitted.
	last := res.Diagnostics.Attempts[len(res.Diagnostics.Attempts)-1]
	if last.Strategy != StrategyClipboard || last.Outcome != OutcomeSkipped || last.Reason == "" {
		t.Errorf("clipboard attempt = %+v, want skipped with reason", last)
	}
}

func TestInject_FallbackDisabledTargetNotEditable(t *testing.T) {
	target := &fakeTarget{role: "AXGroup", insertErr: errors.New("no insert"), editable: false}
	e := newTestEngine(&fakeFocus{target: target}, &fakeClipboard{}, &fakeKeys{}, Config{})

	res := e.Inject("hello", "", false)

	if res.Disposition != Failed || res.FailureKind != FailTargetNotEditable {
		t.Fatalf("got %s/%s, want failed/%s", res.Disposition, res.FailureKind, FailTargetNotEditable)
	}
}

func TestInject_ClipboardFallbackRestores(t *testing.T) {
	clip := &fakeClipboard{contents: "previous"}
	keys := &fakeKeys{}
	e := newTestEngine(&fakeFocus{}, clip, keys, Config{FocusTimeout: 50 * time.Millisecond, PollInterval: 10 * time.Millisecond})

	res := e.Inject("hello", "", true)

	if res.Disposition != Delivered {
		t.Fatalf("Disposition = %s (%s)", res.Disposition, res.Message)
	}
	if keys.calls != 1 {
		t.Errorf("paste keystrokes = %d, want 1", keys.calls)
	}
	if len(clip.writes) != 2 || clip.writes[0] != "hello" || clip.writes[1] != "previous" {
		t.Errorf("writes = %v, want [hello previous]", clip.writes)
	}
}

func TestInject_ClipboardChangedExternallySkipsRestore(t *testing.T) {
	clip := &fakeClipboard{contents: "previous", swapOnPaste: "someone else"}
	e := newTestEngine(&fakeFocus{}, clip, &fakeKeys{clip: clip}, Config{FocusTimeout: 50 * time.Millisecond, PollInterval: 10 * time.Millisecond})

	res := e.Inject("hello", "", true)

	if res.Disposition != DeliveredWithWarning {
		t.Fatalf("Disposition = %s, want delivered-with-warning", res.Disposition)
	}
	if clip.contents != "someone else" {
		t.Errorf("restore clobbered external contents: %q", clip.contents)
	}
}

func TestInject_EmptyTextAndPermission(t *testing.T) {
	clip := &fakeClipboard{}
	denied := Config{AssistiveAccess: func() bool { return false }}

	res := newTestEngine(&fakeFocus{}, clip, &fakeKeys{}, Config{}).Inject("", "", true)
	if res.Disposition != Failed || res.FailureKind != FailEmptyText {
		t.Errorf("empty text: got %s/%s", res.Disposition, res.FailureKind)
	}
	if len(res.Diagnostics.Attempts) != 0 {
		t.Errorf("attempts recorded for empty text: %+v", res.Diagnostics.Attempts)
	}

	res = newTestEngine(&fakeFocus{}, clip, &fakeKeys{}, denied).Inject("hello", "", true)
	if res.Disposition != Failed || res.FailureKind != FailAccessibility {
		t.Errorf("denied permission: got %s/%s", res.Disposition, res.FailureKind)
	}
	if len(res.Diagnostics.Attempts) != 0 {
		t.Errorf("attempts recorded without permission: %+v", res.Diagnostics.Attempts)
	}
}

func TestInject_NilClipboardFailsCleanly(t *testing.T) {
	e := newTestEngine(nil, nil, nil, Config{})

	res := e.Inject("hello", "", true)

	if res.Disposition != Failed || res.FailureKind != FailClipboardWrite {
		t.Fatalf("got %s/%s, want failed/%s", res.Disposition, res.FailureKind, FailClipboardWrite)
	}
	last := res.Diagnostics.Attempts[len(res.Diagnostics.Attempts)-1]
	if last.Strategy != StrategyClipboard || last.Outcome != OutcomeSkipped || last.Reason == "" {
		t.Errorf("clipboard attempt = %+v, want skipped with reason", last)
	}
}

func TestInject_NilKeystrokerFailsBeforeClipboardWrite(t *testing.T) {
	clip := &fakeClipboard{contents: "previous"}
	e := newTestEngine(nil, clip, nil, Config{})

	res := e.Inject("hello", "", true)

	if res.Disposition != Failed || res.FailureKind != FailPasteKeystroke {
		t.Fatalf("got %s/%s, want failed/%s", res.Disposition, res.FailureKind, FailPasteKeystroke)
	}
	if len(clip.writes) != 0 {
		t.Errorf("clipboard written without a way to paste: %v", clip.writes)
	}
}

func TestInject_NoFocusBridgeRecordsZeroWait(t *testing.T) {
	clip := &fakeClipboard{contents: "previous"}
	e := newTestEngine(nil, clip, &fakeKeys{}, Config{})

	res := e.Inject("hello", "", true)

	if res.Disposition != Delivered {
		t.Fatalf("Disposition = %s (%s)", res.Disposition, res.Message)
	}
	if res.Diagnostics.FinalStrategy != StrategyClipboard {
		t.Errorf("FinalStrategy = %s, want clipboard-paste", res.Diagnostics.FinalStrategy)
	}
	// No focus bridge means no polling happened, so no wait is reported.
	if res.Diagnostics.FocusWait != 0 {
		t.Errorf("FocusWait = %v, want 0 without a focus bridge", res.Diagnostics.FocusWait)
	}
}

func TestInject_ActivatesPreferredApp(t *testing.T) {
	focus := &fakeFocus{target: &fakeTarget{role: "AXTextArea"}, appearAfter: 2, frontmost: "com.example.editor"}
	e := newTestEngine(focus, &fakeClipboard{}, &fakeKeys{}, Config{})

	res := e.Inject("hello", "com.example.notes", true)

	if focus.activateCalls != 1 || focus.activated != "com.example.notes" {
		t.Errorf("activate calls = %d app = %q", focus.activateCalls, focus.activated)
	}
	if res.Diagnostics.PreferredApp != "com.example.notes" || res.Diagnostics.FrontmostApp != "com.example.editor" {
		t.Errorf("diagnostics apps = %q/%q", res.Diagnostics.PreferredApp, res.Diagnostics.FrontmostApp)
	}
	if res.Diagnostics.FocusWait <= 0 {
		t.Error("focus wait not recorded")
	}
}
