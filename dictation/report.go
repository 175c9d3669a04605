package dictation

import (
	"fmt"
	"strings"
	"time"

	"go.voxtype.dev/voxtype/inject"
	"go.voxtype.dev/voxtype/session"
)

// failureReport renders the failure-context artifact. The key lines and
// their order are a stability contract for downstream debugging tools:
// every field is always present, empty values render as "-".
func (s *Service) failureReport(snap session.Snapshot, reason string, diag *inject.Diagnostics) string {
	var b strings.Builder

	line := func(key, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "%s: %s\n", key, value)
	}

	line("run_id", snap.RunID)
	line("timestamp", s.now().UTC().Format(time.RFC3339))
	line("backend", snap.Backend)
	line("phase", string(snap.Phase))
	line("last_event", snap.LastEvent)
	line("reason", reason)
	line("hotkey_mode", s.cfg.HotkeyMode)
	line("auto_inject_enabled", fmt.Sprintf("%t", s.cfg.AutoInject))
	line("allow_command_v_fallback", fmt.Sprintf("%t", s.cfg.AllowCommandVFallback))
	line("mic_permission_granted", fmt.Sprintf("%t", s.perms.MicrophoneGranted()))
	line("accessibility_permission_granted", fmt.Sprintf("%t", s.perms.AccessibilityGranted()))

	if diag == nil {
		line("injection_chain", "")
		line("injection_attempts", "")
		line("injection_final_strategy", "")
		line("injection_focused_role", "")
		line("injection_focused_subrole", "")
		line("injection_focus_wait_ms", "0")
		line("injection_preferred_app", "")
		line("injection_frontmost_app", "")
	} else {
		line("injection_chain", joinStrategies(diag.Chain))
		line("injection_attempts", joinAttempts(diag.Attempts))
		line("injection_final_strategy", string(diag.FinalStrategy))
		line("injection_focused_role", diag.FocusedRole)
		line("injection_focused_subrole", diag.FocusedSubrole)
		line("injection_focus_wait_ms", fmt.Sprintf("%d", diag.FocusWait.Milliseconds()))
		line("injection_preferred_app", diag.PreferredApp)
		line("injection_frontmost_app", diag.FrontmostApp)
	}

	b.WriteString("--- partial transcript ---\n")
	partial := snap.StableText
	if snap.LiveText != "" {
		partial = snap.LiveText
	}
	if snap.FinalText != "" {
		partial = snap.FinalText
	}
	b.WriteString(partial)
	b.WriteString("\n")

	return b.String()
}

func joinStrategies(chain []inject.Strategy) string {
	parts := make([]string, len(chain))
	for i, st := range chain {
		parts[i] = string(st)
	}
	return strings.Join(parts, ",")
}

func joinAttempts(attempts []inject.Attempt) string {
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		part := fmt.Sprintf("%s=%s", a.Strategy, a.Outcome)
		if a.Reason != "" {
			part += "(" + a.Reason + ")"
		}
		parts[i] = part
	}
	return strings.Join(parts, ",")
}
