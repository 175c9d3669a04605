// Package types provides shared type definitions for the application.
package types

// StatusView is the pipeline state as presented to the user interface.
type StatusView struct {
	Phase      string `json:"phase"`
	Status     string `json:"status"`
	Backend    string `json:"backend,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	LiveText   string `json:"live_text,omitempty"`
	StableText string `json:"stable_text,omitempty"`
	FinalText  string `json:"final_text,omitempty"`
	Source     string `json:"source,omitempty"`
	Failure    string `json:"failure,omitempty"`
}

// CredentialView is a credential with the API key redacted for display.
type CredentialView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
	KeyHint string `json:"key_hint"` // last four characters of the key
}

// LatencyView is one latency dimension rendered for display.
type LatencyView struct {
	Key       string `json:"key"`
	Dimension string `json:"dimension"`
	Count     int    `json:"count"`
	P50MS     int64  `json:"p50_ms"`
	P95MS     int64  `json:"p95_ms"`
}
