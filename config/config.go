// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
)

const (
	appName        = "voxtype"
	configFileName = "config.json"

	// currentVersion is bumped whenever a migration is added.
	currentVersion = 2
)

// Backend names accepted in the config file.
var knownBackends = []string{"whisper", "realtime"}

// Credential identifies one API endpoint and key.
type Credential struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // "openai", "openai-compatible", "claude", "gemini"
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model,omitempty"`
}

// Refinement controls the LLM cleanup pass.
type Refinement struct {
	Enabled      bool   `json:"enabled"`
	CredentialID string `json:"credential_id,omitempty"`
	TimeoutMS    int    `json:"timeout_ms,omitempty"`
}

// Injection controls transcript delivery.
type Injection struct {
	AutoInject            bool   `json:"auto_inject_enabled"`
	AllowCommandVFallback bool   `json:"allow_command_v_fallback"`
	CopyToClipboard       bool   `json:"copy_to_clipboard"`
	PreferredApp          string `json:"preferred_app,omitempty"`
	FocusTimeoutMS        int    `json:"focus_timeout_ms,omitempty"`
	FocusPollMS           int    `json:"focus_poll_ms,omitempty"`
}

// Capture controls the recording session.
type Capture struct {
	MinDurationMS     int `json:"min_duration_ms,omitempty"`
	FinalizeTimeoutMS int `json:"finalize_timeout_ms,omitempty"`
}

// Latency controls the percentile aggregator.
type Latency struct {
	Window int `json:"window,omitempty"`
}

// Config represents the application configuration.
type Config struct {
	Version   int    `json:"version"`
	InstallID string `json:"install_id,omitempty"`

	Backend    string `json:"backend"`
	Language   string `json:"language,omitempty"`
	HotkeyMode string `json:"hotkey_mode"` // "hold" or "toggle"
	StoreDir   string `json:"store_dir,omitempty"`

	Credentials []Credential `json:"credentials,omitempty"`
	Refinement  Refinement   `json:"refinement"`
	Injection   Injection    `json:"injection"`
	Capture     Capture      `json:"capture"`
	Latency     Latency      `json:"latency"`

	// Legacy fields, kept for migration from version 1 files.
	LegacyProvider string `json:"provider,omitempty"`
	LegacyAPIKey   string `json:"openai_api_key,omitempty"`
	LegacyModel    string `json:"model,omitempty"`

	path string
}

// Load loads configuration from the default config file, creating
// defaults when none exists. A migration pass runs on every load.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			cfg.path = path
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.path = path

	if err := cfg.migrate(); err != nil {
		return nil, fmt.Errorf("migrate config: %w", err)
	}
	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		var err error
		if path, err = configPath(); err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// GetCredential returns a credential by ID, or nil.
func (c *Config) GetCredential(id string) *Credential {
	for i := range c.Credentials {
		if c.Credentials[i].ID == id {
			return &c.Credentials[i]
		}
	}
	return nil
}

// RefinementCredential returns the credential the refinement pass uses,
// or nil when none is configured.
func (c *Config) RefinementCredential() *Credential {
	if c.Refinement.CredentialID == "" {
		return nil
	}
	return c.GetCredential(c.Refinement.CredentialID)
}

// BackendCredential returns the first openai-typed credential, which
// both speech backends authenticate with.
func (c *Config) BackendCredential() *Credential {
	for i := range c.Credentials {
		if c.Credentials[i].Type == "openai" {
			return &c.Credentials[i]
		}
	}
	return nil
}

// AddCredential validates and appends a credential.
func (c *Config) AddCredential(cred Credential) error {
	if cred.Name == "" {
		return fmt.Errorf("credential name required")
	}
	if cred.APIKey == "" {
		return fmt.Errorf("api key required")
	}
	if cred.Type == "openai-compatible" && cred.BaseURL == "" {
		return fmt.Errorf("base url required for openai-compatible")
	}
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	c.Credentials = append(c.Credentials, cred)
	return c.Save()
}

// RemoveCredential removes a credential unless the refinement pass
// still references it.
func (c *Config) RemoveCredential(id string) error {
	if c.Refinement.CredentialID == id {
		return fmt.Errorf("credential in use by refinement")
	}
	idx := slices.IndexFunc(c.Credentials, func(x Credential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}
	c.Credentials = slices.Delete(c.Credentials, idx, idx+1)
	return c.Save()
}

// migrate brings older config files forward and fills defaults. It runs
// on every load; a current file passes through unchanged.
func (c *Config) migrate() error {
	changed := c.Version < currentVersion

	// v1 kept a single flat provider and key. Fold them into the
	// credential list and point refinement at it.
	if c.LegacyAPIKey != "" && len(c.Credentials) == 0 {
		cred := Credential{
			ID:     uuid.NewString(),
			Name:   "Migrated API",
			Type:   "openai",
			APIKey: c.LegacyAPIKey,
			Model:  c.LegacyModel,
		}
		if c.LegacyProvider != "" {
			cred.Type = c.LegacyProvider
		}
		c.Credentials = append(c.Credentials, cred)
		if c.Refinement.CredentialID == "" {
			c.Refinement.CredentialID = cred.ID
		}
	}
	c.LegacyProvider = ""
	c.LegacyAPIKey = ""
	c.LegacyModel = ""

	// Unknown credential types are dropped rather than carried forward.
	c.Credentials = slices.DeleteFunc(c.Credentials, func(cred Credential) bool {
		switch cred.Type {
		case "openai", "openai-compatible", "claude", "gemini":
			return false
		}
		return true
	})
	if c.RefinementCredential() == nil {
		c.Refinement.CredentialID = ""
	}

	c.applyDefaults()

	if changed {
		c.Version = currentVersion
		return c.Save()
	}
	return nil
}

func (c *Config) applyDefaults() {
	if !slices.Contains(knownBackends, c.Backend) {
		c.Backend = "whisper"
	}
	if c.HotkeyMode != "hold" && c.HotkeyMode != "toggle" {
		c.HotkeyMode = "hold"
	}
	if c.InstallID == "" {
		c.InstallID = uuid.NewString()
	}
	if c.Capture.MinDurationMS <= 0 {
		c.Capture.MinDurationMS = 200
	}
	if c.Capture.FinalizeTimeoutMS <= 0 {
		c.Capture.FinalizeTimeoutMS = 10000
	}
	if c.Injection.FocusTimeoutMS <= 0 {
		c.Injection.FocusTimeoutMS = 900
	}
	if c.Injection.FocusPollMS <= 0 {
		c.Injection.FocusPollMS = 50
	}
	if c.Refinement.TimeoutMS <= 0 {
		c.Refinement.TimeoutMS = 15000
	}
	if c.Latency.Window <= 0 {
		c.Latency.Window = 50
	}
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

func defaultConfig() *Config {
	cfg := &Config{
		Version: currentVersion,
		Backend: "whisper",
		Injection: Injection{
			AutoInject:            true,
			AllowCommandVFallback: true,
			CopyToClipboard:       false,
		},
	}
	cfg.applyDefaults()
	return cfg
}
