// Package app wires configuration, the transcription backend, refinement,
// storage and injection into one dictation service the CLI drives.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.voxtype.dev/voxtype/clipboard"
	"go.voxtype.dev/voxtype/config"
	"go.voxtype.dev/voxtype/dictation"
	"go.voxtype.dev/voxtype/inject"
	"go.voxtype.dev/voxtype/internal/types"
	"go.voxtype.dev/voxtype/refine"
	"go.voxtype.dev/voxtype/session"
	"go.voxtype.dev/voxtype/store"
	"go.voxtype.dev/voxtype/stt"
)

// Service owns the assembled pipeline. Construction is split from wiring so
// a caller can register a snapshot listener before anything starts.
type Service struct {
	cfg     *config.Config
	store   *store.Store
	backend stt.Backend
	dict    *dictation.Service
	log     *slog.Logger
	version string

	onSnapshot func(types.StatusView)
}

// New creates an unwired service. Call Init before use.
func New(version string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{version: version, log: log}
}

// Version returns the application version.
func (s *Service) Version() string { return s.version }

// OnSnapshot registers the listener that receives every pipeline state
// change. Must be called before Init.
func (s *Service) OnSnapshot(fn func(types.StatusView)) {
	s.onSnapshot = fn
}

// Init loads configuration and assembles the pipeline.
func (s *Service) Init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s.cfg = cfg

	if err := s.setupStore(); err != nil {
		// Transcript persistence is optional; the pipeline runs without it.
		s.log.Warn("artifact store unavailable", "error", err)
	}

	backend, err := s.buildBackend()
	if err != nil {
		return err
	}
	s.backend = backend

	dict, err := dictation.NewService(s.dictationConfig(), dictation.Deps{
		Backend:   backend,
		Refiner:   s.buildRefiner(),
		Injector:  s.buildInjector(),
		Store:     storeOrNil(s.store),
		Clipboard: clipboard.System{},
		Frontmost: inject.NoFocus{},
		Sink:      s.sink(),
		Logger:    s.log,
	})
	if err != nil {
		return err
	}
	s.dict = dict

	s.log.Info("pipeline ready",
		"backend", backend.Name(),
		"streaming", stt.Streaming(backend),
		"refinement", cfg.Refinement.Enabled,
		"auto_inject", cfg.Injection.AutoInject)
	return nil
}

// Shutdown releases held resources.
func (s *Service) Shutdown() {
	if s.dict != nil {
		if snap := s.dict.Snapshot(); !snap.Phase.Terminal() && snap.Phase != session.PhaseIdle {
			_ = s.dict.StopRecording()
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Error("close store", "error", err)
		}
	}
}

// StartRecording begins a dictation run.
func (s *Service) StartRecording() error { return s.dict.StartRecording() }

// StopRecording ends the active capture and lets the pipeline run to a
// terminal phase.
func (s *Service) StopRecording() error { return s.dict.StopRecording() }

// Reset returns a finished pipeline to idle.
func (s *Service) Reset() error { return s.dict.Reset() }

// Status returns the current pipeline state for display.
func (s *Service) Status() types.StatusView {
	return statusView(s.dict.Snapshot())
}

// Latency returns the trailing latency percentiles for display.
func (s *Service) Latency() []types.LatencyView {
	var views []types.LatencyView
	for _, sum := range s.dict.Latency() {
		for dim, st := range sum.Dimensions {
			views = append(views, types.LatencyView{
				Key:       sum.Key,
				Dimension: string(dim),
				Count:     st.Count,
				P50MS:     st.P50.Milliseconds(),
				P95MS:     st.P95.Milliseconds(),
			})
		}
	}
	return views
}

// Credentials returns the configured credentials with keys redacted.
func (s *Service) Credentials() []types.CredentialView {
	views := make([]types.CredentialView, 0, len(s.cfg.Credentials))
	for _, cred := range s.cfg.Credentials {
		views = append(views, types.CredentialView{
			ID:      cred.ID,
			Name:    cred.Name,
			Type:    cred.Type,
			BaseURL: cred.BaseURL,
			Model:   cred.Model,
			KeyHint: keyHint(cred.APIKey),
		})
	}
	return views
}

// AddCredential stores a new credential.
func (s *Service) AddCredential(cred config.Credential) error {
	return s.cfg.AddCredential(cred)
}

// RemoveCredential removes a credential unless refinement references it.
func (s *Service) RemoveCredential(id string) error {
	return s.cfg.RemoveCredential(id)
}

func (s *Service) setupStore() error {
	dir := s.cfg.StoreDir
	if dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(configDir, "voxtype", "store")
	}
	st, err := store.Open(store.DefaultOptions(dir))
	if err != nil {
		return err
	}
	s.store = st
	s.log.Info("store opened", "path", dir)
	return nil
}

func (s *Service) buildBackend() (stt.Backend, error) {
	opts := stt.Options{Language: s.cfg.Language}
	if cred := s.cfg.BackendCredential(); cred != nil {
		opts.APIKey = cred.APIKey
		opts.Model = cred.Model
	}
	backend, err := stt.New(s.cfg.Backend, opts)
	if err != nil {
		return nil, fmt.Errorf("build backend: %w", err)
	}
	return backend, nil
}

func (s *Service) buildRefiner() dictation.Refiner {
	if !s.cfg.Refinement.Enabled {
		return nil
	}
	cred := s.cfg.RefinementCredential()
	if cred == nil {
		s.log.Warn("refinement enabled but no credential configured")
		return nil
	}
	completer := refine.NewCompleter(cred.Type, cred.APIKey, cred.BaseURL, cred.Model, refine.CompleterOptions{})
	return refine.NewRefiner(refine.Config{
		Enabled:  true,
		Provider: cred.Type,
		Timeout:  time.Duration(s.cfg.Refinement.TimeoutMS) * time.Millisecond,
	}, completer, s.log)
}

func (s *Service) buildInjector() dictation.Injector {
	return inject.NewEngine(inject.NoFocus{}, clipboard.System{}, inject.SystemKeystroker{}, inject.Config{
		FocusTimeout: time.Duration(s.cfg.Injection.FocusTimeoutMS) * time.Millisecond,
		PollInterval: time.Duration(s.cfg.Injection.FocusPollMS) * time.Millisecond,
	}, s.log)
}

func (s *Service) dictationConfig() dictation.Config {
	provider := ""
	if cred := s.cfg.RefinementCredential(); cred != nil {
		provider = cred.Type
	}
	return dictation.Config{
		HotkeyMode:            s.cfg.HotkeyMode,
		AutoInject:            s.cfg.Injection.AutoInject,
		AllowCommandVFallback: s.cfg.Injection.AllowCommandVFallback,
		CopyToClipboard:       s.cfg.Injection.CopyToClipboard,
		PreferredApp:          s.cfg.Injection.PreferredApp,
		RefinementEnabled:     s.cfg.Refinement.Enabled,
		RefinementProvider:    provider,
		MinCaptureDuration:    time.Duration(s.cfg.Capture.MinDurationMS) * time.Millisecond,
		FinalizeTimeout:       time.Duration(s.cfg.Capture.FinalizeTimeoutMS) * time.Millisecond,
		LatencyWindow:         s.cfg.Latency.Window,
	}
}

func (s *Service) sink() dictation.SnapshotSink {
	if s.onSnapshot == nil {
		return nil
	}
	fn := s.onSnapshot
	return dictation.SinkFunc(func(snap session.Snapshot) {
		fn(statusView(snap))
	})
}

func statusView(snap session.Snapshot) types.StatusView {
	return types.StatusView{
		Phase:      string(snap.Phase),
		Status:     snap.Status,
		Backend:    snap.Backend,
		RunID:      snap.RunID,
		LiveText:   snap.LiveText,
		StableText: snap.StableText,
		FinalText:  snap.FinalText,
		Source:     string(snap.Source),
		Failure:    snap.Failure,
	}
}

// storeOrNil avoids handing the service a typed-nil interface value.
func storeOrNil(st *store.Store) dictation.Store {
	if st == nil {
		return nil
	}
	return st
}

func keyHint(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "…" + key[len(key)-4:]
}
