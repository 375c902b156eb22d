package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/TienVM2004/mai-live/audiocapture"
	"github.com/TienVM2004/mai-live/cache"
	"github.com/TienVM2004/mai-live/config"
	"github.com/TienVM2004/mai-live/internal/display"
	"github.com/TienVM2004/mai-live/internal/types"
	"github.com/TienVM2004/mai-live/langdetect"
	"github.com/TienVM2004/mai-live/session"
)

// Service provides application functionality bound to Wails.
// This struct focuses on orchestration; caption logic lives in the session
// package.
type Service struct {
	cfg   *config.Config
	store *cache.Store

	// UI references - set via Init
	app    *application.App
	window application.Window

	captions SessionAdapter

	// Version info (set by caller)
	version string
}

// New creates a new Service. Call Init() after Wails app is created.
func New(version string) *Service {
	return &Service{version: version}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init initializes the service with app and window references.
// Must be called after Wails application is created.
func (s *Service) Init(app *application.App, window application.Window) {
	s.app = app
	s.window = window

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config, using defaults", "error", err)
		cfg = config.Default()
	}
	s.cfg = cfg

	s.setupArchive()
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	s.captions.Stop()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("close session archive", "error", err)
		}
	}
}

func (s *Service) setupArchive() {
	dataDir, err := config.DataDir()
	if err != nil {
		slog.Error("get data dir for session archive", "error", err)
		return
	}

	archivePath := filepath.Join(dataDir, "sessions")
	store, err := cache.New(archivePath)
	if err != nil {
		slog.Error("init session archive", "error", err)
		return
	}
	s.store = store
	slog.Info("session archive initialized", "path", archivePath)
}

// emit is a safe wrapper around app.Event.Emit
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}

// StartCaptioning begins a live caption session with the saved settings.
func (s *Service) StartCaptioning() error {
	svc := s.buildSession()
	if err := s.captions.Start(context.Background(), svc); err != nil {
		return fmt.Errorf("start caption session: %w", err)
	}
	return nil
}

func (s *Service) buildSession() *session.Service {
	capture := audiocapture.New(audiocapture.DefaultConfig())

	var archiver session.Archiver
	if s.store != nil {
		archiver = s.store
	}

	svc := session.NewService(session.ServiceConfig{
		Client: session.ClientConfig{
			Host:   s.cfg.ServerHost,
			Port:   s.cfg.ServerPort,
			Name:   s.cfg.Username,
			Model:  s.cfg.Model,
			UseVAD: s.cfg.UseVAD,
		},
		DeviceID: s.cfg.DeviceID,
	}, capture, archiver, session.Observers{
		OnStatus: func(update types.StatusUpdate) {
			s.emit(EventCaptionStatus, update)
		},
		OnSegments: func(segments []types.Segment) {
			s.emit(EventCaptionSegments, session.Threads(segments))
		},
		OnLanguageDetected: func(det types.LanguageDetection) {
			s.emit(EventCaptionLanguage, det)
		},
		OnLanguages: func(codes []string) {
			s.emit(EventCaptionLanguages, display.Languages(codes))
		},
		OnSummary: func(summary string) {
			s.emit(EventCaptionSummary, summary)
		},
	})
	svc.SetDetector(langdetect.New(s.cfg.DisplayLanguages))
	return svc
}

// StopCaptioning ends the caption session.
func (s *Service) StopCaptioning() {
	s.captions.Stop()
}

// RetryConnection reconnects after a terminal connection error.
func (s *Service) RetryConnection() error {
	return s.captions.Retry(context.Background())
}

// GetSessionStatus returns the current caption session status.
func (s *Service) GetSessionStatus() types.SessionStatus {
	return s.captions.Status()
}

// GetThreads returns the transcript grouped into speaker runs.
func (s *Service) GetThreads() []types.Thread {
	return s.captions.Threads()
}

// GetSegments returns the current ordered transcript.
func (s *Service) GetSegments() []types.Segment {
	return s.captions.Segments()
}

// GetSummary returns the latest meeting summary.
func (s *Service) GetSummary() string {
	return s.captions.Summary()
}

// GetConfig returns the saved settings.
func (s *Service) GetConfig() *config.Config {
	return s.cfg
}

// SetConfig replaces and persists the settings. A running session keeps its
// original settings until restarted.
func (s *Service) SetConfig(cfg config.Config) error {
	s.cfg = &cfg
	return s.cfg.Save()
}

// GetDisplayLanguages returns display data for the configured languages.
func (s *Service) GetDisplayLanguages() []display.Info {
	return display.Languages(s.cfg.DisplayLanguages)
}

// GetRecentSessions returns up to n archived sessions, newest first.
func (s *Service) GetRecentSessions(n int) ([]cache.Archive, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Recent(n)
}

// GetArchivedSession returns one archived session by uid.
func (s *Service) GetArchivedSession(uid string) (cache.Archive, error) {
	if s.store == nil {
		return cache.Archive{}, cache.ErrNotFound
	}
	return s.store.Get(uid)
}
