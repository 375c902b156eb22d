package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/TienVM2004/mai-live/cache"
	"github.com/TienVM2004/mai-live/internal/types"
)

var (
	// ErrSessionActive is returned when Start is called twice without Stop.
	ErrSessionActive = errors.New("session: already active")
	// ErrAudioUnavailable is returned when the capture device cannot be
	// acquired.
	ErrAudioUnavailable = errors.New("session: audio device unavailable")
)

// FrameSource produces fixed-size float32 audio frames. *audiocapture.Capture
// satisfies it; tests substitute a fake.
type FrameSource interface {
	Initialize(deviceID string) bool
	Start() error
	Stop()
	Cleanup()
	OnFrame(fn func(samples []float32))
	SampleRate() int
}

// Archiver persists completed sessions. *cache.Store satisfies it.
type Archiver interface {
	Put(archive cache.Archive) error
}

// Observers are the callbacks a Service drives. Nil members are skipped. All
// callbacks run synchronously on the transport read goroutine, so they must
// not block.
type Observers struct {
	OnStatus           func(types.StatusUpdate)
	OnSegments         func(segments []types.Segment)
	OnLanguageDetected func(types.LanguageDetection)
	OnLanguages        func(codes []string)
	OnSummary          func(summary string)
}

// ServiceConfig assembles a caption session.
type ServiceConfig struct {
	Client   ClientConfig
	DeviceID string
}

// Service coordinates the capture pipeline, the transport channel and the
// reconciliation engine for one caption session at a time.
type Service struct {
	cfg     ServiceConfig
	capture FrameSource
	client  *Client
	engine  *Engine
	archive Archiver
	obs     Observers

	mu        sync.Mutex
	active    bool
	capturing bool
	startedAt time.Time
}

// NewService wires a session service. archive may be nil to disable session
// history.
func NewService(cfg ServiceConfig, capture FrameSource, archive Archiver, obs Observers) *Service {
	s := &Service{
		cfg:     cfg,
		capture: capture,
		client:  NewClient(cfg.Client),
		engine:  NewEngine(),
		archive: archive,
		obs:     obs,
	}
	s.client.OnStatus(s.handleStatus)
	s.client.OnEvent(s.handleEvent)
	s.capture.OnFrame(func(samples []float32) {
		// Real-time stream: frames that cannot be delivered are dropped,
		// never buffered.
		s.client.SendAudio(samples)
	})
	return s
}

// SetDetector installs the local language-detection fallback on the engine.
func (s *Service) SetDetector(d LanguageDetector) {
	s.engine.SetDetector(d)
}

// Start acquires the audio device and opens the transport channel. A dial
// failure does not fail Start; the retry policy runs and status updates are
// reported through the observer.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.active = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.engine.Reset()

	if !s.capture.Initialize(s.cfg.DeviceID) {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		return ErrAudioUnavailable
	}

	slog.Info("caption session starting",
		"host", s.cfg.Client.Host,
		"port", s.cfg.Client.Port,
		"model", s.cfg.Client.Model,
		"sampleRate", s.capture.SampleRate())

	if err := s.client.Connect(ctx); err != nil {
		slog.Warn("initial connect failed, retry scheduled", "error", err)
	}
	return nil
}

// Retry reopens the channel after a terminal error, resetting the retry
// budget. No-op unless a session is active; a channel that is already open
// or mid-dial is left alone so a stray retry cannot orphan its socket.
func (s *Service) Retry(ctx context.Context) error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return errors.New("session: not active")
	}
	switch s.client.Status() {
	case types.StatusConnected, types.StatusConnecting, types.StatusWaiting:
		return nil
	}
	return s.client.Connect(ctx)
}

// Stop ends the session: capture torn down, channel closed, the finalized
// transcript archived, per-session state cleared. Safe to call when idle.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.capturing = false
	startedAt := s.startedAt
	s.mu.Unlock()

	s.stopCapture()
	s.capture.Cleanup()

	uid := s.client.UID()
	s.client.Disconnect()

	if s.archive != nil {
		segments := s.engine.Snapshot()
		if len(segments) > 0 {
			err := s.archive.Put(cache.Archive{
				UID:       uid,
				StartedAt: startedAt,
				Segments:  segments,
				Summary:   s.engine.Summary(),
			})
			if err != nil {
				slog.Warn("session archive failed", "uid", uid, "error", err)
			}
		}
	}

	s.engine.Reset()
	slog.Info("caption session stopped", "uid", uid)
}

// Status reports the session to the UI.
func (s *Service) Status() types.SessionStatus {
	s.mu.Lock()
	active := s.active
	startedAt := s.startedAt
	s.mu.Unlock()

	status := types.SessionStatus{
		Active:       active,
		Connection:   s.client.Status(),
		SegmentCount: s.engine.Len(),
		Server:       s.cfg.Client.Host,
		Model:        s.cfg.Client.Model,
	}
	if active {
		status.Duration = int64(time.Since(startedAt).Seconds())
	}
	return status
}

// Segments returns the current ordered transcript.
func (s *Service) Segments() []types.Segment {
	return s.engine.Snapshot()
}

// Threads returns the transcript grouped into speaker runs.
func (s *Service) Threads() []types.Thread {
	return Threads(s.engine.Snapshot())
}

// Summary returns the latest meeting summary.
func (s *Service) Summary() string {
	return s.engine.Summary()
}

// handleStatus forwards transitions and keeps capture bound to the connected
// state: frames flow only while the channel is open.
func (s *Service) handleStatus(update types.StatusUpdate) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if active {
		if update.Status == types.StatusConnected {
			s.startCapture()
		} else {
			s.stopCapture()
		}
	}

	if s.obs.OnStatus != nil {
		s.obs.OnStatus(update)
	}
}

func (s *Service) startCapture() {
	s.mu.Lock()
	if s.capturing {
		s.mu.Unlock()
		return
	}
	s.capturing = true
	s.mu.Unlock()

	if err := s.capture.Start(); err != nil {
		slog.Error("audio capture failed to start", "error", err)
		s.mu.Lock()
		s.capturing = false
		s.mu.Unlock()
	}
}

func (s *Service) stopCapture() {
	s.mu.Lock()
	if !s.capturing {
		s.mu.Unlock()
		return
	}
	s.capturing = false
	s.mu.Unlock()

	s.capture.Stop()
}

func (s *Service) handleEvent(ev ServerEvent) {
	switch ev := ev.(type) {
	case TranscriptEvent:
		s.engine.HandleTranscript(ev)
		if s.obs.OnSegments != nil {
			s.obs.OnSegments(s.engine.Snapshot())
		}
		if ev.HasLanguages && s.obs.OnLanguages != nil {
			s.obs.OnLanguages(ev.AvailableLanguages)
		}
	case LanguageEvent:
		slog.Info("language detected", "language", ev.Language, "probability", ev.Probability)
		if s.obs.OnLanguageDetected != nil {
			s.obs.OnLanguageDetected(types.LanguageDetection{
				Language:    ev.Language,
				Probability: ev.Probability,
			})
		}
	case SummaryEvent:
		s.engine.SetSummary(ev.Summary)
		if s.obs.OnSummary != nil {
			s.obs.OnSummary(ev.Summary)
		}
	}
}
