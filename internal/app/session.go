package app

import (
	"context"
	"errors"
	"sync"

	"github.com/TienVM2004/mai-live/internal/types"
	"github.com/TienVM2004/mai-live/session"
)

// SessionAdapter manages the caption session with proper synchronization.
// A new session.Service is built per session; the adapter owns its lifetime.
type SessionAdapter struct {
	mu      sync.RWMutex
	service *session.Service
	cancel  context.CancelFunc
}

// Start begins a caption session. Stops any existing session first.
func (sa *SessionAdapter) Start(ctx context.Context, service *session.Service) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if sa.service != nil {
		sa.service.Stop()
		sa.service = nil
	}
	if sa.cancel != nil {
		sa.cancel()
		sa.cancel = nil
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := service.Start(ctx); err != nil {
		cancel()
		return err
	}

	sa.service = service
	sa.cancel = cancel
	return nil
}

// Stop ends the caption session.
func (sa *SessionAdapter) Stop() {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if sa.cancel != nil {
		sa.cancel()
		sa.cancel = nil
	}
	if sa.service == nil {
		return
	}
	sa.service.Stop()
	sa.service = nil
}

// Retry reconnects a session stuck in a terminal connection error.
func (sa *SessionAdapter) Retry(ctx context.Context) error {
	sa.mu.RLock()
	svc := sa.service
	sa.mu.RUnlock()

	if svc == nil {
		return errors.New("no active caption session")
	}
	return svc.Retry(ctx)
}

// Status returns the current session status, safe for concurrent access.
func (sa *SessionAdapter) Status() types.SessionStatus {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	if sa.service == nil {
		return types.SessionStatus{Connection: types.StatusDisconnected}
	}
	return sa.service.Status()
}

// Threads returns the transcript grouped into speaker runs.
func (sa *SessionAdapter) Threads() []types.Thread {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	if sa.service == nil {
		return nil
	}
	return sa.service.Threads()
}

// Segments returns the current ordered transcript.
func (sa *SessionAdapter) Segments() []types.Segment {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	if sa.service == nil {
		return nil
	}
	return sa.service.Segments()
}

// Summary returns the latest meeting summary.
func (sa *SessionAdapter) Summary() string {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	if sa.service == nil {
		return ""
	}
	return sa.service.Summary()
}
