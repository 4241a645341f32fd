package services

import (
	"context"
	"log"
	"time"
)

const reaperPollInterval = 5 * time.Minute

// StaleSweeper is the store surface the reaper needs.
type StaleSweeper interface {
	SweepStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SessionReaper periodically demotes sessions that were started but never
// ended to abandoned. It only ever touches in_progress rows, so it is safe
// to run alongside active session closes.
type SessionReaper struct {
	sessions   StaleSweeper
	staleAfter time.Duration
	stopChan   chan struct{}
}

func NewSessionReaper(sessions StaleSweeper, staleAfter time.Duration) *SessionReaper {
	return &SessionReaper{
		sessions:   sessions,
		staleAfter: staleAfter,
		stopChan:   make(chan struct{}),
	}
}

func (r *SessionReaper) Start() {
	go r.loop()
	log.Printf("Session reaper started (stale after %s)", r.staleAfter)
}

func (r *SessionReaper) Stop() {
	select {
	case <-r.stopChan:
		return
	default:
		close(r.stopChan)
	}
}

func (r *SessionReaper) loop() {
	// Run on startup as well as by interval.
	r.sweep()

	ticker := time.NewTicker(reaperPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *SessionReaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	swept, err := r.sessions.SweepStale(ctx, r.staleAfter)
	if err != nil {
		log.Printf("session reaper: sweep failed: %v", err)
		return
	}
	if swept > 0 {
		log.Printf("session reaper: abandoned %d stale sessions", swept)
	}
}
