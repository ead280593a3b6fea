package usage

import (
	"context"
	"time"

	"github.com/goodtune/wifimeter/internal/clock"
	"github.com/goodtune/wifimeter/internal/storage"
	"github.com/rs/zerolog"
)

// maxResetWait caps the scheduler's sleep so reset-day changes made at
// runtime take effect without a daemon restart.
const maxResetWait = time.Hour

// ResetScheduler applies the monthly usage reset at the configured
// day-of-month boundary.
type ResetScheduler struct {
	tracker  *Tracker
	settings storage.SettingsStore
	clock    clock.Clock
	logger   zerolog.Logger
	stopChan chan struct{}
}

// NewResetScheduler creates a monthly reset scheduler.
func NewResetScheduler(tracker *Tracker, settings storage.SettingsStore, clk clock.Clock, logger zerolog.Logger) *ResetScheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &ResetScheduler{
		tracker:  tracker,
		settings: settings,
		clock:    clk,
		logger:   logger.With().Str("component", "reset-scheduler").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start begins the reset scheduler.
func (rs *ResetScheduler) Start() {
	go rs.run()
	rs.logger.Info().Msg("Monthly usage reset scheduler started")
}

// Stop stops the reset scheduler.
func (rs *ResetScheduler) Stop() {
	close(rs.stopChan)
	rs.logger.Info().Msg("Monthly usage reset scheduler stopped")
}

// run is the main scheduler loop.
func (rs *ResetScheduler) run() {
	for {
		waitDuration := rs.nextWait()

		select {
		case <-time.After(waitDuration):
			rs.performReset()
		case <-rs.stopChan:
			return
		}
	}
}

// nextWait computes how long to sleep before the next reset check.
func (rs *ResetScheduler) nextWait() time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := rs.clock.Now()

	resetDay, err := rs.settings.GetResetDay(ctx)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to read reset day, retrying later")
		return maxResetWait
	}

	nextReset := NextResetDate(resetDay, now)
	waitDuration := nextReset.Sub(now)
	if waitDuration > maxResetWait {
		waitDuration = maxResetWait
	}

	rs.logger.Debug().
		Time("next_reset", nextReset).
		Dur("wait_duration", waitDuration).
		Msg("Scheduled next reset check")

	return waitDuration
}

// performReset applies the reset when due.
func (rs *ResetScheduler) performReset() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	applied, err := rs.tracker.CheckReset(ctx)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to apply monthly reset")
		return
	}
	if applied {
		rs.logger.Info().Msg("Monthly usage reset complete")
	}
}
