package scheduler

import (
	"context"
	"fmt"
	"time"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

type Completer interface {
	DueForCompletion(ctx context.Context, limit int) ([]string, error)
	CompleteBooking(ctx context.Context, bookingID string) (*models.Booking, error)
}

// CompletionSweeper marks confirmed bookings whose journey day has passed as
// completed. Each booking goes through the normal state machine, so a booking
// cancelled in the meantime is skipped.
type CompletionSweeper struct {
	Bookings  Completer
	Logger    *logger.Logger
	Interval  time.Duration
	BatchSize int
}

func NewCompletionSweeper(b Completer, interval time.Duration, batch int, log *logger.Logger) *CompletionSweeper {
	if log == nil {
		log = logger.Discard()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	return &CompletionSweeper{Bookings: b, Logger: log, Interval: interval, BatchSize: batch}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *CompletionSweeper) Run(ctx context.Context) {
	s.Logger.Info("SCHEDULER", fmt.Sprintf("Completion sweeper started, every %s", s.Interval))
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.Logger.Error("SCHEDULER", fmt.Sprintf("Completion sweep failed: %v", err))
		}
		select {
		case <-ctx.Done():
			s.Logger.Info("SCHEDULER", "Completion sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce completes up to one batch of due bookings and reports how many moved.
func (s *CompletionSweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.Bookings.DueForCompletion(ctx, s.BatchSize)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.Bookings.CompleteBooking(ctx, id); err != nil {
			if apperr.IsIllegalState(err) || apperr.IsNotFound(err) {
				s.Logger.Debug("SCHEDULER", fmt.Sprintf("Skipping %s: %v", id, err))
				continue
			}
			s.Logger.Warn("SCHEDULER", fmt.Sprintf("Could not complete %s: %v", id, err))
			continue
		}
		done++
	}
	if done > 0 {
		s.Logger.Info("SCHEDULER", fmt.Sprintf("Completed %d booking(s)", done))
	}
	return done, nil
}
