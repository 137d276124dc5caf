// Package worker runs the background maintenance loops.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/citasalud/agenda/internal/scheduling"
)

// Sweeper periodically drains the waiting queue and, once per day,
// redistributes stranded quota and resyncs window counters.
type Sweeper struct {
	Queue     *scheduling.AssignmentQueue
	Redist    *scheduling.Redistributor
	Ledger    *scheduling.Ledger
	Cal       scheduling.Calendar
	Interval  time.Duration
	BatchSize int
	Log       zerolog.Logger
}

// Run blocks until ctx is cancelled.  Each tick processes one queue
// batch; the first tick of a new day also runs the daily maintenance
// pass beforehand, so freed-up quota is available to the sweep that
// follows.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Interval <= 0 {
		s.Log.Info().Msg("sweeper: disabled")
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	var lastMaintenance time.Time
	for {
		select {
		case <-ctx.Done():
			s.Log.Info().Msg("sweeper: stopping")
			return
		case <-ticker.C:
		}

		today := s.Cal.Today()
		if !scheduling.SameDay(lastMaintenance, today) {
			s.runDailyMaintenance(ctx)
			lastMaintenance = today
		}

		result, err := s.Queue.ProcessQueue(ctx, s.BatchSize)
		if err != nil {
			s.Log.Error().Err(err).Msg("sweeper: queue sweep failed")
			continue
		}
		if result.Processed > 0 {
			s.Log.Info().Int("processed", result.Processed).Int("assigned", result.Assigned).
				Int("errors", len(result.Errors)).Msg("sweeper: queue sweep done")
		}
	}
}

func (s *Sweeper) runDailyMaintenance(ctx context.Context) {
	bulk, err := s.Redist.RedistributeAll(ctx, nil)
	if err != nil {
		s.Log.Error().Err(err).Msg("sweeper: bulk redistribution failed")
	} else if bulk.TotalRedistributed > 0 {
		s.Log.Info().Int("windows", bulk.TotalWindows).
			Int("redistributed", bulk.TotalRedistributed).
			Msg("sweeper: bulk redistribution done")
	}

	synced, failed, err := s.Ledger.ResyncAll(ctx)
	if err != nil {
		s.Log.Error().Err(err).Msg("sweeper: bulk resync failed")
	} else {
		s.Log.Info().Int("synced", synced).Int("failed", failed).Msg("sweeper: bulk resync done")
	}
}
