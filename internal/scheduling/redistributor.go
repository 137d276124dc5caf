package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Redistributor recovers quota stranded in past days that was never
// consumed and moves it into future days within a window.  Assigned
// counts are never decreased; the past rows keep their historical
// assigned value and have their surplus quota collapsed away
// (use-it-or-lose-it).
type Redistributor struct {
	store Store
	cal   Calendar
	log   zerolog.Logger
}

func NewRedistributor(store Store, cal Calendar, log zerolog.Logger) *Redistributor {
	return &Redistributor{store: store, cal: cal, log: log}
}

// RedistributionMove records one quota transfer for auditing.
type RedistributionMove struct {
	FromDate   time.Time `json:"from_date"`
	ToDate     time.Time `json:"to_date"`
	QuotaMoved int       `json:"quota_moved"`
}

// RedistributionResult summarizes a redistribution run.
type RedistributionResult struct {
	RedistributedQuota int                  `json:"redistributed_quota"`
	DaysProcessed      int                  `json:"days_processed"`
	DaysUpdated        int                  `json:"days_updated"`
	Details            []RedistributionMove `json:"details"`
}

// Redistribute moves unused quota from the window's past days into
// days between today and until (inclusive).  A nil until defaults to
// today, which redistributes everything into the current day.  The
// whole run is a single transaction: either every transfer commits or
// none does.
func (r *Redistributor) Redistribute(ctx context.Context, windowID uint64, until *time.Time) (*RedistributionResult, error) {
	today := r.cal.Today()
	untilDate := today
	if until != nil {
		untilDate = Midnight(*until)
	}

	result := &RedistributionResult{Details: []RedistributionMove{}}
	err := r.store.InTx(ctx, func(tx Tx) error {
		past, err := tx.PastSurplusForUpdate(ctx, windowID, today)
		if err != nil {
			return err
		}
		if len(past) == 0 {
			return nil
		}
		future, err := tx.QuotasInRangeForUpdate(ctx, windowID, today, untilDate)
		if err != nil {
			return err
		}
		if len(future) == 0 {
			result.DaysProcessed = len(past)
			r.log.Info().Uint64("window_id", windowID).Int("stranded_days", len(past)).
				Msg("redistributor: no future days available, nothing moved")
			return nil
		}

		for _, pastDay := range past {
			leftover := pastDay.Available()
			if leftover <= 0 {
				continue
			}
			result.DaysProcessed++

			share := leftover / len(future)
			extra := leftover % len(future)
			for i := range future {
				add := share
				if i < extra {
					add++
				}
				if add == 0 {
					continue
				}
				if err := tx.AddQuota(ctx, future[i].ID, add); err != nil {
					return err
				}
				future[i].Quota += add
				result.Details = append(result.Details, RedistributionMove{
					FromDate:   pastDay.Date,
					ToDate:     future[i].Date,
					QuotaMoved: add,
				})
				result.RedistributedQuota += add
				result.DaysUpdated++
			}

			if err := tx.CollapseQuota(ctx, pastDay.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.RedistributedQuota > 0 {
		r.log.Info().Uint64("window_id", windowID).
			Int("redistributed", result.RedistributedQuota).
			Int("days_processed", result.DaysProcessed).
			Int("days_updated", result.DaysUpdated).
			Msg("redistributor: completed")
	}
	return result, nil
}

// BulkRedistributionResult is the outcome of RedistributeAll.
type BulkRedistributionResult struct {
	TotalWindows       int                              `json:"total_windows"`
	TotalRedistributed int                              `json:"total_redistributed"`
	Results            map[uint64]*RedistributionResult `json:"results"`
}

// RedistributeAll runs Redistribute over every active window that has
// quota rows.  A failure on one window is logged and skipped so a
// scheduled run always covers the rest.
func (r *Redistributor) RedistributeAll(ctx context.Context, until *time.Time) (*BulkRedistributionResult, error) {
	ids, err := r.store.PlannedWindowIDs(ctx)
	if err != nil {
		return nil, err
	}
	bulk := &BulkRedistributionResult{
		TotalWindows: len(ids),
		Results:      make(map[uint64]*RedistributionResult, len(ids)),
	}
	for _, id := range ids {
		res, err := r.Redistribute(ctx, id, until)
		if err != nil {
			r.log.Error().Err(err).Uint64("window_id", id).Msg("redistributor: window failed, skipping")
			continue
		}
		bulk.Results[id] = res
		bulk.TotalRedistributed += res.RedistributedQuota
	}
	return bulk, nil
}
