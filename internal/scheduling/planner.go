package scheduling

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/citasalud/agenda/internal/model"
)

// Planner turns a window's total quota into per-day quota rows over a
// date range.  Persisting a plan deletes any previous plan for the
// window, so re-planning is idempotent but destructive: assigned
// counts recorded on the old rows are not carried over.  Re-planning
// is expected to happen once, when the window is created.
type Planner struct {
	store Store
	cal   Calendar
	log   zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPlanner builds a planner with a seedable random source so the
// randomized spread is reproducible in tests.
func NewPlanner(store Store, cal Calendar, rng *rand.Rand, log zerolog.Logger) *Planner {
	return &Planner{store: store, cal: cal, rng: rng, log: log}
}

// DistributionStats summarizes a generated plan.
type DistributionStats struct {
	TotalQuota    int     `json:"total_quota"`
	AveragePerDay float64 `json:"average_per_day"`
	MaxQuota      int     `json:"max_quota"`
	MinQuota      int     `json:"min_quota"`
}

// PlannedDay is one day of a distribution plan.
type PlannedDay struct {
	Date  time.Time `json:"date"`
	Quota int       `json:"quota"`
}

// DistributionPlan is the result of PlanDistribution.  Days are
// returned sorted by date; the persisted rows are keyed by date, so
// the shuffle applied while planning has no semantic effect.
type DistributionPlan struct {
	WindowID      uint64            `json:"availability_id"`
	StartDate     time.Time         `json:"start_date"`
	EndDate       time.Time         `json:"end_date"`
	WorkingDays   int               `json:"working_days"`
	Days          []PlannedDay      `json:"distribution"`
	Stats         DistributionStats `json:"stats"`
	PersistedRows int               `json:"persisted_rows"`
}

// PlanDistribution spreads totalQuota over the valid days in
// [start, end] and persists the plan, replacing any previous plan for
// the window.  With excludeWeekends set (the default for every
// administrative caller), only working days per the calendar are
// considered.  Every day gets floor(total/n); the remainder is
// sprinkled at random under a per-day cap of
// max(baseline+2, ceil(total*0.3)), spilling sequentially if every day
// hits the cap.
func (p *Planner) PlanDistribution(ctx context.Context, windowID uint64, start, end time.Time, totalQuota int, excludeWeekends bool) (*DistributionPlan, error) {
	start = Midnight(start)
	end = Midnight(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	if totalQuota <= 0 {
		return nil, ErrInvalidQuota
	}

	var days []PlannedDay
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if excludeWeekends && !p.cal.IsWorkingDay(d) {
			continue
		}
		days = append(days, PlannedDay{Date: d})
	}
	if len(days) == 0 {
		return nil, ErrNoValidDays
	}

	if len(days) == 1 {
		days[0].Quota = totalQuota
	} else {
		p.spread(days, totalQuota)
	}

	plan := &DistributionPlan{
		WindowID:    windowID,
		StartDate:   start,
		EndDate:     end,
		WorkingDays: len(days),
	}

	err := p.store.InTx(ctx, func(tx Tx) error {
		progressed, err := tx.CountQuotasWithProgress(ctx, windowID)
		if err != nil {
			return err
		}
		if progressed > 0 {
			p.log.Warn().Uint64("window_id", windowID).Int("days_with_assignments", progressed).
				Msg("planner: replacing a plan that already has assignments, progress on old rows is discarded")
		}
		if _, err := tx.DeleteDayQuotas(ctx, windowID); err != nil {
			return err
		}
		rows := make([]model.DayQuota, 0, len(days))
		for _, d := range days {
			if d.Quota == 0 {
				continue
			}
			rows = append(rows, model.DayQuota{
				AvailabilityID: windowID,
				Date:           d.Date,
				Quota:          d.Quota,
			})
		}
		if err := tx.InsertDayQuotas(ctx, rows); err != nil {
			return err
		}
		plan.PersistedRows = len(rows)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	plan.Days = days
	plan.Stats = statsFor(days)
	return plan, nil
}

// spread assigns the floor baseline to every day, then hands out the
// remainder one unit at a time to random days below the cap.  If all
// days reach the cap first, the rest is spread sequentially ignoring
// it.  The day order is shuffled afterwards.
func (p *Planner) spread(days []PlannedDay, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	baseline := total / len(days)
	remaining := total
	for i := range days {
		days[i].Quota = baseline
		remaining -= baseline
	}

	perDayCap := baseline + 2
	if pct := int(math.Ceil(float64(total) * 0.3)); pct > perDayCap {
		perDayCap = pct
	}

	for remaining > 0 {
		i := p.rng.Intn(len(days))
		if days[i].Quota < perDayCap {
			days[i].Quota++
			remaining--
		}
		capped := true
		for _, d := range days {
			if d.Quota < perDayCap {
				capped = false
				break
			}
		}
		if capped {
			for i := 0; remaining > 0 && i < len(days); i++ {
				days[i].Quota++
				remaining--
			}
			break
		}
	}

	p.rng.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })
}

func statsFor(days []PlannedDay) DistributionStats {
	total := 0
	max := days[0].Quota
	min := days[0].Quota
	for _, d := range days {
		total += d.Quota
		if d.Quota > max {
			max = d.Quota
		}
		if d.Quota < min {
			min = d.Quota
		}
	}
	return DistributionStats{
		TotalQuota:    total,
		AveragePerDay: math.Round(float64(total)/float64(len(days))*100) / 100,
		MaxQuota:      max,
		MinQuota:      min,
	}
}
