package scheduling

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanner(store *memStore, seed int64) *Planner {
	cal := fixedCalendar{today: date(2026, time.March, 2)}
	return NewPlanner(store, cal, rand.New(rand.NewSource(seed)), zerolog.Nop())
}

func TestPlanSpreadsOverWeekdays(t *testing.T) {
	store := newMemStore()
	planner := newTestPlanner(store, 1)

	// 2026-03-02 is a Monday; the range is one full working week.
	plan, err := planner.PlanDistribution(context.Background(), 10,
		date(2026, time.March, 2), date(2026, time.March, 6), 10, true)
	require.NoError(t, err)

	assert.Equal(t, 5, plan.WorkingDays)
	sum := 0
	for _, d := range plan.Days {
		sum += d.Quota
		assert.GreaterOrEqual(t, d.Quota, 2, "every day gets the floor baseline")
		assert.LessOrEqual(t, d.Quota, 4, "no day exceeds max(baseline+2, ceil(total*0.3))")
	}
	assert.Equal(t, 10, sum)
	assert.Equal(t, 10, plan.Stats.TotalQuota)
	assert.InDelta(t, 2.0, plan.Stats.AveragePerDay, 0.001)

	quotas, err := store.DayQuotas(context.Background(), 10)
	require.NoError(t, err)
	persisted := 0
	for _, q := range quotas {
		persisted += q.Quota
		assert.Zero(t, q.Assigned)
	}
	assert.Equal(t, 10, persisted)
}

func TestPlanSingleDayGetsWholeQuota(t *testing.T) {
	store := newMemStore()
	planner := newTestPlanner(store, 1)

	day := date(2026, time.March, 4)
	plan, err := planner.PlanDistribution(context.Background(), 10, day, day, 7, true)
	require.NoError(t, err)

	require.Len(t, plan.Days, 1)
	assert.Equal(t, 7, plan.Days[0].Quota)
	assert.True(t, plan.Days[0].Date.Equal(day))
}

func TestPlanSkipsWeekendsAndHolidays(t *testing.T) {
	store := newMemStore()
	cal := fixedCalendar{
		today:    date(2026, time.March, 2),
		holidays: map[string]struct{}{"2026-03-04": {}},
	}
	planner := NewPlanner(store, cal, rand.New(rand.NewSource(1)), zerolog.Nop())

	// Mon 2026-03-02 through Sun 2026-03-08, Wednesday is a holiday.
	plan, err := planner.PlanDistribution(context.Background(), 10,
		date(2026, time.March, 2), date(2026, time.March, 8), 8, true)
	require.NoError(t, err)

	assert.Equal(t, 4, plan.WorkingDays)
	for _, d := range plan.Days {
		assert.NotEqual(t, time.Saturday, d.Date.Weekday())
		assert.NotEqual(t, time.Sunday, d.Date.Weekday())
		assert.NotEqual(t, "2026-03-04", d.Date.Format(dateLayout))
	}
}

func TestPlanIncludesWeekendsWhenAsked(t *testing.T) {
	store := newMemStore()
	planner := newTestPlanner(store, 1)

	plan, err := planner.PlanDistribution(context.Background(), 10,
		date(2026, time.March, 6), date(2026, time.March, 8), 6, false)
	require.NoError(t, err)
	assert.Equal(t, 3, plan.WorkingDays, "Fri, Sat and Sun all count")
}

func TestPlanReplacesPreviousPlan(t *testing.T) {
	store := newMemStore()
	planner := newTestPlanner(store, 1)
	ctx := context.Background()

	_, err := planner.PlanDistribution(ctx, 10,
		date(2026, time.March, 2), date(2026, time.March, 6), 10, true)
	require.NoError(t, err)

	_, err = planner.PlanDistribution(ctx, 10,
		date(2026, time.March, 9), date(2026, time.March, 10), 4, true)
	require.NoError(t, err)

	quotas, err := store.DayQuotas(ctx, 10)
	require.NoError(t, err)
	sum := 0
	for _, q := range quotas {
		sum += q.Quota
		assert.False(t, q.Date.Before(date(2026, time.March, 9)), "old rows must be gone")
	}
	assert.Equal(t, 4, sum)
}

func TestPlanZeroQuotaDaysNotPersisted(t *testing.T) {
	store := newMemStore()
	planner := newTestPlanner(store, 1)

	// 2 units over 5 days leaves at least three days with zero quota.
	plan, err := planner.PlanDistribution(context.Background(), 10,
		date(2026, time.March, 2), date(2026, time.March, 6), 2, true)
	require.NoError(t, err)
	assert.Equal(t, 5, plan.WorkingDays)

	quotas, err := store.DayQuotas(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, plan.PersistedRows, len(quotas))
	for _, q := range quotas {
		assert.Positive(t, q.Quota)
	}
}

func TestPlanValidation(t *testing.T) {
	store := newMemStore()
	planner := newTestPlanner(store, 1)
	ctx := context.Background()

	_, err := planner.PlanDistribution(ctx, 10,
		date(2026, time.March, 6), date(2026, time.March, 2), 10, true)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = planner.PlanDistribution(ctx, 10,
		date(2026, time.March, 2), date(2026, time.March, 6), 0, true)
	assert.ErrorIs(t, err, ErrInvalidQuota)

	// Saturday and Sunday only.
	_, err = planner.PlanDistribution(ctx, 10,
		date(2026, time.March, 7), date(2026, time.March, 8), 10, true)
	assert.ErrorIs(t, err, ErrNoValidDays)
}

func TestPlanDeterministicWithSeed(t *testing.T) {
	run := func(seed int64) []PlannedDay {
		store := newMemStore()
		planner := newTestPlanner(store, seed)
		plan, err := planner.PlanDistribution(context.Background(), 10,
			date(2026, time.March, 2), date(2026, time.March, 13), 23, true)
		require.NoError(t, err)
		return plan.Days
	}

	first := run(42)
	second := run(42)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Date.Equal(second[i].Date))
		assert.Equal(t, first[i].Quota, second[i].Quota)
	}
}
