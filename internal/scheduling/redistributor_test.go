package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citasalud/agenda/internal/model"
)

func newTestRedistributor(store *memStore) *Redistributor {
	cal := fixedCalendar{today: date(2026, time.March, 2)}
	return NewRedistributor(store, cal, zerolog.Nop())
}

func TestRedistributeMovesSurplusForward(t *testing.T) {
	store := newMemStore()
	redist := newTestRedistributor(store)

	// Past day with 3 unused units; two future days in range.
	past := store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.February, 27), Quota: 5, Assigned: 2})
	today := store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.March, 2), Quota: 2, Assigned: 0})
	next := store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.March, 3), Quota: 2, Assigned: 1})

	until := date(2026, time.March, 3)
	result, err := redist.Redistribute(context.Background(), 7, &until)
	require.NoError(t, err)

	assert.Equal(t, 3, result.RedistributedQuota)
	assert.Equal(t, 1, result.DaysProcessed)
	assert.Equal(t, 2, result.DaysUpdated)

	// floor(3/2)=1 each, remainder goes to the earliest day.
	assert.Equal(t, 4, store.quota(today).Quota)
	assert.Equal(t, 3, store.quota(next).Quota)

	// The past day keeps its history but loses the surplus.
	assert.Equal(t, 2, store.quota(past).Quota)
	assert.Equal(t, 2, store.quota(past).Assigned)
}

func TestRedistributeDefaultsToToday(t *testing.T) {
	store := newMemStore()
	redist := newTestRedistributor(store)

	store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.February, 27), Quota: 4, Assigned: 1})
	today := store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.March, 2), Quota: 1, Assigned: 0})
	later := store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.March, 5), Quota: 1, Assigned: 0})

	result, err := redist.Redistribute(context.Background(), 7, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.RedistributedQuota)
	assert.Equal(t, 4, store.quota(today).Quota, "all surplus lands on today")
	assert.Equal(t, 1, store.quota(later).Quota, "days past the horizon are untouched")
}

func TestRedistributeNoFutureDays(t *testing.T) {
	store := newMemStore()
	redist := newTestRedistributor(store)

	past := store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.February, 27), Quota: 4, Assigned: 1})

	result, err := redist.Redistribute(context.Background(), 7, nil)
	require.NoError(t, err)

	assert.Zero(t, result.RedistributedQuota)
	assert.Equal(t, 1, result.DaysProcessed)
	assert.Equal(t, 4, store.quota(past).Quota, "nothing moved, nothing collapsed")
}

func TestRedistributeNothingStranded(t *testing.T) {
	store := newMemStore()
	redist := newTestRedistributor(store)

	store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.February, 27), Quota: 3, Assigned: 3})
	store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.March, 2), Quota: 2, Assigned: 0})

	result, err := redist.Redistribute(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Zero(t, result.RedistributedQuota)
	assert.Zero(t, result.DaysProcessed)
}

func TestRedistributeMultiplePastDays(t *testing.T) {
	store := newMemStore()
	redist := newTestRedistributor(store)

	store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.February, 26), Quota: 3, Assigned: 1})
	store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.February, 27), Quota: 2, Assigned: 1})
	today := store.addQuota(model.DayQuota{AvailabilityID: 7, Date: date(2026, time.March, 2), Quota: 0, Assigned: 0})

	result, err := redist.Redistribute(context.Background(), 7, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.RedistributedQuota)
	assert.Equal(t, 2, result.DaysProcessed)
	assert.Equal(t, 3, store.quota(today).Quota)
}

func TestRedistributeAllCoversPlannedWindows(t *testing.T) {
	store := newMemStore()
	redist := newTestRedistributor(store)

	a := store.addWindow(model.AvailabilityWindow{Capacity: 5, Status: model.WindowActive})
	b := store.addWindow(model.AvailabilityWindow{Capacity: 5, Status: model.WindowActive})

	store.addQuota(model.DayQuota{AvailabilityID: a, Date: date(2026, time.February, 27), Quota: 2, Assigned: 0})
	store.addQuota(model.DayQuota{AvailabilityID: a, Date: date(2026, time.March, 2), Quota: 1, Assigned: 0})
	store.addQuota(model.DayQuota{AvailabilityID: b, Date: date(2026, time.February, 27), Quota: 1, Assigned: 0})
	store.addQuota(model.DayQuota{AvailabilityID: b, Date: date(2026, time.March, 2), Quota: 1, Assigned: 0})

	bulk, err := redist.RedistributeAll(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, bulk.TotalWindows)
	assert.Equal(t, 3, bulk.TotalRedistributed)
	require.Contains(t, bulk.Results, a)
	require.Contains(t, bulk.Results, b)
	assert.Equal(t, 2, bulk.Results[a].RedistributedQuota)
	assert.Equal(t, 1, bulk.Results[b].RedistributedQuota)
}
