package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	cases := []struct {
		in   string
		want Priority
	}{
		{"urgent", PriorityUrgent},
		{"high", PriorityHigh},
		{"normal", PriorityNormal},
		{"", PriorityNormal},
		{"low", PriorityLow},
	}
	for _, tc := range cases {
		got, err := ParsePriority(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParsePriority("critical")
	assert.ErrorIs(t, err, ErrUnknownPriority)
}

func TestPriorityRankOrdering(t *testing.T) {
	assert.Less(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityNormal.Rank())
	assert.Less(t, PriorityNormal.Rank(), PriorityLow.Rank())
}

func TestAppointmentStatusCapacity(t *testing.T) {
	assert.True(t, AppointmentPending.CountsAgainstCapacity())
	assert.True(t, AppointmentConfirmed.CountsAgainstCapacity())
	assert.False(t, AppointmentCancelled.CountsAgainstCapacity())
}
