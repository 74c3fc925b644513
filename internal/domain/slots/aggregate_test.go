package slots

import (
	"testing"
	"time"

	"villagewalks/backend/internal/domain/availability"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := utils.ParseDate(s)
	require.NoError(t, err)
	return d
}

func times(d Day) map[string][]string {
	out := map[string][]string{}
	for _, s := range d.Slots {
		out[s.Time] = s.VolunteerIDs
	}
	return out
}

var mergeWindows = map[string][]availability.Window{
	"A": {{DayOfWeek: 1, StartTime: "08:00", EndTime: "10:00"}},
	"B": {{DayOfWeek: 1, StartTime: "09:00", EndTime: "11:00"}},
}

func TestAggregate_MergesContributors(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, loc)

	days, err := Aggregate(day(t, "2025-03-10"), day(t, "2025-03-10"), mergeWindows, nil, now, loc)
	require.NoError(t, err)
	require.Len(t, days, 1)

	assert.Equal(t, 1, days[0].DayIndex)
	assert.Equal(t, map[string][]string{
		"08:00": {"A"},
		"09:00": {"A", "B"},
		"10:00": {"B"},
	}, times(days[0]))
	for _, s := range days[0].Slots {
		assert.True(t, s.Bookable, s.Time)
		assert.Equal(t, s.VolunteerIDs, s.FreeVolunteerIDs)
	}
}

func TestAggregate_EveryDayPresent(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, loc)

	days, err := Aggregate(day(t, "2025-03-09"), day(t, "2025-03-17"), mergeWindows, nil, now, loc)
	require.NoError(t, err)
	require.Len(t, days, 9)

	for _, d := range days {
		require.NotNil(t, d.Slots, d.Date)
		if d.DayIndex == 1 {
			assert.Len(t, d.Slots, 3, d.Date)
		} else {
			assert.Empty(t, d.Slots, d.Date)
		}
	}
	assert.Equal(t, "2025-03-10", days[1].Date)
	assert.Equal(t, "2025-03-17", days[8].Date)
}

func TestAggregate_Occupancy(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, loc)
	feed := []reservation.Reservation{
		{ID: "r1", VolunteerID: "A", ReservationDate: "2025-03-10", StartTime: "09:00", EndTime: "10:00", Status: reservation.StatusPending},
		{ID: "r2", VolunteerID: "B", ReservationDate: "2025-03-10", StartTime: "10:00", EndTime: "11:00", Status: reservation.StatusAccepted},
		{ID: "r3", VolunteerID: "A", ReservationDate: "2025-03-10", StartTime: "08:00", EndTime: "09:00", Status: reservation.StatusRejected},
	}

	days, err := Aggregate(day(t, "2025-03-10"), day(t, "2025-03-10"), mergeWindows, feed, now, loc)
	require.NoError(t, err)
	byTime := map[string]Slot{}
	for _, s := range days[0].Slots {
		byTime[s.Time] = s
	}

	assert.Equal(t, []string{"A"}, byTime["08:00"].FreeVolunteerIDs, "rejected reservations free the slot")
	assert.True(t, byTime["08:00"].Bookable)

	assert.Equal(t, []string{"B"}, byTime["09:00"].FreeVolunteerIDs)
	assert.False(t, byTime["09:00"].Reserved)
	assert.True(t, byTime["09:00"].Bookable)

	assert.Empty(t, byTime["10:00"].FreeVolunteerIDs)
	assert.True(t, byTime["10:00"].Reserved)
	assert.False(t, byTime["10:00"].Bookable)
}

func TestAggregate_StartedSlotsAreNotBookable(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 3, 10, 8, 30, 0, 0, loc)

	days, err := Aggregate(day(t, "2025-03-10"), day(t, "2025-03-10"), mergeWindows, nil, now, loc)
	require.NoError(t, err)
	for _, s := range days[0].Slots {
		if s.Time == "08:00" {
			assert.False(t, s.Bookable)
			assert.False(t, s.Reserved)
		} else {
			assert.True(t, s.Bookable, s.Time)
		}
	}
}

func TestAggregate_WindowToMidnight(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, loc)
	windows := map[string][]availability.Window{
		"A": {{DayOfWeek: 7, StartTime: "22:00", EndTime: "24:00"}},
	}
	days, err := Aggregate(day(t, "2025-03-09"), day(t, "2025-03-09"), windows, nil, now, loc)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"22:00": {"A"}, "23:00": {"A"}}, times(days[0]))
}

func TestPickVolunteer(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, loc)
	slot := Slot{Date: "2025-03-10", Time: "09:00", FreeVolunteerIDs: []string{"A", "B"}}

	id, ok := PickVolunteer(slot, nil, now, loc)
	require.True(t, ok)
	assert.Equal(t, "A", id, "ties go to the lowest id")

	feed := []reservation.Reservation{
		{VolunteerID: "A", ReservationDate: "2025-03-10", StartTime: "11:00", EndTime: "12:00", Status: reservation.StatusPending},
		{VolunteerID: "B", ReservationDate: "2025-03-11", StartTime: "11:00", EndTime: "12:00", Status: reservation.StatusPending},
		{VolunteerID: "B", ReservationDate: "2025-03-10", StartTime: "12:00", EndTime: "13:00", Status: reservation.StatusRejected},
	}
	id, ok = PickVolunteer(slot, feed, now, loc)
	require.True(t, ok)
	assert.Equal(t, "B", id, "only same-day occupying reservations count")

	_, ok = PickVolunteer(Slot{FreeVolunteerIDs: []string{}}, feed, now, loc)
	assert.False(t, ok)
}
