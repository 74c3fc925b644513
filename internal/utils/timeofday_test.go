package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	m, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, 510, m)

	m, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, MinutesInDay, m)

	for _, bad := range []string{"", "8h", "25:00", "12:60", "noon"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeFormat, bad)
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "09:00", FormatClock(540))
	assert.Equal(t, "00:05", FormatClock(5))
}

func TestISOWeekday(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, ISOWeekday(monday))
	assert.Equal(t, 7, ISOWeekday(monday.AddDate(0, 0, 6)))
}

func TestAt(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	got, err := At("2026-03-02", 14*60, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 14, 0, 0, 0, loc), got)

	_, err = At("02/03/2026", 0, loc)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestAt_ChangeoverDays(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	cases := []struct {
		date    string
		minutes int
		want    string
	}{
		{"2025-03-30", 1 * 60, "2025-03-30 01:00 +0100"},
		{"2025-03-30", 14 * 60, "2025-03-30 14:00 +0200"},
		{"2025-03-29", MinutesInDay, "2025-03-30 00:00 +0100"},
		{"2025-10-26", 13 * 60, "2025-10-26 13:00 +0100"},
		{"2025-10-26", MinutesInDay, "2025-10-27 00:00 +0100"},
		{"2025-03-31", 14 * 60, "2025-03-31 14:00 +0200"},
	}
	for _, tc := range cases {
		got, err := At(tc.date, tc.minutes, loc)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Format("2006-01-02 15:04 -0700"), "%s +%d", tc.date, tc.minutes)
	}
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(480, 540, 510, 570))
	assert.True(t, Overlaps(480, 600, 510, 540))
	assert.False(t, Overlaps(480, 540, 540, 600), "touching windows do not overlap")
	assert.False(t, Overlaps(540, 600, 480, 540))
}

func TestParseRange(t *testing.T) {
	f, to, err := ParseRange("2026-03-02", "2026-03-08", 31)
	require.NoError(t, err)
	assert.Equal(t, 6*24*time.Hour, to.Sub(f))

	_, _, err = ParseRange("2026-03-08", "2026-03-02", 31)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, _, err = ParseRange("2026-03-01", "2026-04-15", 31)
	assert.ErrorIs(t, err, ErrInvalidDate)
}
