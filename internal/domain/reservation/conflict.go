package reservation

import (
	"time"

	"villagewalks/backend/internal/utils"
)

// OccupiedSpan reports whether [start,end) on date is taken for volunteerID
// by any reservation in existing that still occupies its slot.
func OccupiedSpan(volunteerID, date string, start, end int, existing []Reservation, now time.Time, loc *time.Location) bool {
	for _, r := range existing {
		if r.VolunteerID != volunteerID || r.ReservationDate != date {
			continue
		}
		if !Occupies(r, now, loc) {
			continue
		}
		rs, re, err := r.Span()
		if err != nil {
			continue
		}
		if utils.Overlaps(start, end, rs, re) {
			return true
		}
	}
	return false
}

// Occupied checks the one-hour candidate slot starting at start.
func Occupied(volunteerID, date string, start int, existing []Reservation, now time.Time, loc *time.Location) bool {
	return OccupiedSpan(volunteerID, date, start, start+SlotMinutes, existing, now, loc)
}
