package reservation

import (
	"fmt"
	"time"
)

// DeriveStatus is the single place where time-derived transitions are
// computed. Once reservationDate+endTime has passed, an accepted reservation
// reads as completed and a pending one as cancelled. Storage is not touched.
func DeriveStatus(r Reservation, now time.Time, loc *time.Location) Status {
	end, err := r.EndsAt(loc)
	if err != nil || now.Before(end) {
		return r.Status
	}
	switch r.Status {
	case StatusAccepted:
		return StatusCompleted
	case StatusPending:
		return StatusCancelled
	}
	return r.Status
}

// Occupies reports whether r blocks its slot at now.
func Occupies(r Reservation, now time.Time, loc *time.Location) bool {
	switch DeriveStatus(r, now, loc) {
	case StatusPending, StatusAccepted:
		return true
	}
	return false
}

// WithDerived returns copies carrying DerivedStatus at now.
func WithDerived(rs []Reservation, now time.Time, loc *time.Location) []Reservation {
	out := make([]Reservation, len(rs))
	for i, r := range rs {
		r.DerivedStatus = DeriveStatus(r, now, loc)
		out[i] = r
	}
	return out
}

// Transition applies a volunteer decision. Only a reservation whose derived
// status is still pending can be decided.
func Transition(r Reservation, to Status, now time.Time, loc *time.Location) (Reservation, error) {
	if to != StatusAccepted && to != StatusRejected {
		return r, fmt.Errorf("%w: status must be accepted or rejected", ErrBadRequest)
	}
	if cur := DeriveStatus(r, now, loc); cur != StatusPending {
		return r, fmt.Errorf("%w: reservation is %s", ErrConflict, cur)
	}
	decided := now
	r.Status = to
	r.Version++
	r.UpdatedAt = now
	r.DecidedAt = &decided
	r.DerivedStatus = to
	return r, nil
}
