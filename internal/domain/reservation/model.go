package reservation

import (
	"strings"
	"time"

	"villagewalks/backend/internal/utils"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// SlotMinutes is the length of every bookable slot.
const SlotMinutes = 60

// Reservation is stored at reservations/{id} and never deleted.
// Status is the persisted value; DerivedStatus is filled on every read with
// the time-derived view and is what callers should display or filter on.
type Reservation struct {
	ID              string     `firestore:"id" json:"id"`
	VolunteerID     string     `firestore:"volunteerId" json:"volunteerId"`
	ClientID        string     `firestore:"clientId" json:"clientId"`
	DogID           string     `firestore:"dogId" json:"dogId"`
	Village         string     `firestore:"village" json:"village"`
	ReservationDate string     `firestore:"reservationDate" json:"reservationDate"` // YYYY-MM-DD
	StartTime       string     `firestore:"startTime" json:"startTime"`             // HH:MM
	EndTime         string     `firestore:"endTime" json:"endTime"`                 // HH:MM
	Status          Status     `firestore:"status" json:"status"`
	DerivedStatus   Status     `firestore:"-" json:"derivedStatus,omitempty"`
	Version         int64      `firestore:"version" json:"version"`
	CreatedAt       time.Time  `firestore:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt" json:"updatedAt"`
	DecidedAt       *time.Time `firestore:"decidedAt,omitempty" json:"decidedAt,omitempty"`
}

// Span returns start and end as minutes after midnight.
func (r Reservation) Span() (start, end int, err error) {
	if start, err = utils.ParseClock(r.StartTime); err != nil {
		return 0, 0, err
	}
	if end, err = utils.ParseClock(r.EndTime); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// EndsAt is reservationDate + endTime in loc.
func (r Reservation) EndsAt(loc *time.Location) (time.Time, error) {
	end, err := utils.ParseClock(r.EndTime)
	if err != nil {
		return time.Time{}, err
	}
	return utils.At(r.ReservationDate, end, loc)
}

// Newer reports whether r supersedes other as a later state of the same
// reservation.
func (r Reservation) Newer(other Reservation) bool {
	if r.Version != other.Version {
		return r.Version > other.Version
	}
	return !r.UpdatedAt.Before(other.UpdatedAt)
}

type CreateReservationInput struct {
	VolunteerID string `json:"volunteerId"`
	Village     string `json:"village" validate:"required"`
	Date        string `json:"date" validate:"required"`
	StartTime   string `json:"startTime" validate:"required"`
	EndTime     string `json:"endTime,omitempty"`
	DogID       string `json:"dogId" validate:"required"`
}

func (in *CreateReservationInput) Trim() {
	in.VolunteerID = strings.TrimSpace(in.VolunteerID)
	in.Village = strings.TrimSpace(in.Village)
	in.Date = strings.TrimSpace(in.Date)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.DogID = strings.TrimSpace(in.DogID)
}

// ListAs selects which side of the caller's reservations to list.
type ListAs string

const (
	AsClient    ListAs = "client"
	AsVolunteer ListAs = "volunteer"
)
