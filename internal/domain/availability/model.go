package availability

import (
	"strings"
	"time"

	"villagewalks/backend/internal/utils"
)

// Window is one weekly recurring availability block of a volunteer.
// It is stored in the volunteers/{uid}/availability subcollection.
type Window struct {
	ID          string    `firestore:"id" json:"id"`
	VolunteerID string    `firestore:"volunteerId" json:"volunteerId"`
	DayOfWeek   int       `firestore:"dayOfWeek" json:"dayOfWeek"` // 1=Monday ... 7=Sunday
	StartTime   string    `firestore:"startTime" json:"startTime"` // "HH:00"
	EndTime     string    `firestore:"endTime" json:"endTime"`     // "HH:00", "24:00" allowed
	CreatedAt   time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// Span returns the window bounds in minutes after midnight. Stored windows
// are validated on write, so parse errors only come from hand-edited data.
func (w Window) Span() (start, end int, err error) {
	if start, err = utils.ParseClock(w.StartTime); err != nil {
		return 0, 0, err
	}
	if end, err = utils.ParseClock(w.EndTime); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Covers reports whether [start,end) lies entirely inside the window.
func (w Window) Covers(start, end int) bool {
	ws, we, err := w.Span()
	if err != nil {
		return false
	}
	return ws <= start && end <= we
}

type WindowInput struct {
	DayOfWeek int    `json:"dayOfWeek" validate:"min=1,max=7"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

type SetAvailabilityInput struct {
	Windows []WindowInput `json:"windows" validate:"dive"`
}

func (in *SetAvailabilityInput) Trim() {
	for i := range in.Windows {
		in.Windows[i].StartTime = strings.TrimSpace(in.Windows[i].StartTime)
		in.Windows[i].EndTime = strings.TrimSpace(in.Windows[i].EndTime)
	}
}
