package notifications

import (
	"time"
)

// Notification is an in-app notice stored under users/{uid}/notifications.
type Notification struct {
	ID        string            `firestore:"id" json:"id"`
	Title     string            `firestore:"title" json:"title"`
	Body      string            `firestore:"body" json:"body"`
	Type      string            `firestore:"type" json:"type"`
	Data      map[string]string `firestore:"data,omitempty" json:"data,omitempty"`
	Read      bool              `firestore:"read" json:"read"`
	CreatedAt time.Time         `firestore:"createdAt" json:"createdAt"`
}

const (
	TypeReservationRequested = "reservation_requested"
	TypeReservationDecided   = "reservation_decided"
)
