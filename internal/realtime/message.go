package realtime

import (
	"encoding/json"

	"villagewalks/backend/internal/domain/reservation"
)

const (
	TypeJoinVillage       = "join_village"
	TypeReservationUpdate = "reservation_update"
)

// Inbound is a client-to-server frame.
type Inbound struct {
	Type    string `json:"type"`
	Village string `json:"village,omitempty"`
}

// Outbound is a server-to-client frame.
type Outbound struct {
	Type        string                   `json:"type"`
	Reservation *reservation.Reservation `json:"reservation,omitempty"`
}

func EncodeUpdate(r reservation.Reservation) ([]byte, error) {
	return json.Marshal(Outbound{Type: TypeReservationUpdate, Reservation: &r})
}
