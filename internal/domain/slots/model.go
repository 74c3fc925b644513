package slots

// Slot is a derived one-hour bookable window of a village on one day. It is
// never persisted.
type Slot struct {
	Date     string `json:"date"`
	DayIndex int    `json:"dayIndex"` // 1=Monday ... 7=Sunday
	Time     string `json:"time"`

	// VolunteerIDs lists every eligible volunteer whose availability
	// produces this slot, sorted by id.
	VolunteerIDs []string `json:"volunteerIds"`
	// FreeVolunteerIDs are the contributors not yet occupied at this time.
	FreeVolunteerIDs []string `json:"freeVolunteerIds"`

	Reserved bool `json:"reserved"`
	// Bookable is false once reserved or once the start time has passed.
	Bookable bool `json:"bookable"`
}

type Day struct {
	Date     string `json:"date"`
	DayIndex int    `json:"dayIndex"`
	Slots    []Slot `json:"slots"`
}
