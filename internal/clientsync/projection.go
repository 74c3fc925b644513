package clientsync

import (
	"sync"
	"time"

	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/domain/slots"
	"villagewalks/backend/internal/utils"
)

// Projection is a client's local view of one village: its reservations keyed
// by id in first-seen order, and the last fetched slot grid.
type Projection struct {
	clock clock.Clock
	loc   *time.Location

	mu    sync.RWMutex
	order []string
	byID  map[string]reservation.Reservation
	days  []slots.Day
}

func NewProjection(clk clock.Clock, loc *time.Location) *Projection {
	return &Projection{
		clock: clk,
		loc:   loc,
		byID:  map[string]reservation.Reservation{},
	}
}

// ApplyUpdate merges a pushed reservation. An unknown id is appended; a known
// one is replaced only when r is not older than the local copy. Occupying
// reservations also mark overlapping cached slots of the same volunteer.
// Applying the same update twice leaves the projection unchanged.
// It reports whether r was taken.
func (p *Projection) ApplyUpdate(r reservation.Reservation) bool {
	if r.ID == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.byID[r.ID]; ok {
		if !r.Newer(cur) {
			return false
		}
	} else {
		p.order = append(p.order, r.ID)
	}
	p.byID[r.ID] = r
	p.markOccupied(r)
	return true
}

// ApplyOptimistic records the server response to the caller's own booking.
// It goes through the same keyed path as pushed updates so the broadcast echo
// collapses onto it.
func (p *Projection) ApplyOptimistic(r reservation.Reservation) bool {
	return p.ApplyUpdate(r)
}

// Replace swaps in freshly fetched state. Nil slices keep the current value
// of that half. A fetched reservation never rolls back a higher local
// version.
func (p *Projection) Replace(rs []reservation.Reservation, days []slots.Day) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rs != nil {
		prev := p.byID
		p.order = make([]string, 0, len(rs))
		p.byID = make(map[string]reservation.Reservation, len(rs))
		for _, r := range rs {
			// a push that raced the fetch may already be ahead of it
			if cur, ok := prev[r.ID]; ok && cur.Version > r.Version {
				r = cur
			}
			if _, dup := p.byID[r.ID]; !dup {
				p.order = append(p.order, r.ID)
			}
			p.byID[r.ID] = r
		}
	}
	if days != nil {
		p.days = cloneDays(days)
		for _, id := range p.order {
			p.markOccupied(p.byID[id])
		}
	}
}

// markOccupied expects p.mu held.
func (p *Projection) markOccupied(r reservation.Reservation) {
	if !reservation.Occupies(r, p.clock.Now(), p.loc) {
		return
	}
	rs, re, err := r.Span()
	if err != nil {
		return
	}
	for di := range p.days {
		if p.days[di].Date != r.ReservationDate {
			continue
		}
		for si := range p.days[di].Slots {
			s := &p.days[di].Slots[si]
			start, err := utils.ParseClock(s.Time)
			if err != nil || !utils.Overlaps(start, start+reservation.SlotMinutes, rs, re) {
				continue
			}
			if !contains(s.VolunteerIDs, r.VolunteerID) {
				continue
			}
			s.FreeVolunteerIDs = without(s.FreeVolunteerIDs, r.VolunteerID)
			if len(s.FreeVolunteerIDs) == 0 {
				s.Reserved = true
				s.Bookable = false
			}
		}
	}
}

// Reservations returns the local reservations with their status derived at
// the current time.
func (p *Projection) Reservations() []reservation.Reservation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]reservation.Reservation, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id])
	}
	return reservation.WithDerived(out, p.clock.Now(), p.loc)
}

func (p *Projection) Get(id string) (reservation.Reservation, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.byID[id]
	return r, ok
}

func (p *Projection) Days() []slots.Day {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneDays(p.days)
}

// Slot looks up the cached slot at date and time (HH:MM).
func (p *Projection) Slot(date, hhmm string) (slots.Slot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, d := range p.days {
		if d.Date != date {
			continue
		}
		for _, s := range d.Slots {
			if s.Time == hhmm {
				return cloneSlot(s), true
			}
		}
	}
	return slots.Slot{}, false
}

func cloneDays(days []slots.Day) []slots.Day {
	out := make([]slots.Day, len(days))
	for i, d := range days {
		out[i] = d
		out[i].Slots = make([]slots.Slot, len(d.Slots))
		for j, s := range d.Slots {
			out[i].Slots[j] = cloneSlot(s)
		}
	}
	return out
}

func cloneSlot(s slots.Slot) slots.Slot {
	s.VolunteerIDs = append([]string(nil), s.VolunteerIDs...)
	s.FreeVolunteerIDs = append([]string{}, s.FreeVolunteerIDs...)
	return s
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
