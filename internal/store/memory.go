// Package store holds the in-process implementations of the domain stores,
// used for STORE=memory runs and for tests. Each collection is guarded by
// its own mutex; multi-document operations happen under that single lock,
// which gives the same atomicity the Firestore transactions provide.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"villagewalks/backend/internal/domain/availability"
	"villagewalks/backend/internal/domain/notifications"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/domain/user"
	"villagewalks/backend/internal/domain/volunteer"

	"github.com/google/uuid"
)

// Memory bundles one store per collection.
type Memory struct {
	Volunteers    *Volunteers
	Windows       *Windows
	Reservations  *Reservations
	Profiles      *Profiles
	Notifications *Notifications
}

func NewMemory() *Memory {
	return &Memory{
		Volunteers:    &Volunteers{docs: map[string]volunteer.Volunteer{}, events: map[string]map[string]volunteer.SubscriptionEvent{}},
		Windows:       &Windows{docs: map[string][]availability.Window{}},
		Reservations:  &Reservations{docs: map[string]reservation.Reservation{}},
		Profiles:      &Profiles{docs: map[string]user.Profile{}},
		Notifications: &Notifications{docs: map[string][]notifications.Notification{}},
	}
}

// ===== volunteers =====

type Volunteers struct {
	mu     sync.RWMutex
	docs   map[string]volunteer.Volunteer
	events map[string]map[string]volunteer.SubscriptionEvent
}

// Put seeds or overwrites a volunteer document.
func (s *Volunteers) Put(v volunteer.Volunteer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Villages == nil {
		v.Villages = []string{}
	}
	s.docs[v.UID] = v
}

func (s *Volunteers) Get(_ context.Context, uid string) (*volunteer.Volunteer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.docs[uid]
	if !ok {
		return nil, fmt.Errorf("%w: volunteer not found", volunteer.ErrNotFound)
	}
	v.Villages = append([]string{}, v.Villages...)
	return &v, nil
}

func (s *Volunteers) ListByVillage(_ context.Context, village string) ([]volunteer.Volunteer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []volunteer.Volunteer{}
	for _, v := range s.docs {
		if v.CoversVillage(village) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (s *Volunteers) update(uid string, now time.Time, fn func(v *volunteer.Volunteer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.docs[uid]
	if !ok {
		v = volunteer.Volunteer{UID: uid, Villages: []string{}, CreatedAt: now}
	}
	fn(&v)
	v.UpdatedAt = now
	s.docs[uid] = v
}

func (s *Volunteers) SetHolidayMode(_ context.Context, uid string, on bool, now time.Time) error {
	s.update(uid, now, func(v *volunteer.Volunteer) { v.HolidayMode = on })
	return nil
}

func (s *Volunteers) SetVillages(_ context.Context, uid string, villages []string, now time.Time) error {
	s.update(uid, now, func(v *volunteer.Volunteer) {
		v.Villages = append([]string{}, villages...)
		t := now
		v.VillagesUpdatedAt = &t
	})
	return nil
}

func (s *Volunteers) SetPersonalID(_ context.Context, uid, personalID string, now time.Time) error {
	s.update(uid, now, func(v *volunteer.Volunteer) { v.PersonalID = personalID })
	return nil
}

func (s *Volunteers) LinkBilling(_ context.Context, uid, customerID, subscriptionID string, now time.Time) error {
	s.update(uid, now, func(v *volunteer.Volunteer) {
		if customerID != "" {
			v.StripeCustomerID = customerID
		}
		if subscriptionID != "" {
			v.StripeSubscriptionID = subscriptionID
		}
	})
	return nil
}

func (s *Volunteers) ApplySubscription(_ context.Context, m volunteer.BillingMatch, st volunteer.SubscriptionState, now time.Time) ([]string, error) {
	if m.Empty() {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []string{}
	for uid, v := range s.docs {
		bySub := m.SubscriptionID != "" && v.StripeSubscriptionID == m.SubscriptionID
		byCust := m.CustomerID != "" && v.StripeCustomerID == m.CustomerID
		if !bySub && !byCust {
			continue
		}
		if !m.Accepts(v, st) {
			continue
		}
		exp := st.ExpiryDate
		v.Paid = st.Paid
		v.ExpiryDate = &exp
		if st.SubscriptionID != "" {
			v.StripeSubscriptionID = st.SubscriptionID
		}
		if st.CustomerID != "" {
			v.StripeCustomerID = st.CustomerID
		}
		v.UpdatedAt = now
		s.docs[uid] = v
		matched = append(matched, uid)
	}
	sort.Strings(matched)
	return matched, nil
}

func (s *Volunteers) RecordSubscriptionEvent(_ context.Context, uid string, ev volunteer.SubscriptionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events[uid] == nil {
		s.events[uid] = map[string]volunteer.SubscriptionEvent{}
	}
	s.events[uid][ev.EventID] = ev
	return nil
}

// Events returns the audit trail of uid ordered by record time.
func (s *Volunteers) Events(uid string) []volunteer.SubscriptionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]volunteer.SubscriptionEvent, 0, len(s.events[uid]))
	for _, ev := range s.events[uid] {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out
}

// ===== availability =====

type Windows struct {
	mu   sync.RWMutex
	docs map[string][]availability.Window
}

func (s *Windows) ListByVolunteer(_ context.Context, volunteerID string) ([]availability.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]availability.Window{}, s.docs[volunteerID]...), nil
}

func (s *Windows) Replace(_ context.Context, volunteerID string, windows []availability.Window, now time.Time) ([]availability.Window, error) {
	out := make([]availability.Window, 0, len(windows))
	for _, w := range windows {
		w.ID = uuid.NewString()
		w.VolunteerID = volunteerID
		w.CreatedAt = now
		w.UpdatedAt = now
		out = append(out, w)
	}
	s.mu.Lock()
	s.docs[volunteerID] = out
	s.mu.Unlock()
	return append([]availability.Window{}, out...), nil
}

// ===== reservations =====

type Reservations struct {
	mu   sync.RWMutex
	docs map[string]reservation.Reservation
}

// Insert runs check and the write under one lock so concurrent bookings of
// the same volunteer serialize.
func (s *Reservations) Insert(_ context.Context, r reservation.Reservation, check func(existing []reservation.Reservation) error) (*reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := []reservation.Reservation{}
	for _, e := range s.docs {
		if e.VolunteerID == r.VolunteerID && e.ReservationDate == r.ReservationDate {
			existing = append(existing, e)
		}
	}
	if err := check(existing); err != nil {
		return nil, err
	}
	r.ID = uuid.NewString()
	s.docs[r.ID] = r
	return &r, nil
}

func (s *Reservations) Get(_ context.Context, id string) (*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: reservation not found", reservation.ErrNotFound)
	}
	return &r, nil
}

func (s *Reservations) Mutate(_ context.Context, id string, fn func(reservation.Reservation) (reservation.Reservation, error)) (*reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: reservation not found", reservation.ErrNotFound)
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	next.DerivedStatus = ""
	s.docs[id] = next
	return &next, nil
}

func (s *Reservations) ListByVillage(_ context.Context, village, from, to string) ([]reservation.Reservation, error) {
	return s.filter(func(r reservation.Reservation) bool {
		return r.Village == village && inRange(r.ReservationDate, from, to)
	}), nil
}

func (s *Reservations) ListByVolunteer(_ context.Context, volunteerID, from, to string) ([]reservation.Reservation, error) {
	return s.filter(func(r reservation.Reservation) bool {
		return r.VolunteerID == volunteerID && inRange(r.ReservationDate, from, to)
	}), nil
}

func (s *Reservations) ListByClient(_ context.Context, clientID string) ([]reservation.Reservation, error) {
	return s.filter(func(r reservation.Reservation) bool { return r.ClientID == clientID }), nil
}

func (s *Reservations) filter(keep func(reservation.Reservation) bool) []reservation.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []reservation.Reservation{}
	for _, r := range s.docs {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReservationDate != out[j].ReservationDate {
			return out[i].ReservationDate < out[j].ReservationDate
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// inRange compares YYYY-MM-DD strings; empty bounds are open.
func inRange(date, from, to string) bool {
	return (from == "" || date >= from) && (to == "" || date <= to)
}

// ===== users =====

type Profiles struct {
	mu   sync.RWMutex
	docs map[string]user.Profile
}

func (s *Profiles) Put(p user.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[p.UID] = p
}

func (s *Profiles) Get(_ context.Context, uid string) (*user.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.docs[uid]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", user.ErrNotFound, uid)
	}
	p.FCMTokens = append([]string(nil), p.FCMTokens...)
	return &p, nil
}

func (s *Profiles) SetRole(_ context.Context, uid, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.docs[uid]
	p.UID = uid
	p.Role = role
	p.UpdatedAt = time.Now().UTC()
	s.docs[uid] = p
	return nil
}

func (s *Profiles) AddPushToken(_ context.Context, uid, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.docs[uid]
	p.UID = uid
	for _, t := range p.FCMTokens {
		if t == token {
			return nil
		}
	}
	p.FCMTokens = append(append(make([]string, 0, len(p.FCMTokens)+1), p.FCMTokens...), token)
	p.UpdatedAt = time.Now().UTC()
	s.docs[uid] = p
	return nil
}

func (s *Profiles) RemovePushToken(_ context.Context, uid, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.docs[uid]
	if !ok {
		return nil
	}
	kept := make([]string, 0, len(p.FCMTokens))
	for _, t := range p.FCMTokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	p.FCMTokens = kept
	p.UpdatedAt = time.Now().UTC()
	s.docs[uid] = p
	return nil
}

// ===== notifications =====

type Notifications struct {
	mu   sync.RWMutex
	docs map[string][]notifications.Notification
}

func (s *Notifications) Add(_ context.Context, uid string, n notifications.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.docs[uid] = append(s.docs[uid], n)
	return nil
}

// List returns the newest notifications first.
func (s *Notifications) List(_ context.Context, uid string, limit int) ([]notifications.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.docs[uid]
	out := make([]notifications.Notification, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
