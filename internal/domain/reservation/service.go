package reservation

import (
	"context"
	"fmt"
	"time"

	"villagewalks/backend/internal/authctx"
	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/domain/availability"
	"villagewalks/backend/internal/domain/volunteer"
	"villagewalks/backend/internal/utils"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// Store is the data-access boundary for reservations. Insert and Mutate must
// be atomic with respect to concurrent callers.
type Store interface {
	Insert(ctx context.Context, r Reservation, check func(existing []Reservation) error) (*Reservation, error)
	Get(ctx context.Context, id string) (*Reservation, error)
	Mutate(ctx context.Context, id string, fn func(Reservation) (Reservation, error)) (*Reservation, error)
	ListByVillage(ctx context.Context, village, from, to string) ([]Reservation, error)
	ListByVolunteer(ctx context.Context, volunteerID, from, to string) ([]Reservation, error)
	ListByClient(ctx context.Context, clientID string) ([]Reservation, error)
}

// Broadcaster pushes reservation changes to live viewers of the village.
type Broadcaster interface {
	Publish(ctx context.Context, r Reservation) error
}

// Notifier delivers out-of-band notices. Failures never fail the request.
type Notifier interface {
	ReservationCreated(ctx context.Context, r Reservation) error
	ReservationDecided(ctx context.Context, r Reservation) error
}

type VolunteerSource interface {
	Load(ctx context.Context, uid string) (*volunteer.Volunteer, error)
	GracePeriod() time.Duration
}

type WindowSource interface {
	ForVolunteer(ctx context.Context, volunteerID string) ([]availability.Window, error)
}

type Service struct {
	store       Store
	volunteers  VolunteerSource
	windows     WindowSource
	broadcaster Broadcaster
	notifier    Notifier
	clock       clock.Clock
	loc         *time.Location
	maxDays     int
	log         *zap.Logger
}

func NewService(store Store, volunteers VolunteerSource, windows WindowSource, clk clock.Clock, loc *time.Location, maxDays int, log *zap.Logger) *Service {
	return &Service{
		store:      store,
		volunteers: volunteers,
		windows:    windows,
		clock:      clk,
		loc:        loc,
		maxDays:    maxDays,
		log:        log,
	}
}

func (s *Service) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) Location() *time.Location { return s.loc }

// Create books a one-hour slot for the caller. The occupancy check is
// repeated inside the store transaction; whatever the client saw is advisory.
func (s *Service) Create(ctx context.Context, caller authctx.Caller, in CreateReservationInput) (*Reservation, error) {
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: caller identity required", ErrUnauthorized)
	}
	in.Trim()
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if in.VolunteerID == "" {
		return nil, fmt.Errorf("%w: volunteerId is required", ErrBadRequest)
	}
	if in.VolunteerID == caller.UID {
		return nil, fmt.Errorf("%w: volunteers cannot book themselves", ErrBadRequest)
	}

	village := utils.NormalizeVillage(in.Village)
	day, err := utils.ParseDate(in.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrBadRequest)
	}
	start, err := utils.ParseClock(in.StartTime)
	if err != nil || start%60 != 0 {
		return nil, fmt.Errorf("%w: startTime must be on the hour (HH:00)", ErrBadRequest)
	}
	end := start + SlotMinutes
	if end > utils.MinutesInDay {
		return nil, fmt.Errorf("%w: slot runs past midnight", ErrBadRequest)
	}
	if in.EndTime != "" {
		if e, err := utils.ParseClock(in.EndTime); err != nil || e != end {
			return nil, fmt.Errorf("%w: endTime must be one hour after startTime", ErrBadRequest)
		}
	}

	now := s.clock.Now()
	startsAt, _ := utils.At(in.Date, start, s.loc)
	if !now.Before(startsAt) {
		return nil, fmt.Errorf("%w: slot has already started", ErrConflict)
	}

	v, err := s.volunteers.Load(ctx, in.VolunteerID)
	if err != nil {
		return nil, err
	}
	if !v.CoversVillage(village) {
		return nil, fmt.Errorf("%w: volunteer does not cover %s", ErrBadRequest, village)
	}
	if !v.Eligible(now, s.volunteers.GracePeriod()) {
		return nil, fmt.Errorf("%w: volunteer is not taking bookings", ErrConflict)
	}

	windows, err := s.windows.ForVolunteer(ctx, in.VolunteerID)
	if err != nil {
		return nil, err
	}
	if !coveredBy(availability.ForDay(windows, utils.ISOWeekday(day)), start, end) {
		return nil, fmt.Errorf("%w: volunteer is not available at that time", ErrConflict)
	}

	res := Reservation{
		VolunteerID:     in.VolunteerID,
		ClientID:        caller.UID,
		DogID:           in.DogID,
		Village:         village,
		ReservationDate: in.Date,
		StartTime:       utils.FormatClock(start),
		EndTime:         utils.FormatClock(end),
		Status:          StatusPending,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	out, err := s.store.Insert(ctx, res, func(existing []Reservation) error {
		if OccupiedSpan(res.VolunteerID, res.ReservationDate, start, end, existing, now, s.loc) {
			return fmt.Errorf("%w: slot already reserved", ErrConflict)
		}
		return nil
	})
	if err != nil {
		if IsErrConflict(err) {
			s.log.Info("booking rejected",
				zap.String("volunteer", res.VolunteerID),
				zap.String("date", res.ReservationDate),
				zap.String("start", res.StartTime),
				zap.String("client", caller.UID))
		}
		return nil, err
	}
	out.DerivedStatus = StatusPending

	s.log.Info("reservation created",
		zap.String("id", out.ID),
		zap.String("village", out.Village),
		zap.String("volunteer", out.VolunteerID),
		zap.String("date", out.ReservationDate),
		zap.String("start", out.StartTime))

	s.publish(ctx, *out)
	if s.notifier != nil {
		if err := s.notifier.ReservationCreated(ctx, *out); err != nil {
			s.log.Warn("reservation notification failed", zap.String("id", out.ID), zap.Error(err))
		}
	}
	return out, nil
}

func coveredBy(windows []availability.Window, start, end int) bool {
	for _, w := range windows {
		if w.Covers(start, end) {
			return true
		}
	}
	return false
}

func (s *Service) Accept(ctx context.Context, caller authctx.Caller, id string) (*Reservation, error) {
	return s.decide(ctx, caller, id, StatusAccepted)
}

func (s *Service) Reject(ctx context.Context, caller authctx.Caller, id string) (*Reservation, error) {
	return s.decide(ctx, caller, id, StatusRejected)
}

func (s *Service) decide(ctx context.Context, caller authctx.Caller, id string, to Status) (*Reservation, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: reservation id is required", ErrBadRequest)
	}
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.VolunteerID != caller.UID && caller.Role != authctx.RoleAdmin {
		return nil, fmt.Errorf("%w: only the assigned volunteer can decide", ErrUnauthorized)
	}

	now := s.clock.Now()
	out, err := s.store.Mutate(ctx, id, func(r Reservation) (Reservation, error) {
		return Transition(r, to, now, s.loc)
	})
	if err != nil {
		return nil, err
	}
	out.DerivedStatus = DeriveStatus(*out, now, s.loc)

	s.log.Info("reservation decided", zap.String("id", id), zap.String("status", string(to)), zap.String("by", caller.UID))

	s.publish(ctx, *out)
	if s.notifier != nil {
		if err := s.notifier.ReservationDecided(ctx, *out); err != nil {
			s.log.Warn("decision notification failed", zap.String("id", id), zap.Error(err))
		}
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, r Reservation) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Publish(ctx, r); err != nil {
		s.log.Warn("broadcast failed", zap.String("id", r.ID), zap.String("village", r.Village), zap.Error(err))
	}
}

// ListVillage is the village-wide feed used for browsing slots.
func (s *Service) ListVillage(ctx context.Context, village, from, to string) ([]Reservation, error) {
	village = utils.NormalizeVillage(village)
	if village == "" {
		return nil, fmt.Errorf("%w: village is required", ErrBadRequest)
	}
	if _, _, err := utils.ParseRange(from, to, s.maxDays); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	rs, err := s.store.ListByVillage(ctx, village, from, to)
	if err != nil {
		return nil, err
	}
	return WithDerived(rs, s.clock.Now(), s.loc), nil
}

// ListMine lists the caller's reservations as client or as volunteer.
func (s *Service) ListMine(ctx context.Context, caller authctx.Caller, as ListAs) ([]Reservation, error) {
	var (
		rs  []Reservation
		err error
	)
	switch as {
	case AsVolunteer:
		if !caller.Is(authctx.RoleVolunteer) {
			return nil, fmt.Errorf("%w: volunteer role required", ErrUnauthorized)
		}
		rs, err = s.store.ListByVolunteer(ctx, caller.UID, "", "")
	case AsClient, "":
		rs, err = s.store.ListByClient(ctx, caller.UID)
	default:
		return nil, fmt.Errorf("%w: as must be client or volunteer", ErrBadRequest)
	}
	if err != nil {
		return nil, err
	}
	return WithDerived(rs, s.clock.Now(), s.loc), nil
}

// HasActiveReservations implements volunteer.ActiveReservations.
func (s *Service) HasActiveReservations(ctx context.Context, volunteerID string, now time.Time) (bool, error) {
	today := now.In(s.loc).Format(utils.DateLayout)
	rs, err := s.store.ListByVolunteer(ctx, volunteerID, today, "")
	if err != nil {
		return false, err
	}
	for _, r := range rs {
		if Occupies(r, now, s.loc) {
			return true, nil
		}
	}
	return false, nil
}
