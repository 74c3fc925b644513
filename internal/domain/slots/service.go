package slots

import (
	"context"
	"fmt"
	"time"

	"villagewalks/backend/internal/authctx"
	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/domain/availability"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/domain/volunteer"
	"villagewalks/backend/internal/utils"

	"go.uber.org/zap"
)

type Volunteers interface {
	Eligible(ctx context.Context, village string, now time.Time) ([]volunteer.Volunteer, error)
}

type Windows interface {
	ForVolunteer(ctx context.Context, volunteerID string) ([]availability.Window, error)
}

type Reservations interface {
	ListVillage(ctx context.Context, village, from, to string) ([]reservation.Reservation, error)
	Create(ctx context.Context, caller authctx.Caller, in reservation.CreateReservationInput) (*reservation.Reservation, error)
}

type Service struct {
	volunteers   Volunteers
	windows      Windows
	reservations Reservations
	clock        clock.Clock
	loc          *time.Location
	maxDays      int
	log          *zap.Logger
}

func NewService(volunteers Volunteers, windows Windows, reservations Reservations, clk clock.Clock, loc *time.Location, maxDays int, log *zap.Logger) *Service {
	return &Service{
		volunteers:   volunteers,
		windows:      windows,
		reservations: reservations,
		clock:        clk,
		loc:          loc,
		maxDays:      maxDays,
		log:          log,
	}
}

// List returns the merged slots of village for every day in [from,to].
func (s *Service) List(ctx context.Context, village, from, to string) ([]Day, error) {
	days, _, err := s.list(ctx, village, from, to)
	return days, err
}

func (s *Service) list(ctx context.Context, village, from, to string) ([]Day, []reservation.Reservation, error) {
	village = utils.NormalizeVillage(village)
	if village == "" {
		return nil, nil, fmt.Errorf("%w: village is required", reservation.ErrBadRequest)
	}
	f, t, err := utils.ParseRange(from, to, s.maxDays)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", reservation.ErrBadRequest, err)
	}

	now := s.clock.Now()
	eligible, err := s.volunteers.Eligible(ctx, village, now)
	if err != nil {
		return nil, nil, err
	}

	windows := make(map[string][]availability.Window, len(eligible))
	for _, v := range eligible {
		ws, err := s.windows.ForVolunteer(ctx, v.UID)
		if err != nil {
			return nil, nil, err
		}
		windows[v.UID] = ws
	}

	feed, err := s.reservations.ListVillage(ctx, village, from, to)
	if err != nil {
		return nil, nil, err
	}

	days, err := Aggregate(f, t, windows, feed, now, s.loc)
	if err != nil {
		return nil, nil, err
	}
	s.log.Debug("slots aggregated",
		zap.String("village", village),
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("volunteers", len(eligible)))
	return days, feed, nil
}

// Book creates a reservation. When no volunteer is named the slot's
// contributors are resolved with PickVolunteer.
func (s *Service) Book(ctx context.Context, caller authctx.Caller, in reservation.CreateReservationInput) (*reservation.Reservation, error) {
	in.Trim()
	if in.VolunteerID != "" {
		return s.reservations.Create(ctx, caller, in)
	}
	if in.Date == "" || in.StartTime == "" {
		return nil, fmt.Errorf("%w: date and startTime are required", reservation.ErrBadRequest)
	}

	days, feed, err := s.list(ctx, in.Village, in.Date, in.Date)
	if err != nil {
		return nil, err
	}
	start, err := utils.ParseClock(in.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: startTime must be HH:MM", reservation.ErrBadRequest)
	}
	want := utils.FormatClock(start)

	for _, d := range days {
		for _, slot := range d.Slots {
			if slot.Time != want {
				continue
			}
			id, ok := PickVolunteer(slot, feed, s.clock.Now(), s.loc)
			if !ok {
				return nil, fmt.Errorf("%w: slot already reserved", reservation.ErrConflict)
			}
			in.VolunteerID = id
			return s.reservations.Create(ctx, caller, in)
		}
	}
	return nil, fmt.Errorf("%w: no volunteer available at that time", reservation.ErrConflict)
}
