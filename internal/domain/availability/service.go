package availability

import (
	"context"
	"fmt"
	"time"

	"villagewalks/backend/internal/authctx"
	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/utils"

	"go.uber.org/zap"
)

type Store interface {
	ListByVolunteer(ctx context.Context, volunteerID string) ([]Window, error)
	Replace(ctx context.Context, volunteerID string, windows []Window, now time.Time) ([]Window, error)
}

type Service struct {
	store Store
	clock clock.Clock
	log   *zap.Logger
}

func NewService(store Store, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{store: store, clock: clk, log: log}
}

// Set replaces the caller's weekly availability.
func (s *Service) Set(ctx context.Context, caller authctx.Caller, in SetAvailabilityInput) ([]Window, error) {
	if !caller.Is(authctx.RoleVolunteer) {
		return nil, fmt.Errorf("%w: volunteer role required", ErrUnauthorized)
	}
	in.Trim()
	if err := ValidateWindows(in); err != nil {
		return nil, err
	}

	// Stored as zero-padded HH:MM so string comparisons on read stay ordered.
	windows := make([]Window, 0, len(in.Windows))
	for _, w := range in.Windows {
		start, _ := utils.ParseClock(w.StartTime)
		end, _ := utils.ParseClock(w.EndTime)
		windows = append(windows, Window{
			DayOfWeek: w.DayOfWeek,
			StartTime: utils.FormatClock(start),
			EndTime:   utils.FormatClock(end),
		})
	}

	out, err := s.store.Replace(ctx, caller.UID, windows, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.log.Info("availability replaced", zap.String("volunteer", caller.UID), zap.Int("windows", len(out)))
	return out, nil
}

func (s *Service) List(ctx context.Context, caller authctx.Caller) ([]Window, error) {
	if !caller.Is(authctx.RoleVolunteer) {
		return nil, fmt.Errorf("%w: volunteer role required", ErrUnauthorized)
	}
	return s.store.ListByVolunteer(ctx, caller.UID)
}

// ForVolunteer is the read used by slot aggregation and booking checks.
func (s *Service) ForVolunteer(ctx context.Context, volunteerID string) ([]Window, error) {
	return s.store.ListByVolunteer(ctx, volunteerID)
}

// ForDay filters windows down to one ISO weekday.
func ForDay(windows []Window, dayOfWeek int) []Window {
	out := []Window{}
	for _, w := range windows {
		if w.DayOfWeek == dayOfWeek {
			out = append(out, w)
		}
	}
	return out
}
