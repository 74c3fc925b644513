package volunteer

import (
	"context"
	"fmt"
	"time"

	"villagewalks/backend/internal/authctx"
	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/utils"

	"go.uber.org/zap"
)

// Store is the data-access boundary for volunteer records.
type Store interface {
	Get(ctx context.Context, uid string) (*Volunteer, error)
	ListByVillage(ctx context.Context, village string) ([]Volunteer, error)
	SetHolidayMode(ctx context.Context, uid string, on bool, now time.Time) error
	SetVillages(ctx context.Context, uid string, villages []string, now time.Time) error
	SetPersonalID(ctx context.Context, uid, personalID string, now time.Time) error
	LinkBilling(ctx context.Context, uid, customerID, subscriptionID string, now time.Time) error
	ApplySubscription(ctx context.Context, m BillingMatch, st SubscriptionState, now time.Time) ([]string, error)
	RecordSubscriptionEvent(ctx context.Context, uid string, ev SubscriptionEvent) error
}

// ActiveReservations answers whether a volunteer still holds reservations
// that occupy a slot (pending or accepted and not yet over).
type ActiveReservations interface {
	HasActiveReservations(ctx context.Context, volunteerID string, now time.Time) (bool, error)
}

type Options struct {
	GracePeriod     time.Duration
	VillageCooldown time.Duration
}

type Service struct {
	store  Store
	active ActiveReservations
	clock  clock.Clock
	opts   Options
	log    *zap.Logger
}

func NewService(store Store, clk clock.Clock, opts Options, log *zap.Logger) *Service {
	return &Service{store: store, clock: clk, opts: opts, log: log}
}

// SetActiveReservations wires the reservation side, which is built after us.
func (s *Service) SetActiveReservations(a ActiveReservations) {
	s.active = a
}

func (s *Service) GracePeriod() time.Duration { return s.opts.GracePeriod }

// Load returns the volunteer or a zero record when none exists yet.
func (s *Service) Load(ctx context.Context, uid string) (*Volunteer, error) {
	v, err := s.store.Get(ctx, uid)
	if IsErrNotFound(err) {
		return &Volunteer{UID: uid, Villages: []string{}}, nil
	}
	return v, err
}

func (s *Service) Dashboard(ctx context.Context, caller authctx.Caller) (*Dashboard, error) {
	if !caller.Is(authctx.RoleVolunteer) {
		return nil, fmt.Errorf("%w: volunteer role required", ErrUnauthorized)
	}
	v, err := s.Load(ctx, caller.UID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	return &Dashboard{
		Volunteer:         *v,
		Approved:          v.Approved(),
		SubscriptionValid: v.SubscriptionValid(now, s.opts.GracePeriod),
		Eligible:          v.Eligible(now, s.opts.GracePeriod),
		VillagesLockedTil: v.VillagesLockedUntil(s.opts.VillageCooldown),
	}, nil
}

func (s *Service) SetHolidayMode(ctx context.Context, caller authctx.Caller, on bool) (*Dashboard, error) {
	if !caller.Is(authctx.RoleVolunteer) {
		return nil, fmt.Errorf("%w: volunteer role required", ErrUnauthorized)
	}
	if err := s.store.SetHolidayMode(ctx, caller.UID, on, s.clock.Now()); err != nil {
		return nil, err
	}
	s.log.Info("holiday mode changed", zap.String("volunteer", caller.UID), zap.Bool("on", on))
	return s.Dashboard(ctx, caller)
}

// SetVillages replaces the covered villages. The first assignment is free;
// any later change needs the cool-down to have elapsed and no occupying
// reservations left.
func (s *Service) SetVillages(ctx context.Context, caller authctx.Caller, in SetVillagesInput) (*Dashboard, error) {
	if !caller.Is(authctx.RoleVolunteer) {
		return nil, fmt.Errorf("%w: volunteer role required", ErrUnauthorized)
	}
	in.Trim()
	villages := utils.NormalizeVillages(in.Villages)
	if len(villages) == 0 {
		return nil, fmt.Errorf("%w: at least one village is required", ErrBadRequest)
	}

	v, err := s.Load(ctx, caller.UID)
	if err != nil {
		return nil, err
	}
	if utils.SameSet(v.Villages, villages) {
		return s.Dashboard(ctx, caller)
	}

	now := s.clock.Now()
	if until := v.VillagesLockedUntil(s.opts.VillageCooldown); until != nil && now.Before(*until) {
		return nil, fmt.Errorf("%w: villages can be changed again after %s", ErrConflict, until.Format(utils.DateLayout))
	}
	if len(v.Villages) > 0 && s.active != nil {
		busy, err := s.active.HasActiveReservations(ctx, caller.UID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to check reservations: %w", err)
		}
		if busy {
			return nil, fmt.Errorf("%w: pending or accepted reservations must be settled first", ErrConflict)
		}
	}

	if err := s.store.SetVillages(ctx, caller.UID, villages, now); err != nil {
		return nil, err
	}
	s.log.Info("villages changed", zap.String("volunteer", caller.UID), zap.Strings("villages", villages))
	return s.Dashboard(ctx, caller)
}

// Eligible lists the volunteers of village that contribute slots at now.
func (s *Service) Eligible(ctx context.Context, village string, now time.Time) ([]Volunteer, error) {
	all, err := s.store.ListByVillage(ctx, village)
	if err != nil {
		return nil, err
	}
	out := make([]Volunteer, 0, len(all))
	for _, v := range all {
		if v.Eligible(now, s.opts.GracePeriod) {
			out = append(out, v)
		}
	}
	return out, nil
}
