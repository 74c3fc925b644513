package clientsync

import (
	"context"
	"sync/atomic"

	"villagewalks/backend/internal/domain/reservation"

	"go.uber.org/zap"
)

// Booker submits bookings for one village view and keeps its Projection
// converged with the server afterwards.
type Booker struct {
	api     *API
	session Session
	proj    *Projection
	log     *zap.Logger

	Village  string
	From, To string

	loading atomic.Bool
	// caller's own reservations from the last refresh
	mine atomic.Pointer[[]reservation.Reservation]
}

func NewBooker(api *API, s Session, proj *Projection, village, from, to string, log *zap.Logger) *Booker {
	return &Booker{api: api, session: s, proj: proj, Village: village, From: from, To: to, log: log}
}

// Loading reports whether a submission is in flight.
func (b *Booker) Loading() bool { return b.loading.Load() }

// Book submits one booking. A second call while the first is in flight fails
// with ErrBusy without contacting the server. Success or failure, the view is
// re-fetched afterwards on a best-effort basis.
func (b *Booker) Book(ctx context.Context, in reservation.CreateReservationInput) (*reservation.Reservation, error) {
	if !b.loading.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer b.loading.Store(false)

	if in.Village == "" {
		in.Village = b.Village
	}
	res, err := b.api.CreateReservation(ctx, b.session, in)
	if err == nil {
		b.proj.ApplyOptimistic(*res)
	}
	b.Refresh(ctx)
	return res, err
}

// Refresh re-fetches slots, the caller's reservations and the village
// reservations. Failures are logged and leave the previous state in place.
func (b *Booker) Refresh(ctx context.Context) {
	days, err := b.api.Slots(ctx, b.session, b.Village, b.From, b.To)
	if err != nil {
		b.log.Warn("slot refresh failed", zap.String("village", b.Village), zap.Error(err))
	}
	if mine, err := b.api.MyReservations(ctx, b.session, reservation.AsClient); err != nil {
		b.log.Warn("own reservations refresh failed", zap.Error(err))
	} else {
		b.mine.Store(&mine)
	}
	rs, err := b.api.VillageReservations(ctx, b.session, b.Village, b.From, b.To)
	if err != nil {
		b.log.Warn("village reservations refresh failed", zap.String("village", b.Village), zap.Error(err))
	}
	b.proj.Replace(rs, days)
}

// Mine returns the caller's reservations as of the last successful refresh.
func (b *Booker) Mine() []reservation.Reservation {
	if p := b.mine.Load(); p != nil {
		return *p
	}
	return nil
}
