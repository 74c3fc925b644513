package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/domain/user"
	"villagewalks/backend/internal/domain/volunteer"

	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

type Config struct {
	WebhookSecret string
	PriceMonthly  string
	RecheckDelay  time.Duration
}

// Volunteers is satisfied by volunteer.Repo.
type Volunteers interface {
	Get(ctx context.Context, uid string) (*volunteer.Volunteer, error)
	LinkBilling(ctx context.Context, uid, customerID, subscriptionID string, now time.Time) error
	ApplySubscription(ctx context.Context, m volunteer.BillingMatch, st volunteer.SubscriptionState, now time.Time) ([]string, error)
	RecordSubscriptionEvent(ctx context.Context, uid string, ev volunteer.SubscriptionEvent) error
}

type Profiles interface {
	Get(ctx context.Context, uid string) (*user.Profile, error)
}

// Reconciler keeps volunteer billing fields in line with Stripe. Every write
// is derived from the latest provider object, so replays and reordering
// converge on the same stored state.
type Reconciler struct {
	volunteers Volunteers
	profiles   Profiles
	provider   Provider
	sched      *Scheduler
	clock      clock.Clock
	cfg        Config
	log        *zap.Logger
}

func NewReconciler(volunteers Volunteers, profiles Profiles, provider Provider, clk clock.Clock, cfg Config, log *zap.Logger) *Reconciler {
	return &Reconciler{
		volunteers: volunteers,
		profiles:   profiles,
		provider:   provider,
		sched:      NewScheduler(clk, log),
		clock:      clk,
		cfg:        cfg,
		log:        log,
	}
}

// Close cancels pending re-checks.
func (r *Reconciler) Close() { r.sched.Close() }

// PendingRechecks reports how many checkout re-checks are armed.
func (r *Reconciler) PendingRechecks() int { return r.sched.Pending() }

type audit struct {
	eventID   string
	eventType string
}

// HandleEvent applies one verified provider event. Unknown types are
// ignored. Only malformed payloads return ErrBadRequest.
func (r *Reconciler) HandleEvent(ctx context.Context, ev stripe.Event) error {
	a := audit{eventID: ev.ID, eventType: string(ev.Type)}

	switch ev.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return fmt.Errorf("%w: checkout session: %v", ErrBadRequest, err)
		}
		return r.checkoutCompleted(ctx, a, &cs)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: subscription: %v", ErrBadRequest, err)
		}
		return r.sync(ctx, a, sub.ID, customerID(sub.Customer), &sub)

	case "invoice.paid", "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return fmt.Errorf("%w: invoice: %v", ErrBadRequest, err)
		}
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			r.log.Debug("invoice without subscription ignored", zap.String("event", ev.ID))
			return nil
		}
		return r.sync(ctx, a, inv.Subscription.ID, customerID(inv.Customer), nil)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: subscription: %v", ErrBadRequest, err)
		}
		return r.deleted(ctx, a, &sub, ev.Created)

	default:
		r.log.Debug("unhandled event type", zap.String("type", string(ev.Type)), zap.String("event", ev.ID))
		return nil
	}
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, a audit, cs *stripe.CheckoutSession) error {
	if cs.Mode != stripe.CheckoutSessionModeSubscription {
		return nil
	}
	uid := userRef(cs)
	if uid == "" {
		r.log.Warn("checkout without user reference", zap.String("session", cs.ID))
		return nil
	}

	subID := subscriptionID(cs)
	if subID == "" {
		r.scheduleRecheck(a, cs.ID, uid)
		return nil
	}
	return r.completeCheckout(ctx, a, uid, customerID(cs.Customer), subID)
}

// scheduleRecheck arms the single delayed retry for a session that arrived
// without its subscription id. A second miss is dropped; the next lifecycle
// event repairs the state.
func (r *Reconciler) scheduleRecheck(a audit, sessionID, uid string) {
	r.log.Info("checkout missing subscription, re-check scheduled",
		zap.String("session", sessionID),
		zap.String("user", uid),
		zap.Duration("delay", r.cfg.RecheckDelay))

	r.sched.After(r.cfg.RecheckDelay, "checkout:"+sessionID, func(ctx context.Context) {
		cs, err := r.provider.GetCheckoutSession(ctx, sessionID)
		if err != nil {
			r.log.Warn("checkout re-check failed", zap.String("session", sessionID), zap.Error(err))
			return
		}
		subID := subscriptionID(cs)
		if subID == "" {
			r.log.Info("checkout still missing subscription, dropped", zap.String("session", sessionID))
			return
		}
		if err := r.completeCheckout(ctx, a, uid, customerID(cs.Customer), subID); err != nil {
			r.log.Warn("checkout re-check apply failed", zap.String("session", sessionID), zap.Error(err))
		}
	})
}

func (r *Reconciler) completeCheckout(ctx context.Context, a audit, uid, custID, subID string) error {
	if err := r.volunteers.LinkBilling(ctx, uid, custID, subID, r.clock.Now()); err != nil {
		return err
	}
	return r.sync(ctx, a, subID, custID, nil)
}

// sync resolves the authoritative subscription and writes its state. The
// event payload is only used when the provider cannot be reached.
func (r *Reconciler) sync(ctx context.Context, a audit, subID, custID string, payload *stripe.Subscription) error {
	if subID == "" {
		return fmt.Errorf("%w: subscription id", ErrBadRequest)
	}
	sub, err := r.provider.GetSubscription(ctx, subID)
	if err != nil {
		if payload == nil {
			return fmt.Errorf("failed to fetch subscription %s: %w", subID, err)
		}
		r.log.Warn("subscription fetch failed, using event payload", zap.String("subscription", subID), zap.Error(err))
		sub = payload
	}

	st := StateFrom(sub)
	if st.CustomerID == "" {
		st.CustomerID = custID
	}
	return r.apply(ctx, a, volunteer.BillingMatch{SubscriptionID: sub.ID, CustomerID: st.CustomerID}, st, string(sub.Status))
}

func (r *Reconciler) deleted(ctx context.Context, a audit, sub *stripe.Subscription, created int64) error {
	ended := created
	if sub.EndedAt != 0 {
		ended = sub.EndedAt
	}
	st := volunteer.SubscriptionState{
		Paid:           false,
		ExpiryDate:     time.Unix(ended, 0).UTC(),
		SubscriptionID: sub.ID,
	}
	return r.apply(ctx, a, volunteer.BillingMatch{SubscriptionID: sub.ID}, st, string(stripe.SubscriptionStatusCanceled))
}

func (r *Reconciler) apply(ctx context.Context, a audit, m volunteer.BillingMatch, st volunteer.SubscriptionState, status string) error {
	if m.Empty() {
		return nil
	}
	now := r.clock.Now()
	matched, err := r.volunteers.ApplySubscription(ctx, m, st, now)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		r.log.Info("no volunteer matched billing ids",
			zap.String("subscription", m.SubscriptionID),
			zap.String("customer", m.CustomerID),
			zap.String("event", a.eventID))
		return nil
	}

	for _, uid := range matched {
		r.log.Info("subscription state applied",
			zap.String("volunteer", uid),
			zap.String("status", status),
			zap.Bool("paid", st.Paid),
			zap.Time("expiry", st.ExpiryDate))
		if a.eventID == "" {
			continue
		}
		if err := r.volunteers.RecordSubscriptionEvent(ctx, uid, volunteer.SubscriptionEvent{
			EventID:        a.eventID,
			Type:           a.eventType,
			SubscriptionID: m.SubscriptionID,
			Status:         status,
			Paid:           st.Paid,
			ExpiryDate:     st.ExpiryDate,
			RecordedAt:     now,
		}); err != nil {
			r.log.Warn("failed to record subscription event", zap.String("volunteer", uid), zap.Error(err))
		}
	}
	return nil
}

// StateFrom maps a provider subscription to the stored billing state.
func StateFrom(sub *stripe.Subscription) volunteer.SubscriptionState {
	st := volunteer.SubscriptionState{
		Paid:           sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing,
		ExpiryDate:     time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		SubscriptionID: sub.ID,
		CustomerID:     customerID(sub.Customer),
	}
	if sub.Status == stripe.SubscriptionStatusCanceled && sub.EndedAt != 0 {
		st.ExpiryDate = time.Unix(sub.EndedAt, 0).UTC()
	}
	return st
}

func userRef(cs *stripe.CheckoutSession) string {
	if cs.ClientReferenceID != "" {
		return cs.ClientReferenceID
	}
	return cs.Metadata["userId"]
}

func subscriptionID(cs *stripe.CheckoutSession) string {
	if cs == nil || cs.Subscription == nil {
		return ""
	}
	return cs.Subscription.ID
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
