package subscription

import (
	"context"
	"fmt"
	"strings"

	"villagewalks/backend/internal/authctx"
	"villagewalks/backend/internal/domain/volunteer"

	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

type CreateCheckoutInput struct {
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

func (in *CreateCheckoutInput) Trim() {
	in.SuccessURL = strings.TrimSpace(in.SuccessURL)
	in.CancelURL = strings.TrimSpace(in.CancelURL)
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type ConfirmInput struct {
	SessionID string `json:"sessionId"`
}

// CreateCheckout opens a subscription-mode checkout for the calling
// volunteer, reusing the stored Stripe customer when there is one.
func (r *Reconciler) CreateCheckout(ctx context.Context, caller authctx.Caller, in CreateCheckoutInput) (*CheckoutResult, error) {
	if !caller.Is(authctx.RoleVolunteer) {
		return nil, fmt.Errorf("%w: volunteer role required", ErrUnauthorized)
	}
	in.Trim()
	if in.SuccessURL == "" || in.CancelURL == "" {
		return nil, fmt.Errorf("%w: successUrl and cancelUrl are required", ErrBadRequest)
	}
	if r.cfg.PriceMonthly == "" {
		return nil, fmt.Errorf("%w: subscription price not configured", ErrBadRequest)
	}

	v, err := r.volunteers.Get(ctx, caller.UID)
	if err != nil && !volunteer.IsErrNotFound(err) {
		return nil, err
	}
	customerID := ""
	if v != nil {
		customerID = v.StripeCustomerID
	}

	if customerID == "" {
		email := caller.Email
		if email == "" {
			if p, err := r.profiles.Get(ctx, caller.UID); err == nil {
				email = p.Email
			}
		}
		params := &stripe.CustomerParams{
			Metadata: map[string]string{"userId": caller.UID},
		}
		if email != "" {
			params.Email = stripe.String(email)
		}
		c, err := r.provider.CreateCustomer(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		customerID = c.ID
		if err := r.volunteers.LinkBilling(ctx, caller.UID, customerID, "", r.clock.Now()); err != nil {
			r.log.Warn("failed to save customer id", zap.String("volunteer", caller.UID), zap.Error(err))
		}
	}

	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(caller.UID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(withSessionID(in.SuccessURL)),
		CancelURL:         stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(r.cfg.PriceMonthly), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"userId": caller.UID},
		},
	}
	params.AddMetadata("userId", caller.UID)

	sess, err := r.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	r.log.Info("checkout session created", zap.String("volunteer", caller.UID), zap.String("session", sess.ID))
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// Confirm is the post-checkout confirmation the client calls when it comes
// back from the payment page. It runs the same path as the webhook.
func (r *Reconciler) Confirm(ctx context.Context, caller authctx.Caller, in ConfirmInput) (*volunteer.Volunteer, error) {
	if caller.IsZero() {
		return nil, ErrUnauthorized
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrBadRequest)
	}

	cs, err := r.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: checkout session", ErrNotFound)
	}
	if userRef(cs) != caller.UID {
		return nil, fmt.Errorf("%w: checkout belongs to another user", ErrUnauthorized)
	}
	subID := subscriptionID(cs)
	if subID == "" {
		return nil, ErrMissingSubscription
	}
	if err := r.completeCheckout(ctx, audit{}, caller.UID, customerID(cs.Customer), subID); err != nil {
		return nil, err
	}
	return r.volunteers.Get(ctx, caller.UID)
}

func withSessionID(url string) string {
	if strings.Contains(url, "{CHECKOUT_SESSION_ID}") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "session_id={CHECKOUT_SESSION_ID}"
}
