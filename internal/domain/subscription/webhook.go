package subscription

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const maxWebhookBytes = int64(65536)

// VerifyEvent checks the Stripe-Signature header against the raw payload.
func (r *Reconciler) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, r.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, ErrSignature
	}
	return event, nil
}

// HandleWebhook processes incoming Stripe webhooks. Verified events are
// acknowledged with 200 even when applying them fails; the failure is
// logged and the next lifecycle event repairs the state.
func (r *Reconciler) HandleWebhook(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxWebhookBytes)

	payload, err := io.ReadAll(req.Body)
	if err != nil {
		r.log.Warn("webhook: error reading request body", zap.Error(err))
		http.Error(w, "Error reading request body", http.StatusServiceUnavailable)
		return
	}

	event, err := r.VerifyEvent(payload, req.Header.Get("Stripe-Signature"))
	if err != nil {
		r.log.Warn("webhook: signature verification failed", zap.String("remote", req.RemoteAddr))
		http.Error(w, "Webhook signature verification failed", http.StatusBadRequest)
		return
	}

	r.log.Info("webhook: received event", zap.String("type", string(event.Type)), zap.String("id", event.ID))

	if err := r.HandleEvent(req.Context(), event); err != nil {
		if IsErrBadRequest(err) {
			r.log.Warn("webhook: malformed event", zap.String("id", event.ID), zap.Error(err))
			http.Error(w, "Error parsing webhook JSON", http.StatusBadRequest)
			return
		}
		r.log.Error("webhook: handling failed", zap.String("type", string(event.Type)), zap.String("id", event.ID), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
