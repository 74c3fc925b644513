package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"villagewalks/backend/internal/authctx"
	"villagewalks/backend/internal/config"
	"villagewalks/backend/internal/domain/availability"
	"villagewalks/backend/internal/domain/notifications"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/domain/slots"
	"villagewalks/backend/internal/domain/subscription"
	"villagewalks/backend/internal/domain/volunteer"
	"villagewalks/backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Cfg      config.Config
	Log      *zap.Logger
	Verifier middleware.TokenVerifier

	VolunteerSvc     *volunteer.Service
	AvailabilitySvc  *availability.Service
	ReservationSvc   *reservation.Service
	SlotsSvc         *slots.Service
	NotificationsSvc *notifications.Service
	// Reconciler is nil when Stripe is not configured.
	Reconciler *subscription.Reconciler
	Realtime   http.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.CORS(d.Cfg.AllowedOrigins, d.Log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, 200, map[string]any{"ok": true, "ts": time.Now().UTC().Format(time.RFC3339)})
	})

	// ===== Stripe webhook (no auth, signature checked) =====
	if d.Reconciler != nil {
		r.Post("/v1/stripe/webhook", d.Reconciler.HandleWebhook)
	}

	bookingLimit := middleware.NewRateLimiter(d.Cfg.Engine.BookingsPerMin)

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.WithAuth(d.Verifier, d.Log))

		if d.Realtime != nil {
			pr.Get("/v1/ws", d.Realtime.ServeHTTP)
		}

		// ===== Slots & reservations =====
		pr.Get("/v1/villages/{village}/slots", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			out, err := d.SlotsSvc.List(r.Context(), chi.URLParam(r, "village"), q.Get("from"), q.Get("to"))
			if err != nil {
				status, msg := mapReservationError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Get("/v1/villages/{village}/reservations", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			out, err := d.ReservationSvc.ListVillage(r.Context(), chi.URLParam(r, "village"), q.Get("from"), q.Get("to"))
			if err != nil {
				status, msg := mapReservationError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Get("/v1/reservations/mine", func(w http.ResponseWriter, r *http.Request) {
			caller := callerOf(r)
			as := reservation.ListAs(r.URL.Query().Get("as"))
			out, err := d.ReservationSvc.ListMine(r.Context(), caller, as)
			if err != nil {
				status, msg := mapReservationError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.With(bookingLimit.Limit).Post("/v1/reservations", func(w http.ResponseWriter, r *http.Request) {
			var in reservation.CreateReservationInput
			if !decode(w, r, &in) {
				return
			}
			out, err := d.SlotsSvc.Book(r.Context(), callerOf(r), in)
			if err != nil {
				status, msg := mapReservationError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 201, out)
		})

		pr.Post("/v1/reservations/{id}/accept", func(w http.ResponseWriter, r *http.Request) {
			out, err := d.ReservationSvc.Accept(r.Context(), callerOf(r), chi.URLParam(r, "id"))
			if err != nil {
				status, msg := mapReservationError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Post("/v1/reservations/{id}/reject", func(w http.ResponseWriter, r *http.Request) {
			out, err := d.ReservationSvc.Reject(r.Context(), callerOf(r), chi.URLParam(r, "id"))
			if err != nil {
				status, msg := mapReservationError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		// ===== Volunteer settings =====
		pr.Get("/v1/volunteers/me", func(w http.ResponseWriter, r *http.Request) {
			out, err := d.VolunteerSvc.Dashboard(r.Context(), callerOf(r))
			if err != nil {
				status, msg := mapVolunteerError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Put("/v1/volunteers/me/holiday", func(w http.ResponseWriter, r *http.Request) {
			var in volunteer.SetHolidayInput
			if !decode(w, r, &in) {
				return
			}
			out, err := d.VolunteerSvc.SetHolidayMode(r.Context(), callerOf(r), in.HolidayMode)
			if err != nil {
				status, msg := mapVolunteerError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Put("/v1/volunteers/me/villages", func(w http.ResponseWriter, r *http.Request) {
			var in volunteer.SetVillagesInput
			if !decode(w, r, &in) {
				return
			}
			out, err := d.VolunteerSvc.SetVillages(r.Context(), callerOf(r), in)
			if err != nil {
				status, msg := mapVolunteerError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Get("/v1/volunteers/me/availability", func(w http.ResponseWriter, r *http.Request) {
			out, err := d.AvailabilitySvc.List(r.Context(), callerOf(r))
			if err != nil {
				status, msg := mapAvailabilityError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		pr.Put("/v1/volunteers/me/availability", func(w http.ResponseWriter, r *http.Request) {
			var in availability.SetAvailabilityInput
			if !decode(w, r, &in) {
				return
			}
			out, err := d.AvailabilitySvc.Set(r.Context(), callerOf(r), in)
			if err != nil {
				status, msg := mapAvailabilityError(err)
				Fail(w, status, msg)
				return
			}
			WriteJSON(w, 200, out)
		})

		// ===== Notifications =====
		if d.NotificationsSvc != nil {
			pr.Get("/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
				limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
				out, err := d.NotificationsSvc.List(r.Context(), callerOf(r), limit)
				if err != nil {
					Fail(w, 500, err.Error())
					return
				}
				WriteJSON(w, 200, out)
			})
			pushToken := func(apply func(ctx context.Context, c authctx.Caller, in notifications.PushTokenInput) error) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					var in notifications.PushTokenInput
					if !decode(w, r, &in) {
						return
					}
					if err := apply(r.Context(), callerOf(r), in); err != nil {
						status, msg := mapNotificationError(err)
						Fail(w, status, msg)
						return
					}
					WriteJSON(w, 200, map[string]bool{"ok": true})
				}
			}
			pr.Put("/v1/me/push-tokens", pushToken(d.NotificationsSvc.RegisterToken))
			pr.Delete("/v1/me/push-tokens", pushToken(d.NotificationsSvc.UnregisterToken))
		}

		// ===== Billing =====
		if d.Reconciler != nil {
			pr.Post("/v1/billing/checkout", func(w http.ResponseWriter, r *http.Request) {
				var in subscription.CreateCheckoutInput
				if !decode(w, r, &in) {
					return
				}
				out, err := d.Reconciler.CreateCheckout(r.Context(), callerOf(r), in)
				if err != nil {
					status, msg := mapSubscriptionError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, out)
			})

			pr.Post("/v1/billing/confirm", func(w http.ResponseWriter, r *http.Request) {
				var in subscription.ConfirmInput
				if !decode(w, r, &in) {
					return
				}
				out, err := d.Reconciler.Confirm(r.Context(), callerOf(r), in)
				if err != nil {
					status, msg := mapSubscriptionError(err)
					Fail(w, status, msg)
					return
				}
				WriteJSON(w, 200, out)
			})
		}
	})

	return r
}

func callerOf(r *http.Request) authctx.Caller {
	c, _ := authctx.FromContext(r.Context())
	return c
}

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Fail(w, 400, "invalid json")
		return false
	}
	return true
}

func mapReservationError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case reservation.IsErrBadRequest(err), volunteer.IsErrBadRequest(err), availability.IsErrBadRequest(err):
		return 400, err.Error()
	case reservation.IsErrUnauthorized(err):
		return 403, err.Error()
	case reservation.IsErrNotFound(err), volunteer.IsErrNotFound(err):
		return 404, err.Error()
	case reservation.IsErrConflict(err):
		return 409, err.Error()
	default:
		return 500, err.Error()
	}
}

func mapVolunteerError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case volunteer.IsErrBadRequest(err):
		return 400, err.Error()
	case volunteer.IsErrUnauthorized(err):
		return 403, err.Error()
	case volunteer.IsErrNotFound(err):
		return 404, err.Error()
	case volunteer.IsErrConflict(err):
		return 409, err.Error()
	default:
		return 500, err.Error()
	}
}

func mapAvailabilityError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case availability.IsErrBadRequest(err):
		return 400, err.Error()
	case availability.IsErrUnauthorized(err):
		return 403, err.Error()
	case availability.IsErrNotFound(err):
		return 404, err.Error()
	default:
		return 500, err.Error()
	}
}

func mapSubscriptionError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case subscription.IsErrBadRequest(err):
		return 400, err.Error()
	case subscription.IsErrUnauthorized(err):
		return 403, err.Error()
	case subscription.IsErrNotFound(err):
		return 404, err.Error()
	case subscription.IsErrMissingSubscription(err):
		return 409, err.Error()
	default:
		return 500, err.Error()
	}
}

func mapNotificationError(err error) (int, string) {
	switch {
	case errors.Is(err, notifications.ErrBadRequest):
		return 400, err.Error()
	case errors.Is(err, notifications.ErrUnauthorized):
		return 401, err.Error()
	default:
		return 500, err.Error()
	}
}
