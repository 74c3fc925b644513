package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"villagewalks/backend/internal/authctx"
	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/domain/user"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
)

type Store interface {
	Add(ctx context.Context, uid string, n Notification) error
	List(ctx context.Context, uid string, limit int) ([]Notification, error)
}

// Profiles holds the push tokens each signed-in device registers.
type Profiles interface {
	Get(ctx context.Context, uid string) (*user.Profile, error)
	AddPushToken(ctx context.Context, uid, token string) error
	RemovePushToken(ctx context.Context, uid, token string) error
}

// Sender is satisfied by *messaging.Client.
type Sender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Service struct {
	store    Store
	profiles Profiles
	sender   Sender
	clock    clock.Clock
	log      *zap.Logger
}

// NewService builds the notifier. sender may be nil when messaging is not
// configured; in-app notifications are still stored.
func NewService(store Store, profiles Profiles, sender Sender, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{store: store, profiles: profiles, sender: sender, clock: clk, log: log}
}

func (s *Service) ReservationCreated(ctx context.Context, r reservation.Reservation) error {
	return s.notify(ctx, r.VolunteerID, Notification{
		Title: "New walk request",
		Body:  fmt.Sprintf("%s at %s in %s", r.ReservationDate, r.StartTime, r.Village),
		Type:  TypeReservationRequested,
		Data:  map[string]string{"reservationId": r.ID, "village": r.Village},
	})
}

func (s *Service) ReservationDecided(ctx context.Context, r reservation.Reservation) error {
	return s.notify(ctx, r.ClientID, Notification{
		Title: "Walk request " + string(r.Status),
		Body:  fmt.Sprintf("%s at %s in %s", r.ReservationDate, r.StartTime, r.Village),
		Type:  TypeReservationDecided,
		Data:  map[string]string{"reservationId": r.ID, "status": string(r.Status)},
	})
}

func (s *Service) notify(ctx context.Context, uid string, n Notification) error {
	n.CreatedAt = s.clock.Now()
	if err := s.store.Add(ctx, uid, n); err != nil {
		return err
	}
	if s.sender == nil {
		return nil
	}

	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load push tokens: %w", err)
	}
	if len(p.FCMTokens) == 0 {
		return nil
	}

	resp, err := s.sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       p.FCMTokens,
		Notification: &messaging.Notification{Title: n.Title, Body: n.Body},
		Data:         n.Data,
	})
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	if resp.FailureCount > 0 {
		s.log.Debug("some push tokens failed", zap.String("uid", uid), zap.Int("failed", resp.FailureCount))
	}
	return nil
}

func (s *Service) List(ctx context.Context, caller authctx.Caller, limit int) ([]Notification, error) {
	if caller.IsZero() {
		return nil, ErrUnauthorized
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.List(ctx, caller.UID, limit)
}

type PushTokenInput struct {
	Token string `json:"token"`
}

// RegisterToken adds a device token the caller wants pushes delivered to.
func (s *Service) RegisterToken(ctx context.Context, caller authctx.Caller, in PushTokenInput) error {
	token, err := checkToken(caller, in)
	if err != nil {
		return err
	}
	if err := s.profiles.AddPushToken(ctx, caller.UID, token); err != nil {
		return err
	}
	s.log.Debug("push token registered", zap.String("uid", caller.UID))
	return nil
}

func (s *Service) UnregisterToken(ctx context.Context, caller authctx.Caller, in PushTokenInput) error {
	token, err := checkToken(caller, in)
	if err != nil {
		return err
	}
	return s.profiles.RemovePushToken(ctx, caller.UID, token)
}

func checkToken(caller authctx.Caller, in PushTokenInput) (string, error) {
	if caller.IsZero() {
		return "", ErrUnauthorized
	}
	token := strings.TrimSpace(in.Token)
	if token == "" {
		return "", fmt.Errorf("%w: token is required", ErrBadRequest)
	}
	return token, nil
}
