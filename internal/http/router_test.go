package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/config"
	"villagewalks/backend/internal/domain/availability"
	"villagewalks/backend/internal/domain/notifications"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/domain/slots"
	"villagewalks/backend/internal/domain/volunteer"
	apihttp "villagewalks/backend/internal/http"
	"villagewalks/backend/internal/realtime"
	"villagewalks/backend/internal/store"

	"firebase.google.com/go/v4/auth"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tokens map[string]*auth.Token

func (t tokens) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if tok, ok := t[idToken]; ok {
		return tok, nil
	}
	return nil, errors.New("unknown token")
}

type env struct {
	srv *httptest.Server
	clk *clock.Fake
	mem *store.Memory
	hub *realtime.Hub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	// Sunday noon; the scenario books the following Monday
	clk := clock.NewFake(time.Date(2025, 3, 9, 12, 0, 0, 0, loc))
	mem := store.NewMemory()
	log := zap.NewNop()
	cfg := config.Config{
		Engine: config.Engine{
			Timezone:        "Europe/Paris",
			GracePeriod:     72 * time.Hour,
			VillageCooldown: 720 * time.Hour,
			RecheckDelay:    10 * time.Second,
			MaxRangeDays:    31,
			BookingsPerMin:  100,
		},
	}

	volSvc := volunteer.NewService(mem.Volunteers, clk, volunteer.Options{
		GracePeriod:     cfg.Engine.GracePeriod,
		VillageCooldown: cfg.Engine.VillageCooldown,
	}, log)
	availSvc := availability.NewService(mem.Windows, clk, log)
	resSvc := reservation.NewService(mem.Reservations, volSvc, availSvc, clk, loc, cfg.Engine.MaxRangeDays, log)
	volSvc.SetActiveReservations(resSvc)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := realtime.NewHub(log)
	go hub.Run(ctx)
	resSvc.SetBroadcaster(hub)

	notifSvc := notifications.NewService(mem.Notifications, mem.Profiles, nil, clk, log)
	resSvc.SetNotifier(notifSvc)
	slotSvc := slots.NewService(volSvc, availSvc, resSvc, clk, loc, cfg.Engine.MaxRangeDays, log)

	verifier := tokens{
		"tok-c1": {UID: "C1", Claims: map[string]any{"role": "client"}},
		"tok-c2": {UID: "C2", Claims: map[string]any{"role": "client"}},
		"tok-v1": {UID: "V1", Claims: map[string]any{"role": "volunteer"}},
	}

	router := apihttp.NewRouter(apihttp.RouterDeps{
		Cfg:              cfg,
		Log:              log,
		Verifier:         verifier,
		VolunteerSvc:     volSvc,
		AvailabilitySvc:  availSvc,
		ReservationSvc:   resSvc,
		SlotsSvc:         slotSvc,
		NotificationsSvc: notifSvc,
		Realtime:         realtime.NewHandler(hub, nil, log),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	// V1 is approved and paid; availability and villages go through the API
	mem.Volunteers.Put(volunteer.Volunteer{UID: "V1", PersonalID: "P-001", Paid: true})
	return &env{srv: srv, clk: clk, mem: mem, hub: hub}
}

func (e *env) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *env) setupV1(t *testing.T) {
	t.Helper()
	status := e.do(t, http.MethodPut, "/v1/volunteers/me/availability", "tok-v1", map[string]any{
		"windows": []map[string]any{{"dayOfWeek": 1, "startTime": "08:00", "endTime": "09:00"}},
	}, nil)
	require.Equal(t, http.StatusOK, status)

	var dash volunteer.Dashboard
	status = e.do(t, http.MethodPut, "/v1/volunteers/me/villages", "tok-v1", map[string]any{"villages": []string{"caen"}}, &dash)
	require.Equal(t, http.StatusOK, status)
	require.True(t, dash.Eligible)
	require.Equal(t, []string{"CAEN"}, dash.Volunteer.Villages)
}

func TestRouter_CaenScenario(t *testing.T) {
	e := newEnv(t)
	e.setupV1(t)

	var days []slots.Day
	status := e.do(t, http.MethodGet, "/v1/villages/CAEN/slots?from=2025-03-10&to=2025-03-10", "tok-c1", nil, &days)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, days, 1)
	require.Len(t, days[0].Slots, 1)
	assert.Equal(t, "08:00", days[0].Slots[0].Time)
	assert.Equal(t, []string{"V1"}, days[0].Slots[0].VolunteerIDs)
	assert.True(t, days[0].Slots[0].Bookable)

	var first reservation.Reservation
	status = e.do(t, http.MethodPost, "/v1/reservations", "tok-c1", map[string]any{
		"village": "CAEN", "date": "2025-03-10", "startTime": "08:00", "dogId": "dog-1",
	}, &first)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "V1", first.VolunteerID)
	assert.Equal(t, reservation.StatusPending, first.Status)

	status = e.do(t, http.MethodPost, "/v1/reservations", "tok-c2", map[string]any{
		"volunteerId": "V1", "village": "CAEN", "date": "2025-03-10", "startTime": "08:00", "dogId": "dog-2",
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	status = e.do(t, http.MethodGet, "/v1/villages/CAEN/slots?from=2025-03-10&to=2025-03-10", "tok-c2", nil, &days)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, days[0].Slots[0].Reserved)
	assert.False(t, days[0].Slots[0].Bookable)

	status = e.do(t, http.MethodPost, "/v1/reservations/"+first.ID+"/accept", "tok-c2", nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	var accepted reservation.Reservation
	status = e.do(t, http.MethodPost, "/v1/reservations/"+first.ID+"/accept", "tok-v1", nil, &accepted)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, reservation.StatusAccepted, accepted.Status)
	assert.Equal(t, int64(2), accepted.Version)

	status = e.do(t, http.MethodPost, "/v1/reservations/"+first.ID+"/reject", "tok-v1", nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	// Monday 09:00, the walk is over
	e.clk.Advance(21 * time.Hour)
	var mine []reservation.Reservation
	status = e.do(t, http.MethodGet, "/v1/reservations/mine?as=volunteer", "tok-v1", nil, &mine)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, mine, 1)
	assert.Equal(t, reservation.StatusCompleted, mine[0].DerivedStatus)
	assert.Equal(t, reservation.StatusAccepted, mine[0].Status)
}

func TestRouter_VillageChangeLockedByCooldown(t *testing.T) {
	e := newEnv(t)
	e.setupV1(t)

	status := e.do(t, http.MethodPut, "/v1/volunteers/me/villages", "tok-v1", map[string]any{"villages": []string{"BAYEUX"}}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestRouter_ValidationAndAuth(t *testing.T) {
	e := newEnv(t)
	e.setupV1(t)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/v1/villages/CAEN/slots", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/v1/villages/CAEN/slots", "bogus", nil, nil))

	assert.Equal(t, http.StatusBadRequest,
		e.do(t, http.MethodGet, "/v1/villages/CAEN/slots?from=2025-03-10&to=2025-05-10", "tok-c1", nil, nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/v1/reservations", "tok-c1", map[string]any{
		"volunteerId": "V1", "village": "CAEN", "date": "2025-03-10", "startTime": "08:30", "dogId": "dog-1",
	}, nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/v1/volunteers/me/availability", "tok-v1", map[string]any{
		"windows": []map[string]any{{"dayOfWeek": 1, "startTime": "08:15", "endTime": "09:00"}},
	}, nil))
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/v1/volunteers/me", "tok-c1", nil, nil))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/v1/reservations/nope/accept", "tok-v1", nil, nil))

	// billing is not mounted without a reconciler
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/v1/stripe/webhook", "", nil, nil))
}

func TestRouter_HolidayHidesSlots(t *testing.T) {
	e := newEnv(t)
	e.setupV1(t)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/v1/volunteers/me/holiday", "tok-v1", map[string]any{"holidayMode": true}, nil))

	var days []slots.Day
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/villages/CAEN/slots?from=2025-03-10&to=2025-03-10", "tok-c1", nil, &days))
	require.Len(t, days, 1)
	assert.Empty(t, days[0].Slots)
}

func TestRouter_BookingIsBroadcastAndNotified(t *testing.T) {
	e := newEnv(t)
	e.setupV1(t)

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/v1/ws?access_token=tok-c2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(realtime.Inbound{Type: realtime.TypeJoinVillage, Village: "Caen"}))
	require.Eventually(t, func() bool { return e.hub.Subscribers("CAEN") == 1 }, time.Second, 5*time.Millisecond)

	var created reservation.Reservation
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/reservations", "tok-c1", map[string]any{
		"volunteerId": "V1", "village": "CAEN", "date": "2025-03-10", "startTime": "08:00", "dogId": "dog-1",
	}, &created))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg realtime.Outbound
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, realtime.TypeReservationUpdate, msg.Type)
	require.NotNil(t, msg.Reservation)
	assert.Equal(t, created.ID, msg.Reservation.ID)

	var inbox []notifications.Notification
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/notifications", "tok-v1", nil, &inbox))
	require.Len(t, inbox, 1)
	assert.Equal(t, notifications.TypeReservationRequested, inbox[0].Type)
	assert.Equal(t, created.ID, inbox[0].Data["reservationId"])
}

func TestPushTokens(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/v1/me/push-tokens", "tok-c1", map[string]string{"token": " "}, nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/v1/me/push-tokens", "tok-c1", map[string]string{"token": "device-1"}, nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/v1/me/push-tokens", "tok-c1", map[string]string{"token": "device-1"}, nil))

	p, err := e.mem.Profiles.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"device-1"}, p.FCMTokens)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodDelete, "/v1/me/push-tokens", "tok-c1", map[string]string{"token": "device-1"}, nil))
	p, err = e.mem.Profiles.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Empty(t, p.FCMTokens)
}
