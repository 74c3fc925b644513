package clientsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/domain/reservation"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeServer struct {
	created  atomic.Int32
	fetches  atomic.Int32
	conflict bool
	gate     chan struct{}
}

func (f *fakeServer) router(t *testing.T) http.Handler {
	r := chi.NewRouter()
	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	r.Get("/v1/villages/{village}/slots", func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		assert.Equal(t, "CAEN", chi.URLParam(r, "village"))
		write(w, http.StatusOK, grid())
	})
	r.Get("/v1/villages/{village}/reservations", func(w http.ResponseWriter, r *http.Request) {
		if f.created.Load() > 0 {
			write(w, http.StatusOK, []reservation.Reservation{booked()})
			return
		}
		write(w, http.StatusOK, []reservation.Reservation{})
	})
	r.Get("/v1/reservations/mine", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "client", r.URL.Query().Get("as"))
		write(w, http.StatusOK, []reservation.Reservation{})
	})
	r.Post("/v1/reservations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if f.gate != nil {
			<-f.gate
		}
		if f.conflict {
			write(w, http.StatusConflict, map[string]string{"message": "conflict: slot already reserved"})
			return
		}
		var in reservation.CreateReservationInput
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "CAEN", in.Village)
		f.created.Add(1)
		write(w, http.StatusCreated, booked())
	})
	return r
}

func booked() reservation.Reservation {
	return reservation.Reservation{
		ID: "r1", VolunteerID: "A", ClientID: "client-1", Village: "CAEN",
		ReservationDate: "2025-03-10", StartTime: "14:00", EndTime: "15:00",
		Status: reservation.StatusPending, Version: 1,
	}
}

func newBooker(t *testing.T, f *fakeServer) (*Booker, *Projection) {
	t.Helper()
	srv := httptest.NewServer(f.router(t))
	t.Cleanup(srv.Close)

	loc := paris(t)
	proj := NewProjection(clock.NewFake(time.Date(2025, 3, 10, 8, 0, 0, 0, loc)), loc)
	b := NewBooker(NewAPI(srv.Client()), Session{BaseURL: srv.URL, Token: "tok"}, proj, "CAEN", "2025-03-10", "2025-03-10", zap.NewNop())
	return b, proj
}

func bookingInput() reservation.CreateReservationInput {
	return reservation.CreateReservationInput{VolunteerID: "A", Date: "2025-03-10", StartTime: "14:00", DogID: "dog-1"}
}

func TestBooker_SuccessAppliesAndRefreshes(t *testing.T) {
	f := &fakeServer{}
	b, proj := newBooker(t, f)

	r, err := b.Book(context.Background(), bookingInput())
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
	assert.False(t, b.Loading())

	assert.Equal(t, int32(1), f.fetches.Load())
	_, ok := proj.Get("r1")
	assert.True(t, ok)
	assert.Len(t, proj.Reservations(), 1)
	s, ok := proj.Slot("2025-03-10", "14:00")
	require.True(t, ok)
	assert.Equal(t, []string{"B"}, s.FreeVolunteerIDs)
	assert.NotNil(t, b.Mine())
}

func TestBooker_ConflictStillRefreshes(t *testing.T) {
	f := &fakeServer{conflict: true}
	b, proj := newBooker(t, f)

	_, err := b.Book(context.Background(), bookingInput())
	require.Error(t, err)
	assert.True(t, IsErrConflict(err))
	assert.Equal(t, int32(1), f.fetches.Load())
	assert.Len(t, proj.Days(), 1)
	assert.Empty(t, proj.Reservations())
}

func TestBooker_RejectsResubmissionWhileLoading(t *testing.T) {
	f := &fakeServer{gate: make(chan struct{})}
	b, _ := newBooker(t, f)

	done := make(chan error, 1)
	go func() {
		_, err := b.Book(context.Background(), bookingInput())
		done <- err
	}()
	require.Eventually(t, b.Loading, time.Second, 5*time.Millisecond)

	_, err := b.Book(context.Background(), bookingInput())
	assert.True(t, IsErrBusy(err))

	close(f.gate)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), f.created.Load())
}

func TestAPI_MapsStatusCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewAPI(srv.Client()).Slots(context.Background(), Session{BaseURL: srv.URL}, "CAEN", "2025-03-10", "2025-03-10")
	assert.True(t, IsErrTransient(err))

	_, err = NewAPI(nil).Slots(context.Background(), Session{BaseURL: "http://127.0.0.1:1"}, "CAEN", "2025-03-10", "2025-03-10")
	assert.True(t, IsErrTransient(err))
}
