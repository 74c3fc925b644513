package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"villagewalks/backend/internal/authctx"
	"villagewalks/backend/internal/domain/reservation"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(zap.NewNop())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func newClient(id string) *Client {
	return &Client{ID: id, Send: make(chan []byte, sendBuffer)}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func recv(t *testing.T, c *Client) Outbound {
	t.Helper()
	select {
	case data := <-c.Send:
		var out Outbound
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
		return Outbound{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("client %s got unexpected frame %s", c.ID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PublishReachesOnlyTheVillageRoom(t *testing.T) {
	h := startHub(t)
	caen, bayeux := newClient("caen"), newClient("bayeux")
	require.True(t, h.Register(caen))
	require.True(t, h.Register(bayeux))
	h.Join(caen, "Caen")
	h.Join(bayeux, "bayeux")
	waitFor(t, func() bool { return h.Subscribers("CAEN") == 1 && h.Subscribers("BAYEUX") == 1 })

	r := reservation.Reservation{ID: "r1", Village: "CAEN", Status: reservation.StatusPending, Version: 1}
	require.NoError(t, h.Publish(context.Background(), r))

	got := recv(t, caen)
	assert.Equal(t, TypeReservationUpdate, got.Type)
	require.NotNil(t, got.Reservation)
	assert.Equal(t, "r1", got.Reservation.ID)
	assertSilent(t, bayeux)
}

func TestHub_RejoinMovesClient(t *testing.T) {
	h := startHub(t)
	c := newClient("c")
	require.True(t, h.Register(c))
	h.Join(c, "CAEN")
	waitFor(t, func() bool { return h.Subscribers("CAEN") == 1 })

	h.Join(c, "BAYEUX")
	waitFor(t, func() bool { return h.Subscribers("BAYEUX") == 1 })
	assert.Equal(t, 0, h.Subscribers("CAEN"))

	h.Deliver("CAEN", []byte(`{}`))
	assertSilent(t, c)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := newClient("c")
	require.True(t, h.Register(c))
	h.Join(c, "CAEN")
	h.Unregister(c)

	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	assert.Equal(t, 0, h.Subscribers("CAEN"))
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	h := startHub(t)
	slow := &Client{ID: "slow", Send: make(chan []byte)}
	require.True(t, h.Register(slow))
	h.Join(slow, "CAEN")
	waitFor(t, func() bool { return h.Subscribers("CAEN") == 1 })

	h.Deliver("CAEN", []byte(`{}`))
	waitFor(t, func() bool { return h.Subscribers("CAEN") == 0 })
}

func TestHub_RegisterAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(zap.NewNop())
	done := make(chan struct{})
	go func() { h.Run(ctx); close(done) }()
	cancel()
	<-done

	assert.False(t, h.Register(newClient("late")))
}

func TestHandler_WebsocketJoinAndUpdate(t *testing.T) {
	h := startHub(t)
	handler := NewHandler(h, nil, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authctx.WithCaller(r.Context(), authctx.Caller{UID: "client-1", Role: authctx.RoleClient})
		handler.ServeHTTP(w, r.WithContext(ctx))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeJoinVillage, Village: "caen"}))
	waitFor(t, func() bool { return h.Subscribers("CAEN") == 1 })

	r := reservation.Reservation{ID: "r9", Village: "CAEN", StartTime: "14:00", EndTime: "15:00", Version: 2}
	require.NoError(t, h.Publish(context.Background(), r))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out Outbound
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, TypeReservationUpdate, out.Type)
	require.NotNil(t, out.Reservation)
	assert.Equal(t, "r9", out.Reservation.ID)
	assert.Equal(t, int64(2), out.Reservation.Version)
}

func TestRelay_ForwardDropsMalformed(t *testing.T) {
	h := startHub(t)
	c := newClient("c")
	require.True(t, h.Register(c))
	h.Join(c, "CAEN")
	waitFor(t, func() bool { return h.Subscribers("CAEN") == 1 })

	relay := NewRelay(nil, h, DefaultChannel, zap.NewNop())
	relay.forward([]byte(`not json`))
	relay.forward([]byte(`{"type":"reservation_update"}`))
	assertSilent(t, c)

	data, err := EncodeUpdate(reservation.Reservation{ID: "r2", Village: "CAEN"})
	require.NoError(t, err)
	relay.forward(data)
	assert.Equal(t, "r2", recv(t, c).Reservation.ID)
}
