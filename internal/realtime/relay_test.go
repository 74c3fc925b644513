package realtime

import (
	"context"
	"testing"
	"time"

	"villagewalks/backend/internal/domain/reservation"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func startRelay(t *testing.T, rdb *redis.Client, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRelay(rdb, h, DefaultChannel, zap.NewNop()).Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("relay did not stop")
		}
	})
	// Publish only reaches subscribers that are already registered.
	require.Eventually(t, func() bool {
		n, err := rdb.PubSubNumSub(context.Background(), DefaultChannel).Result()
		return err == nil && n[DefaultChannel] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRelay_DeliversPublishedUpdateToVillageRoom(t *testing.T) {
	rdb := newRedis(t)
	h := startHub(t)
	caen, bayeux := newClient("caen"), newClient("bayeux")
	require.True(t, h.Register(caen))
	require.True(t, h.Register(bayeux))
	h.Join(caen, "CAEN")
	h.Join(bayeux, "BAYEUX")
	waitFor(t, func() bool { return h.Subscribers("CAEN") == 1 && h.Subscribers("BAYEUX") == 1 })
	startRelay(t, rdb, h)

	r := reservation.Reservation{ID: "r1", Village: "Caen", Status: reservation.StatusApproved, Version: 3}
	require.NoError(t, NewRedisBroadcaster(rdb, DefaultChannel).Publish(context.Background(), r))

	got := recv(t, caen)
	assert.Equal(t, TypeReservationUpdate, got.Type)
	require.NotNil(t, got.Reservation)
	assert.Equal(t, "r1", got.Reservation.ID)
	assert.Equal(t, int64(3), got.Reservation.Version)
	assertSilent(t, bayeux)
}

func TestRelay_DropsMalformedPayload(t *testing.T) {
	rdb := newRedis(t)
	h := startHub(t)
	c := newClient("caen")
	require.True(t, h.Register(c))
	h.Join(c, "CAEN")
	waitFor(t, func() bool { return h.Subscribers("CAEN") == 1 })
	startRelay(t, rdb, h)

	require.NoError(t, rdb.Publish(context.Background(), DefaultChannel, "not json").Err())
	require.NoError(t, rdb.Publish(context.Background(), DefaultChannel, `{"type":"reservation_update"}`).Err())
	assertSilent(t, c)
}
