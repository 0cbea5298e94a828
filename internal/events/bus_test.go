package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixshop/internal/infra"
)

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus[int]()
	var got []int
	sub := bus.Subscribe(func(v int) { got = append(got, v) })

	bus.Publish(1)
	bus.Publish(2)
	sub.Unsubscribe()
	sub.Unsubscribe()
	bus.Publish(3)

	assert.Equal(t, []int{1, 2}, got)
	assert.False(t, sub.Active())
	assert.Equal(t, 0, bus.Len())
}

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus[string]()
	var order []string
	bus.Subscribe(func(string) { order = append(order, "a") })
	second := bus.Subscribe(func(string) { order = append(order, "b") })
	bus.Subscribe(func(string) { order = append(order, "c") })
	second.Unsubscribe()

	bus.Publish("x")
	assert.Equal(t, []string{"a", "c"}, order)
}

func TestBusSubscribeChanDropsWhenFull(t *testing.T) {
	bus := NewBus[int]()
	ch, sub := bus.SubscribeChan(1)

	bus.Publish(1)
	bus.Publish(2)
	require.Equal(t, 1, <-ch)

	sub.Unsubscribe()
	_, open := <-ch
	assert.False(t, open)
	bus.Publish(3)
}

func TestNoticeRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	payload := EncodeNotice(PresetsUpdated{Collection: "c", Origin: "o", At: at})

	got, err := DecodeNotice(payload)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Collection)
	assert.Equal(t, "o", got.Origin)
	assert.True(t, got.At.Equal(at))

	_, err = DecodeNotice(`{"origin":"o"}`)
	assert.Error(t, err)
	_, err = DecodeNotice(`not json`)
	assert.Error(t, err)
}

func TestForwarderSkipsOwnOriginAndOtherCollections(t *testing.T) {
	bus := NewBus[PresetsUpdated]()
	ch, sub := bus.SubscribeChan(4)
	defer sub.Unsubscribe()

	f := forwarder{bus: bus, collection: "c", origin: "self", logger: nopLogger()}
	assert.False(t, f.deliver(EncodeNotice(PresetsUpdated{Collection: "c", Origin: "self"})))
	assert.False(t, f.deliver(EncodeNotice(PresetsUpdated{Collection: "other", Origin: "peer"})))
	assert.False(t, f.deliver("garbage"))
	assert.True(t, f.deliver(EncodeNotice(PresetsUpdated{Collection: "c", Origin: "peer"})))

	got := <-ch
	assert.Equal(t, "peer", got.Origin)
	assert.Len(t, ch, 0)
}

func TestRedisRelayForwardsPeerNotices(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewBus[PresetsUpdated]()
	ch, sub := bus.SubscribeChan(4)
	defer sub.Unsubscribe()

	relay := NewRedisRelay(client, "c", "self", bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(RedisChannel("c"))[RedisChannel("c")] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(context.Background(), RedisChannel("c"),
		EncodeNotice(PresetsUpdated{Collection: "c", Origin: "self"})).Err())
	require.NoError(t, client.Publish(context.Background(), RedisChannel("c"),
		EncodeNotice(PresetsUpdated{Collection: "c", Origin: "peer"})).Err())

	select {
	case got := <-ch:
		assert.Equal(t, "peer", got.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not forward notice")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func nopLogger() *infra.Logger {
	return infra.NopLogger()
}
