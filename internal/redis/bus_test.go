package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/appointment-notifications/internal/appointment"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func startSubscriber(t *testing.T, rdb *redis.Client) (<-chan []byte, func()) {
	sub := NewSubscriber(rdb, SubscriberConfig{
		Channel:      "appointments",
		BackoffMin:   10 * time.Millisecond,
		BackoffMax:   50 * time.Millisecond,
		PingInterval: 100 * time.Millisecond,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan []byte, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Run(ctx, out)
	}()

	return out, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("subscriber did not stop")
		}
	}
}

func sampleEvent() appointment.Event {
	doctor := int64(9)
	return appointment.Event{
		Type: appointment.EventBookingCreated,
		Data: appointment.Appointment{
			ID:        1,
			PatientID: 2,
			DoctorID:  &doctor,
			Timeslot:  time.Date(2025, 12, 15, 10, 30, 0, 0, time.UTC),
			Status:    appointment.StatusPending,
		},
	}
}

// publishUntilReceived keeps publishing until the subscriber is attached and a
// message comes through; pub/sub drops anything sent before SUBSCRIBE lands.
func publishUntilReceived(t *testing.T, pub *Publisher, out <-chan []byte) []byte {
	t.Helper()
	var got []byte
	require.Eventually(t, func() bool {
		_ = pub.Publish(context.Background(), sampleEvent())
		select {
		case got = <-out:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	return got
}

func TestBus_PublishSubscribeRoundTrip(t *testing.T) {
	_, rdb := setupRedis(t)
	out, stop := startSubscriber(t, rdb)
	defer stop()

	pub := NewPublisher(rdb, "appointments")
	raw := publishUntilReceived(t, pub, out)

	ev, err := appointment.DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, sampleEvent(), ev)
}

func TestBus_ResubscribesAfterConnectionLoss(t *testing.T) {
	mr, rdb := setupRedis(t)
	out, stop := startSubscriber(t, rdb)
	defer stop()

	pub := NewPublisher(rdb, "appointments")
	publishUntilReceived(t, pub, out)

	mr.Close()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, mr.Restart())

	// drain anything buffered before the outage
	for len(out) > 0 {
		<-out
	}

	raw := publishUntilReceived(t, pub, out)
	ev, err := appointment.DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, appointment.EventBookingCreated, ev.Type)
}

func TestPublisher_ErrorWhenBusDown(t *testing.T) {
	mr, rdb := setupRedis(t)
	mr.Close()

	err := NewPublisher(rdb, "appointments").Publish(context.Background(), sampleEvent())
	assert.Error(t, err)
}

func TestSubscriber_StopsOnCancelWhileDisconnected(t *testing.T) {
	mr, rdb := setupRedis(t)
	mr.Close()

	_, stop := startSubscriber(t, rdb)
	time.Sleep(30 * time.Millisecond)
	stop()
}
