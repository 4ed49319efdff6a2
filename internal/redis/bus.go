package redisclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/appointment"
	"github.com/hackgods/appointment-notifications/internal/metrics"
)

// Publisher puts domain events on a pub/sub channel. Redis keeps no copy:
// subscribers that are not connected at publish time never see the event.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, ev appointment.Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}

type SubscriberConfig struct {
	Channel      string
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	PingInterval time.Duration
}

// Subscriber pumps raw messages from a pub/sub channel, resubscribing with
// exponential backoff whenever the connection is lost. Messages published
// while it is disconnected are gone.
type Subscriber struct {
	client *redis.Client
	cfg    SubscriberConfig
	logger *zap.Logger
}

func NewSubscriber(client *redis.Client, cfg SubscriberConfig, logger *zap.Logger) *Subscriber {
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	return &Subscriber{
		client: client,
		cfg:    cfg,
		logger: logger.Named("bus").With(zap.String("channel", cfg.Channel)),
	}
}

// Run blocks until ctx is cancelled. It never gives up on the bus.
func (s *Subscriber) Run(ctx context.Context, out chan<- []byte) error {
	delay := s.cfg.BackoffMin

	for {
		subscribed, err := s.session(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			delay = s.cfg.BackoffMin
		}

		metrics.BusReconnects.Inc()
		s.logger.Warn("event bus connection lost, resubscribing",
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.cfg.BackoffMax {
			delay = s.cfg.BackoffMax
		}
	}
}

// session subscribes once and forwards messages until the connection fails.
func (s *Subscriber) session(ctx context.Context, out chan<- []byte) (subscribed bool, err error) {
	ps := s.client.Subscribe(ctx, s.cfg.Channel)

	done := make(chan struct{})
	defer close(done)
	go func() {
		// Unblocks a pending read on shutdown
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = ps.Close()
	}()

	if _, err := ps.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	s.logger.Info("subscribed to event bus")

	for {
		msg, err := ps.ReceiveTimeout(ctx, s.cfg.PingInterval)
		if err != nil {
			if isTimeout(err) {
				if err := ps.Ping(ctx); err != nil {
					return true, fmt.Errorf("ping: %w", err)
				}
				continue
			}
			return true, err
		}

		switch m := msg.(type) {
		case *redis.Message:
			select {
			case out <- []byte(m.Payload):
			case <-ctx.Done():
				return true, ctx.Err()
			}
		case *redis.Subscription, *redis.Pong:
		default:
			s.logger.Debug("ignoring pubsub frame", zap.String("kind", fmt.Sprintf("%T", msg)))
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
