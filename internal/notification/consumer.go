package notification

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/appointment"
	"github.com/hackgods/appointment-notifications/internal/metrics"
)

type EventHandler interface {
	Handle(ctx context.Context, ev appointment.Event) error
}

// Consumer is the explicit consumption loop: it takes raw bus messages off a
// channel, decodes them and hands typed events to the handler one at a time,
// which keeps per-publisher order.
type Consumer struct {
	handler EventHandler
	logger  *zap.Logger
}

func NewConsumer(handler EventHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		handler: handler,
		logger:  logger.Named("consumer"),
	}
}

// Run returns when ctx is cancelled or in is closed.
func (c *Consumer) Run(ctx context.Context, in <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			c.process(ctx, raw)
		}
	}
}

func (c *Consumer) process(ctx context.Context, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EventsConsumed.WithLabelValues("unknown", "panic").Inc()
			c.logger.Error("event handler panicked", zap.Any("panic", r), zap.ByteString("payload", raw))
		}
	}()

	ev, err := appointment.DecodeEvent(raw)
	switch {
	case errors.Is(err, appointment.ErrUnknownEventType):
		// the type string comes off the bus, so it never becomes a label value
		metrics.EventsConsumed.WithLabelValues("unknown", "ignored").Inc()
		c.logger.Debug("ignoring unknown event type", zap.String("type", string(ev.Type)))
		return
	case err != nil:
		metrics.EventsConsumed.WithLabelValues("unknown", "malformed").Inc()
		c.logger.Warn("dropping malformed event", zap.Error(err), zap.ByteString("payload", raw))
		return
	}

	if err := c.handler.Handle(ctx, ev); err != nil {
		metrics.EventsConsumed.WithLabelValues(string(ev.Type), "error").Inc()
		c.logger.Error("event handling failed",
			zap.String("type", string(ev.Type)),
			zap.Int64("appointment_id", ev.Data.ID),
			zap.Error(err),
		)
		return
	}

	metrics.EventsConsumed.WithLabelValues(string(ev.Type), "ok").Inc()
	c.logger.Debug("handled event", zap.String("type", string(ev.Type)), zap.Int64("appointment_id", ev.Data.ID))
}
