package realtime

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/metrics"
	"github.com/hackgods/appointment-notifications/internal/notification"
)

const (
	FrameNotification = "notification"
	FrameReady        = "ready"
)

// Frame is what clients receive on a live channel.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Dispatcher fans a notification out to every live channel of its recipient.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger.Named("dispatcher"),
	}
}

// Deliver is best effort. A failing channel is logged and skipped, never
// retried; its own liveness check will take it out of the registry. No live
// channel at all is fine too: the notification is already in history.
func (d *Dispatcher) Deliver(n notification.Notification) {
	channels := d.registry.ChannelsFor(n.UserID)
	if len(channels) == 0 {
		metrics.Pushes.WithLabelValues("offline").Inc()
		return
	}

	payload, err := json.Marshal(Frame{Type: FrameNotification, Data: n})
	if err != nil {
		d.logger.Error("encode notification frame", zap.Int64("notification_id", n.ID), zap.Error(err))
		return
	}

	for _, ch := range channels {
		if err := ch.Send(payload); err != nil {
			metrics.Pushes.WithLabelValues("error").Inc()
			d.logger.Warn("push to channel failed",
				zap.Int64("user_id", n.UserID),
				zap.String("channel_id", ch.ID()),
				zap.Int64("notification_id", n.ID),
				zap.Error(err),
			)
			continue
		}
		metrics.Pushes.WithLabelValues("ok").Inc()
	}
}
