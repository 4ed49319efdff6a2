package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/appointment"
	"github.com/hackgods/appointment-notifications/internal/metrics"
)

type Store interface {
	Insert(ctx context.Context, d Draft) (*Notification, error)
	ListByUser(ctx context.Context, userID int64) ([]Notification, error)
}

// Deliverer pushes a stored notification to the recipient's live channels.
type Deliverer interface {
	Deliver(n Notification)
}

// Materializer turns domain events into stored notifications and hands each
// one to the deliverer.
type Materializer struct {
	store     Store
	deliverer Deliverer
	logger    *zap.Logger
}

func NewMaterializer(store Store, deliverer Deliverer, logger *zap.Logger) *Materializer {
	return &Materializer{
		store:     store,
		deliverer: deliverer,
		logger:    logger.Named("materializer"),
	}
}

// Handle persists every notification derived from ev. Each insert stands on
// its own: a failed one is reported but its siblings are still stored and
// delivered.
func (m *Materializer) Handle(ctx context.Context, ev appointment.Event) error {
	drafts, err := Derive(ev)
	if err != nil {
		return err
	}

	var errs []error
	for _, d := range drafts {
		n, err := m.store.Insert(ctx, d)
		if err != nil {
			metrics.NotificationsPersisted.WithLabelValues("error").Inc()
			m.logger.Error("persist notification failed",
				zap.String("event", string(ev.Type)),
				zap.Int64("appointment_id", ev.Data.ID),
				zap.Int64("user_id", d.UserID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("user %d: %w", d.UserID, err))
			continue
		}
		metrics.NotificationsPersisted.WithLabelValues("ok").Inc()
		m.deliverer.Deliver(*n)
	}

	return errors.Join(errs...)
}

// History returns a user's stored notifications, newest first.
func (m *Materializer) History(ctx context.Context, userID int64) ([]Notification, error) {
	return m.store.ListByUser(ctx, userID)
}
