package worker

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/NathalieLiekens/vp-backend/pkg/events"
	"github.com/NathalieLiekens/vp-backend/services/notification-service/internal/notifier"
)

var errUndecodable = errors.New("undecodable payload")

// Source is the delivery side of pkg/mq.Consumer.
type Source interface {
	Deliveries(ctx context.Context) (<-chan amqp.Delivery, error)
}

type Worker struct {
	src      Source
	notifier notifier.Notifier
	log      *logrus.Logger
}

func New(src Source, n notifier.Notifier, log *logrus.Logger) *Worker {
	return &Worker{src: src, notifier: n, log: log}
}

// Run consumes until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.src.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			w.settle(d, w.handle(ctx, d))
		}
	}
}

// settle acks on success. A failed send is requeued once, then dead-lettered;
// a payload that cannot be decoded goes straight to the DLQ.
func (w *Worker) settle(d amqp.Delivery, err error) {
	entry := w.log.WithFields(logrus.Fields{"key": d.RoutingKey, "message_id": d.MessageId})
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errUndecodable):
		entry.WithError(err).Error("[notify] rejecting message")
		_ = d.Reject(false)
	case d.Redelivered:
		entry.WithError(err).Error("[notify] failed twice, dead-lettering")
		_ = d.Nack(false, false)
	default:
		entry.WithError(err).Warn("[notify] failed, requeue")
		_ = d.Nack(false, true)
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) error {
	switch d.RoutingKey {
	case events.RKBookingCreated, events.RKPaymentSucceeded:
	default:
		w.log.WithField("key", d.RoutingKey).Info("[notify] skip unknown key")
		return nil
	}

	b, err := events.Decode[events.Booking](d.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	if d.RoutingKey == events.RKBookingCreated {
		return w.notifier.BookingReceived(ctx, b)
	}
	return w.notifier.PaymentReceived(ctx, b)
}
