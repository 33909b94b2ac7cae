package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/messaging"
	"github.com/kyungseok/course-payments/services/payment/internal/repository"
)

// batchSize is the number of pending events relayed per tick
const batchSize = 100

// OutboxWorker relays payment and enrollment events from the outbox table to Kafka
type OutboxWorker struct {
	outbox    repository.OutboxRepository
	publisher messaging.Publisher
	log       *zap.Logger
	interval  time.Duration
}

// NewOutboxWorker creates an outbox worker
func NewOutboxWorker(outbox repository.OutboxRepository, publisher messaging.Publisher, logger *zap.Logger, interval time.Duration) *OutboxWorker {
	return &OutboxWorker{
		outbox:    outbox,
		publisher: publisher,
		log:       logger.Named("outbox"),
		interval:  interval,
	}
}

// Start polls until ctx is cancelled
func (w *OutboxWorker) Start(ctx context.Context) {
	w.log.Info("relay running", zap.Duration("interval", w.interval))
	defer w.log.Info("relay stopped")

	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		if sent, err := w.process(ctx); err != nil {
			w.log.Error("outbox batch failed", zap.Error(err))
		} else if sent > 0 {
			w.log.Debug("outbox batch relayed", zap.Int("sent", sent))
		}
	}
}

// process relays one batch and reports how many events were marked sent
func (w *OutboxWorker) process(ctx context.Context) (int, error) {
	pending, err := w.outbox.FindPending(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, event := range pending {
		log := w.log.With(
			zap.Int64("eventId", event.ID),
			zap.String("eventType", event.EventType),
			zap.String("transactionId", event.AggregateID))

		if err := messaging.PublishWithKey(ctx, w.publisher, event.EventType, event.AggregateID, event.Payload); err != nil {
			log.Error("event not relayed, retrying next tick", zap.Error(err))
			continue
		}
		// delivery is at-least-once: an unmarked event is sent again next tick
		if err := w.outbox.MarkSent(ctx, event.ID); err != nil {
			log.Error("event relayed but not marked sent", zap.Error(err))
			continue
		}
		sent++
	}

	return sent, nil
}
