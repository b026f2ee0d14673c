package scanlog

import (
	"context"
	"log/slog"

	"rfidattendance/internal/queue"
)

// Consumer drains scan events from a queue into a Store.
type Consumer struct {
	q      queue.Queue
	store  Store
	logger *slog.Logger
}

func NewConsumer(q queue.Queue, store Store, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{q: q, store: store, logger: logger}
}

// Run blocks until ctx is cancelled or the queue closes. It returns the number of events
// persisted.
func (c *Consumer) Run(ctx context.Context) (int, error) {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return 0, err
	}
	stored := 0
	for msg := range messages {
		if msg.Type != MessageType {
			continue
		}
		evt, err := Decode(msg)
		if err != nil {
			c.logger.Warn("dropping malformed scan event", "error", err)
			continue
		}
		if !evt.Known {
			c.logger.Warn("unknown card scanned", "uid", evt.UID, "date", evt.Date, "subject", evt.Subject, "outcome", evt.Outcome)
		}
		if err := c.store.Append(ctx, evt); err != nil {
			c.logger.Error("append scan event failed", "id", evt.ID, "error", err)
			continue
		}
		stored++
		c.logger.Debug("scan event stored", "id", evt.ID, "uid", evt.UID, "outcome", evt.Outcome)
	}
	return stored, nil
}
