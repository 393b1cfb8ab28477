package events

import (
	"context"
	"time"

	"cinema_pos/model"

	"github.com/gofiber/fiber/v2/log"
)

type Publisher interface {
	Publish(ctx context.Context, ev model.OrderEvent) error
}

type Outbox interface {
	Unpublished(ctx context.Context, limit int) ([]model.OrderEvent, error)
	MarkPublished(ctx context.Context, ids []uint) error
}

// Relay moves outbox rows to the bus in id order. A row is marked only
// after it was published, so a crash in between republishes it.
type Relay struct {
	outbox   Outbox
	pub      Publisher
	interval time.Duration
	batch    int
	kick     chan struct{}
}

func NewRelay(outbox Outbox, pub Publisher, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{
		outbox:   outbox,
		pub:      pub,
		interval: interval,
		batch:    100,
		kick:     make(chan struct{}, 1),
	}
}

// Kick asks the relay to flush now instead of waiting for the next tick.
func (r *Relay) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.kick:
		}
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			log.Warnw("outbox relay flush failed", "error", err)
		}
	}
}

func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		rows, err := r.outbox.Unpublished(ctx, r.batch)
		if err != nil {
			return total, err
		}
		if len(rows) == 0 {
			return total, nil
		}

		ids := make([]uint, 0, len(rows))
		var pubErr error
		for _, ev := range rows {
			if pubErr = r.pub.Publish(ctx, ev); pubErr != nil {
				break
			}
			ids = append(ids, ev.ID)
		}
		if len(ids) > 0 {
			if err := r.outbox.MarkPublished(ctx, ids); err != nil {
				return total, err
			}
			total += len(ids)
		}
		if pubErr != nil {
			return total, pubErr
		}
		if len(rows) < r.batch {
			return total, nil
		}
	}
}
