package offlinequeue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"cinema_pos/model"

	"github.com/gofiber/fiber/v2/log"
)

// Backoff is exponential with proportional jitter.
type Backoff struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
	Jitter  float64
}

var DefaultBackoff = Backoff{Initial: 2 * time.Second, Factor: 2, Max: 60 * time.Second, Jitter: 0.1}

// Delay is the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int, rnd func() float64) time.Duration {
	d := float64(b.Initial)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if d >= float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	d += d * b.Jitter * (2*rnd() - 1)
	return time.Duration(d)
}

type SubmitResult struct {
	Status         int
	OrderId        string
	OrderNumber    string
	IdempotencyKey string
	Message        string
}

type Submitter interface {
	Submit(ctx context.Context, entry model.QueueEntry) (SubmitResult, error)
}

// Drainer replays pending entries to the server strictly in queue order.
// A transient failure stops the drain so later entries never overtake it.
type Drainer struct {
	store   *Store
	submit  Submitter
	backoff Backoff
	rnd     func() float64
	mu      sync.Mutex
}

func NewDrainer(store *Store, submit Submitter, backoff Backoff) *Drainer {
	return &Drainer{store: store, submit: submit, backoff: backoff}
}

func retryable(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

func (d *Drainer) Drain(ctx context.Context) (model.DrainReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var report model.DrainReport
	entries, err := d.store.Pending(ctx)
	if err != nil {
		return report, err
	}
	now := d.store.now()

	for i, e := range entries {
		if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
			report.Remaining = len(entries) - i
			return report, nil
		}

		if err := d.store.MarkSyncing(ctx, e.Seq); err != nil {
			return report, err
		}
		res, err := d.submit.Submit(ctx, e)
		switch {
		case err != nil || retryable(res.Status):
			reason := res.Message
			if err != nil {
				reason = err.Error()
			} else if reason == "" {
				reason = fmt.Sprintf("server returned %d", res.Status)
			}
			next := now.Add(d.backoff.Delay(e.Attempts+1, d.rnd))
			if serr := d.store.ScheduleRetry(ctx, e.Seq, next, reason); serr != nil {
				return report, serr
			}
			log.Warnw("offline order not synced", "queueId", e.QueueId, "attempt", e.Attempts+1, "retryAt", next, "reason", reason)
			report.Remaining = len(entries) - i
			return report, nil

		case res.Status < 300 || res.IdempotencyKey == e.IdempotencyKey:
			if err := d.store.Ack(ctx, e.Seq); err != nil {
				return report, err
			}
			log.Infow("offline order synced", "queueId", e.QueueId, "orderId", res.OrderId, "orderNumber", res.OrderNumber)
			report.Synced++

		default:
			if err := d.store.MarkFailed(ctx, e.Seq, res.Message); err != nil {
				return report, err
			}
			log.Errorw("offline order rejected", "queueId", e.QueueId, "status", res.Status, "reason", res.Message)
			report.Failed++
		}
	}
	return report, nil
}
