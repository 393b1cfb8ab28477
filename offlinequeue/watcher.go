package offlinequeue

import (
	"context"
	"sync"
	"time"

	"cinema_pos/model"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

type Pinger interface {
	Ping(ctx context.Context) bool
}

// Watcher probes connectivity on a cron schedule and drains the queue
// whenever the server is reachable.
type Watcher struct {
	pinger  Pinger
	drainer *Drainer
	spec    string

	mu        sync.Mutex
	online    bool
	lastCheck time.Time
	scheduler *cron.Cron
}

// NewWatcher takes a cron spec such as "@every 5s"; empty means every 15s.
func NewWatcher(pinger Pinger, drainer *Drainer, spec string) *Watcher {
	if spec == "" {
		spec = "@every 15s"
	}
	return &Watcher{pinger: pinger, drainer: drainer, spec: spec}
}

func (w *Watcher) Start() error {
	w.scheduler = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := w.scheduler.AddFunc(w.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		w.Tick(ctx)
	}); err != nil {
		return err
	}
	w.scheduler.Start()
	log.Infof("connectivity watcher started (%s)", w.spec)
	return nil
}

func (w *Watcher) Stop() {
	if w.scheduler != nil {
		<-w.scheduler.Stop().Done()
	}
}

func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// LastCheck is when connectivity was last probed; zero before the first tick.
func (w *Watcher) LastCheck() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastCheck
}

// Tick probes once and drains when online.
func (w *Watcher) Tick(ctx context.Context) (model.DrainReport, bool) {
	online := w.pinger.Ping(ctx)

	w.mu.Lock()
	was := w.online
	w.online = online
	w.lastCheck = time.Now()
	w.mu.Unlock()

	if online != was {
		if online {
			log.Info("server reachable, draining offline queue")
		} else {
			log.Warn("server unreachable, queueing orders locally")
		}
	}
	if !online {
		return model.DrainReport{}, false
	}
	report, err := w.drainer.Drain(ctx)
	if err != nil {
		log.Errorw("drain offline queue failed", "error", err)
	}
	return report, true
}
