package printer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"cinema_pos/receipt"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/time/rate"
)

var ErrNoAck = errors.New("bridge did not acknowledge job")

type Fallback interface {
	Print(ctx context.Context, job Job) error
}

type Result struct {
	Job      Job
	Via      string
	Err      error
	Repeated bool
}

// Dispatcher sends jobs to the loopback bridge and falls back to HTML
// printing when the bridge does not ack in time.
type Dispatcher struct {
	bridgeURL string
	timeout   time.Duration
	limiter   *rate.Limiter
	fallback  Fallback
	dialer    *websocket.Dialer

	mu   sync.Mutex
	done map[string]bool
}

func NewDispatcher(bridgeURL string, timeout, jobDelay time.Duration, fallback Fallback) *Dispatcher {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	limit := rate.Inf
	if jobDelay > 0 {
		limit = rate.Every(jobDelay)
	}
	return &Dispatcher{
		bridgeURL: bridgeURL,
		timeout:   timeout,
		limiter:   rate.NewLimiter(limit, 1),
		fallback:  fallback,
		dialer:    &websocket.Dialer{HandshakeTimeout: timeout},
		done:      make(map[string]bool),
	}
}

// Dispatch prints jobs in order, pacing them by the job delay. Jobs already
// printed by this dispatcher are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, 0, len(jobs))
	for _, job := range jobs {
		key := job.DedupeKey()
		d.mu.Lock()
		repeated := d.done[key]
		d.mu.Unlock()
		if repeated {
			results = append(results, Result{Job: job, Repeated: true})
			continue
		}

		if err := d.limiter.Wait(ctx); err != nil {
			results = append(results, Result{Job: job, Err: err})
			return results
		}

		res := Result{Job: job, Via: "bridge"}
		if err := d.send(ctx, job); err != nil {
			log.Warnw("print bridge unavailable, using fallback", "orderId", job.OrderId, "kind", job.Kind, "error", err)
			res.Via = "fallback"
			if d.fallback == nil {
				res.Err = err
			} else {
				res.Err = d.fallback.Print(ctx, job)
			}
		}
		if res.Err == nil {
			d.mu.Lock()
			d.done[key] = true
			d.mu.Unlock()
		}
		results = append(results, res)
	}
	return results
}

func (d *Dispatcher) send(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	conn, _, err := d.dialer.DialContext(ctx, d.bridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	if err := conn.WriteJSON(job); err != nil {
		return fmt.Errorf("send job: %w", err)
	}
	var ack Ack
	if err := conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if !ack.OK || ack.JobID != job.ID {
		if ack.Error != "" {
			return fmt.Errorf("%w: %s", ErrNoAck, ack.Error)
		}
		return ErrNoAck
	}
	return nil
}

// HTMLFallback renders the job into a print-ready HTML file and hands it to
// a command such as a kiosk-mode browser.
type HTMLFallback struct {
	renderer *receipt.Renderer
	dir      string
	command  []string
}

func NewHTMLFallback(renderer *receipt.Renderer, dir string, command []string) *HTMLFallback {
	return &HTMLFallback{renderer: renderer, dir: dir, command: command}
}

func (f *HTMLFallback) Print(ctx context.Context, job Job) error {
	html, err := f.renderer.Render(job.ReceiptTemplateID, job.Bill, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%s", job.Bill.OrderNumber, job.Kind)
	if job.Category != "" {
		name += "-" + job.Category
	}
	path := filepath.Join(f.dir, name+".html")
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return err
	}
	if len(f.command) == 0 {
		log.Infof("receipt written to %s", path)
		return nil
	}
	args := append(append([]string{}, f.command[1:]...), path)
	if out, err := exec.CommandContext(ctx, f.command[0], args...).CombinedOutput(); err != nil {
		return fmt.Errorf("print command: %w: %s", err, out)
	}
	return nil
}
