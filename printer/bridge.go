package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"cinema_pos/config"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type Printer interface {
	Print(ctx context.Context, data []byte) error
}

// NetworkPrinter writes raw bytes to a printer's TCP port, usually 9100.
type NetworkPrinter struct {
	Addr    string
	Timeout time.Duration
}

func (p NetworkPrinter) Print(ctx context.Context, data []byte) error {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return fmt.Errorf("dial printer %s: %w", p.Addr, err)
	}
	defer conn.Close()
	if p.Timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(p.Timeout))
	}
	_, err = conn.Write(data)
	return err
}

// FilePrinter appends to a device node such as /dev/usb/lp0, or a plain file.
type FilePrinter struct {
	Path string
}

func (p FilePrinter) Print(ctx context.Context, data []byte) error {
	f, err := os.OpenFile(p.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func NewPrinter(cfg config.Print) (Printer, error) {
	switch {
	case cfg.PrinterAddr != "":
		return NetworkPrinter{Addr: cfg.PrinterAddr, Timeout: 5 * time.Second}, nil
	case cfg.PrinterDevice != "":
		return FilePrinter{Path: cfg.PrinterDevice}, nil
	}
	return nil, fmt.Errorf("PRINT_PRINTER_ADDR or PRINT_PRINTER_DEVICE is required")
}

// Bridge is the loopback websocket server in front of the thermal printer.
// A job whose (orderId, kind) was already printed is acked without printing.
type Bridge struct {
	printer Printer

	mu      sync.Mutex
	printed map[string]string
}

func NewBridge(p Printer) *Bridge {
	return &Bridge{printer: p, printed: make(map[string]string)}
}

func (b *Bridge) App() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/", websocket.New(b.Serve))
	return app
}

func (b *Bridge) Serve(c *websocket.Conn) {
	defer c.Close()
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}
		ack := b.Handle(context.Background(), raw)
		if err := c.WriteJSON(ack); err != nil {
			return
		}
	}
}

func (b *Bridge) Handle(ctx context.Context, raw []byte) Ack {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Ack{Error: "invalid job"}
	}
	if job.ID == "" || job.OrderId == "" {
		return Ack{JobID: job.ID, Error: "jobId and orderId are required"}
	}
	if job.Kind != KindGSTBill && job.Kind != KindCategoryDocket {
		return Ack{JobID: job.ID, Error: fmt.Sprintf("unknown kind %q", job.Kind)}
	}

	key := job.DedupeKey()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.printed[key]; ok {
		return Ack{OK: true, JobID: job.ID, Duplicate: true}
	}
	if err := b.printer.Print(ctx, Encode(job)); err != nil {
		log.Errorw("print failed", "orderId", job.OrderId, "kind", job.Kind, "error", err)
		return Ack{JobID: job.ID, Error: err.Error()}
	}
	b.printed[key] = job.ID
	return Ack{OK: true, JobID: job.ID}
}
