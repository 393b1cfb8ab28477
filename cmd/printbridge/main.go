package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinema_pos/config"
	"cinema_pos/printer"

	"github.com/gofiber/fiber/v2/log"
)

// printbridge exposes the terminal's thermal printer on a loopback
// websocket for the POS agent and the browser front end.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(cfg.LogLevelValue())

	p, err := printer.NewPrinter(cfg.Print)
	if err != nil {
		log.Fatal(err)
	}
	app := printer.NewBridge(p).App()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Errorw("bridge shutdown", "error", err)
		}
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Print.BridgePort)
	log.Infof("print bridge listening on ws://%s/", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}
