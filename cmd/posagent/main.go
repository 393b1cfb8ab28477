package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinema_pos/config"
	"cinema_pos/offlinequeue"
	"cinema_pos/printer"
	"cinema_pos/receipt"

	"github.com/gofiber/fiber/v2/log"
)

// posagent runs next to a POS terminal: it keeps orders taken while the
// server is unreachable and prints the bills the server pushes for this
// theater.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(cfg.LogLevelValue())
	agent := cfg.Agent

	store, err := offlinequeue.Open(agent.QueuePath)
	if err != nil {
		log.Fatal(err)
	}
	submitter := offlinequeue.NewHTTPSubmitter(agent.ServerURL, agent.Token, cfg.Order.RequestTimeout)
	backoff := offlinequeue.DefaultBackoff
	if agent.BackoffInitial > 0 {
		backoff.Initial = agent.BackoffInitial
	}
	if agent.BackoffMax > 0 {
		backoff.Max = agent.BackoffMax
	}
	drainer := offlinequeue.NewDrainer(store, submitter, backoff)
	watcher := offlinequeue.NewWatcher(submitter, drainer, agent.ProbeSchedule)
	if err := watcher.Start(); err != nil {
		log.Fatal(err)
	}
	defer watcher.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if agent.TheaterID != 0 && agent.Token != "" {
		renderer, err := receipt.NewRenderer(cfg.PublicAppURL)
		if err != nil {
			log.Fatal(err)
		}
		fallback := printer.NewHTMLFallback(renderer, cfg.Print.SpoolDir, cfg.Print.FallbackCommand)
		bridgeURL := fmt.Sprintf("ws://127.0.0.1:%d/", cfg.Print.BridgePort)
		dispatcher := printer.NewDispatcher(bridgeURL, cfg.Print.BridgeTimeout, cfg.Print.JobDelay, fallback)
		go printer.NewSubscriber(agent.ServerURL, agent.TheaterID, agent.Token, dispatcher).Run(ctx)
	} else {
		log.Warn("AGENT_THEATER_ID or AGENT_TOKEN not set, print jobs are not consumed")
	}

	app := offlinequeue.NewAPI(store, drainer, watcher).App()
	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Errorw("agent shutdown", "error", err)
		}
	}()

	log.Infof("pos agent listening on %s", agent.ListenAddr)
	if err := app.Listen(agent.ListenAddr); err != nil {
		log.Error(err)
	}
}
