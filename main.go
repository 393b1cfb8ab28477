package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cinema_pos/catalog"
	"cinema_pos/config"
	"cinema_pos/dashboard"
	"cinema_pos/database"
	"cinema_pos/events"
	"cinema_pos/gateway"
	"cinema_pos/handler"
	"cinema_pos/helper"
	"cinema_pos/ledger"
	"cinema_pos/lifecycle"
	"cinema_pos/orderstore"
	"cinema_pos/printer"
	"cinema_pos/receipt"
	"cinema_pos/router"
	"cinema_pos/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(cfg.LogLevelValue())
	helper.SetJWTSecret(cfg.JWT.Secret)

	if err := database.ConnectDB(cfg); err != nil {
		log.Fatal(err)
	}
	db := database.DB
	if err := database.SeedAdmin(db, cfg.AdminPassword); err != nil {
		log.Fatal(err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis %s: %v", cfg.Redis.Addr, err)
	}

	cat := catalog.New(db)
	inventory := ledger.New(db, cfg.Order.ReservationTTL)
	orders := orderstore.New(db)
	if cfg.SeedDemoData {
		if err := database.SeedDemo(ctx, db, inventory); err != nil {
			log.Fatal(err)
		}
	}

	resolver := gateway.NewConfigResolver(db, rdb, cfg.Gateway.ConfigCacheTTL, gateway.NewFactory(cfg.Gateway, nil))
	bus := events.NewRedisBus(rdb)
	relay := events.NewRelay(orders, bus, cfg.Order.RelayInterval)
	coord := lifecycle.New(cat, inventory, orders, resolver, lifecycle.Options{
		RequestTimeout:       cfg.Order.RequestTimeout,
		GatewayCreateTimeout: cfg.Order.GatewayCreateTimeout,
		Currency:             cfg.Order.Currency,
	}).WithKicker(relay)
	sweeper := lifecycle.NewSweeper(coord, inventory, lifecycle.NewRedisLocker(rdb, cfg.Order.SweepInterval), cfg.Order.SweepInterval)

	dash := dashboard.NewCache(rdb, dashboard.NewService(db, orders), 0)
	hub := events.NewHub()

	renderer, err := receipt.NewRenderer(cfg.PublicAppURL)
	if err != nil {
		log.Fatal(err)
	}
	archive, err := receipt.NewS3Archive(ctx, cfg.S3)
	if err != nil {
		log.Fatal(err)
	}
	receipts := receipt.NewService(renderer, cat, receipt.NewMailer(cfg.SMTP), archive)

	handler.Init(handler.Deps{
		Settings:    cfg,
		DB:          db,
		Catalog:     cat,
		Ledger:      inventory,
		Orders:      orders,
		Coordinator: coord,
		Gateways:    resolver,
		Dashboard:   dash,
		Receipts:    receipts,
		Hub:         hub,
		Cloudinary:  helper.InitCloudinary(cfg.Cloudinary),
	})

	host, _ := os.Hostname()
	consumers := []*events.Consumer{
		bus.Consumer(events.GroupDashboard, host, dash.Handler()),
		bus.Consumer(events.GroupNotify, host, events.NotifyHandler(hub)),
		bus.Consumer(events.GroupPrint, host, printer.FanOut(hub, receipts)),
		bus.Consumer(events.GroupMail, host, receipts.Handler()),
	}
	go relay.Run(ctx)
	for _, c := range consumers {
		go c.Run(ctx)
	}
	if err := sweeper.Start(); err != nil {
		log.Fatal(err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: utils.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(utils.SplitCSV(cfg.AllowOrigins), ","),
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Authorization, Accept, Idempotency-Key",
		AllowCredentials: true,
		ExposeHeaders:    "Set-Cookie, Idempotent-Replayed",
		MaxAge:           600,
	}))
	router.SetupRoutes(app)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorw("http shutdown", "error", err)
		}
	}()

	if err := app.Listen(cfg.HTTP.Host + ":" + cfg.HTTP.Port); err != nil {
		log.Error(err)
	}

	if err := sweeper.Stop(); err != nil {
		log.Errorw("sweeper shutdown", "error", err)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if n, err := relay.Flush(flushCtx); err != nil {
		log.Errorw("final outbox flush", "error", err)
	} else if n > 0 {
		log.Infof("flushed %d outbox events", n)
	}
	_ = rdb.Close()
}
