package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"engagement-rewards/config"
	"engagement-rewards/dedup"
	"engagement-rewards/handlers"
	"engagement-rewards/ledger"
	"engagement-rewards/logger"
	"engagement-rewards/middleware"
	"engagement-rewards/services"
	"engagement-rewards/shopify"
	"engagement-rewards/store"
	"engagement-rewards/utils"
	"engagement-rewards/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ invalid configuration: %v", err)
	}

	logg, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("❌ failed to build logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := shopify.NewClient(cfg.ShopifyDomain, cfg.ShopifyAdminToken, cfg.ShopifyAPIVersion, utils.NewHTTPClient(15*time.Second))
	directory := shopify.NewDirectory(client)
	sink := shopify.NewCreditSink(client, logg)

	var records store.RecordStore
	var outbox store.GrantOutbox
	switch cfg.RecordStore {
	case config.StorePostgres:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			logg.Fatal("failed to connect to database", "error", err)
		}
		gs := store.NewGormStore(db)
		gs.Resolver = directory
		if err := gs.AutoMigrate(); err != nil {
			logg.Fatal("failed to migrate database", "error", err)
		}
		records, outbox = gs, gs
	default:
		records = shopify.NewRecordStore(client, logg)
	}

	var archiver services.Archiver
	if cfg.R2Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret)
		if err != nil {
			logg.Fatal("failed to initialize R2 client", "error", err)
		}
		archiver = utils.NewReceiptArchiver(r2, cfg.R2Bucket)
	} else {
		logg.Warn("⚠️  R2 not configured, grant receipts are not archived")
	}

	deps := handlers.Deps{Log: logg}
	if cfg.RedisEnabled() {
		deduper := dedup.NewRedisDeduper(cfg.RedisAddr, cfg.RedisPassword, logg)
		defer deduper.Close()
		if err := deduper.Ping(ctx); err != nil {
			logg.Warn("⚠️  redis unreachable, webhook de-duplication will fail open", "error", err)
		}
		deps.Deduper = deduper
	}

	delivery := services.NewGrantDelivery(sink, outbox, archiver, logg)
	deps.Engine = services.NewEngine(records, directory, delivery, cfg.Policy(), logg)

	scheduler, err := workers.NewScheduler(ctx, logg)
	if err != nil {
		logg.Fatal("failed to create scheduler", "error", err)
	}
	if outbox != nil {
		if err := scheduler.Every(time.Minute, 50*time.Second, false, workers.NewGrantOutboxWorker(delivery, logg)); err != nil {
			logg.Fatal("failed to schedule outbox retry", "error", err)
		}
	}
	if cfg.WebhookCallbackBaseURL != "" {
		reconciler := workers.NewWebhookReconciler(shopify.NewWebhooks(client), cfg.WebhookCallbackBaseURL, logg)
		if err := scheduler.Every(24*time.Hour, time.Minute, true, reconciler); err != nil {
			logg.Fatal("failed to schedule webhook reconcile", "error", err)
		}
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Customer-ID, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	gateway := []fiber.Handler{
		middleware.GatewayAuthMiddleware(cfg.GatewayToken, logg),
		middleware.CustomerContextMiddleware(cfg.StoreLocation, logg),
	}
	proxy := middleware.AppProxyMiddleware(middleware.AppProxyConfig{
		Secret:   cfg.ShopifyAPISecret,
		DevKey:   cfg.DevModeKey,
		Location: cfg.StoreLocation,
	}, logg)

	handlers.SetupHealthRoutes(app)
	handlers.SetupEngagementRoutes(app, deps, proxy, gateway...)
	handlers.SetupWebhookRoutes(app, deps, middleware.WebhookHMACMiddleware(cfg.ShopifyWebhookSecret, logg))
	handlers.SetupProfileRoutes(app, deps, gateway...)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logg.Error("server error", "error", err)
			stop()
		}
	}()

	logg.Info("✅ Server running", "port", cfg.Port, "record_store", cfg.RecordStore,
		"timezone", cfg.StoreLocation.String(), "today", ledger.DateIn(time.Now(), cfg.StoreLocation).String())
	if cfg.DevModeKey != "" {
		logg.Warn("⚠️  DEV_MODE_KEY set, app proxy signature can be bypassed")
	}

	<-ctx.Done()
	logg.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Error("server shutdown", "error", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		logg.Error("scheduler shutdown", "error", err)
	}
}
