package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jaevor/go-nanoid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dataplug/dataplug-api/internal/config"
	"github.com/dataplug/dataplug-api/internal/domain/catalog"
	"github.com/dataplug/dataplug-api/internal/domain/fulfillment"
	"github.com/dataplug/dataplug-api/internal/domain/order"
	"github.com/dataplug/dataplug-api/internal/domain/pricing"
	"github.com/dataplug/dataplug-api/internal/domain/reseller"
	"github.com/dataplug/dataplug-api/internal/domain/wallet"
	"github.com/dataplug/dataplug-api/internal/middleware"
	"github.com/dataplug/dataplug-api/internal/pkg/database"
	"github.com/dataplug/dataplug-api/internal/pkg/jwt"
	"github.com/dataplug/dataplug-api/internal/pkg/logger"
	"github.com/dataplug/dataplug-api/internal/pkg/metrics"
	"github.com/dataplug/dataplug-api/internal/pkg/paystack"
	"github.com/dataplug/dataplug-api/internal/pkg/response"
	"github.com/dataplug/dataplug-api/internal/pkg/supplier"
	"github.com/dataplug/dataplug-api/internal/worker"
)

func main() {
	cfg := config.Load()
	logger.Setup(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting DataPlug API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		// Redis only backs webhook replay dedupe; the handlers stay
		// idempotent without it.
		log.Warn().Err(err).Msg("Redis unavailable, webhook dedupe disabled")
		rdb = nil
	} else {
		defer database.CloseRedis(rdb)
	}

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	m := metrics.New()

	newRef, err := nanoid.CustomASCII("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ", 10)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build reference generator")
	}

	gateway := paystack.NewClient(paystack.Config{
		BaseURL:   cfg.PaystackBaseURL,
		SecretKey: cfg.PaystackSecretKey,
	})
	supplyClient := supplier.NewClient(cfg.ProviderTimeout)

	// ---------- Repositories ----------
	catalogRepo := catalog.NewRepository(db)
	pricingRepo := pricing.NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	resellerRepo := reseller.NewRepository(db)
	orderRepo := order.NewRepository(db)
	providerRepo := fulfillment.NewProviderRepository(db)

	// ---------- Services ----------
	pricingService := pricing.NewService(pricingRepo)
	walletService := wallet.NewService(walletRepo, gateway, newRef, m)
	resellerService := reseller.NewService(resellerRepo, gateway, newRef, m)

	cooldown := order.NewCooldownGuard(orderRepo, cfg.CooldownWindow, m)
	orderService := order.NewService(orderRepo, catalogRepo, pricingService, walletService, resellerService, gateway, cooldown, newRef, m)

	pool := worker.NewPool(cfg.FulfillmentWorkers, cfg.FulfillmentQueue)
	dispatcher := fulfillment.NewDispatcher(orderRepo, orderService, providerRepo, supplyClient, pool, cfg.ProviderTimeout, m)
	orderService.SetDispatcher(dispatcher)

	sweeper := fulfillment.NewSweeper(orderRepo, dispatcher,
		cfg.SweepInterval, cfg.SweepMinAge, cfg.SweepRequestDelay, cfg.FailedOrderRetention, m)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweeper.Run(sweepCtx)

	// ---------- Handlers ----------
	orderHandler := order.NewHandler(orderService)
	walletHandler := wallet.NewHandler(walletService)
	resellerHandler := reseller.NewHandler(resellerService)
	webhookHandler := order.NewWebhookHandler(orderService, walletService, resellerService, cfg.PaystackSecretKey, rdb, m)
	fulfillmentHandler := fulfillment.NewHandler(providerRepo, orderRepo, orderService, sweeper, m)

	authMiddleware := middleware.Auth(jwtService)
	cronMiddleware := middleware.CronToken(cfg.CronToken)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		orderHandler.Register(r, authMiddleware)
		r.Mount("/wallet", walletHandler.Routes(authMiddleware))
		r.Mount("/resellers", resellerHandler.Routes(authMiddleware))
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/paystack", webhookHandler.Paystack)
		r.Post("/supplier", fulfillmentHandler.SupplierWebhook)
	})

	r.Route("/cron", func(r chi.Router) {
		r.Use(cronMiddleware)
		r.Post("/update-order-statuses", fulfillmentHandler.UpdateOrderStatuses)
		r.Post("/cleanup-failed-orders", fulfillmentHandler.CleanupFailedOrders)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the sweep first, then drain queued fulfillment work so paid
	// orders are not left undispatched.
	stopSweep()
	pool.Stop()

	log.Info().Msg("Server exited properly")
}
