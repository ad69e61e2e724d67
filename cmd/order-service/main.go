package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/casaluna/order-service/internal/cache"
	"github.com/casaluna/order-service/internal/cart"
	"github.com/casaluna/order-service/internal/client"
	"github.com/casaluna/order-service/internal/config"
	"github.com/casaluna/order-service/internal/db"
	"github.com/casaluna/order-service/internal/metrics"
	"github.com/casaluna/order-service/internal/order"
	"github.com/casaluna/order-service/internal/payment"
	"github.com/casaluna/order-service/internal/pricing"
	"github.com/casaluna/order-service/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "order-service").Logger()

	log.Info().Msg("Order service starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	database, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	timeout := cfg.Services.Timeout
	inventory := client.NewInventory(cfg.Services.InventoryURL, timeout)
	tables := client.NewTables(cfg.Services.TablesURL, timeout)
	clients := client.NewClients(cfg.Services.ClientsURL, timeout)
	promotions := client.NewPromotions(cfg.Services.PromotionsURL, timeout)
	email := client.NewEmail(cfg.Services.EmailURL, timeout)
	receipts := client.NewReceipts(cfg.Services.ReceiptsURL, timeout)

	var redis *cache.Redis
	if cfg.Redis.Enabled {
		redis = cache.NewRedis(cfg.Redis)
		if err := redis.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable, promotion caching disabled")
			redis = nil
		} else {
			defer redis.Close()
		}
	}
	if redis != nil {
		promotions = cache.NewCachedPromotions(promotions, redis)
	}

	m := metrics.New()
	pricer := pricing.NewCalculator(inventory, promotions)

	orderRepo := order.NewRepository(database.Pool)
	paymentRepo := payment.NewRepository(database.Pool)
	paymentStore := payment.NewStore(database.Pool)

	orderService := order.NewService(orderRepo, paymentRepo, pricer, inventory, tables, clients, email, receipts, m)
	cartService := cart.NewService(orderRepo, paymentRepo, inventory, m)
	paymentService := payment.NewService(paymentStore, paymentRepo, orderRepo, pricer, inventory, tables, receipts, m)

	router := transport.NewRouter(orderService, cartService, paymentService)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
