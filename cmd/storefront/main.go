// Command storefront runs the checkout service for the bridal storefront:
// session carts, payment gateway integration, and order placement against
// the remote commerce API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bridal-dreams/storefront/internal/backend"
	"github.com/bridal-dreams/storefront/internal/cart"
	"github.com/bridal-dreams/storefront/internal/checkout"
	"github.com/bridal-dreams/storefront/internal/gateway"
	"github.com/bridal-dreams/storefront/internal/handlers"
	"github.com/bridal-dreams/storefront/internal/orders"
	"github.com/bridal-dreams/storefront/internal/platform/config"
	"github.com/bridal-dreams/storefront/internal/platform/observability"
)

const sweepInterval = time.Hour

func main() {
	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	events := observability.NewEventLogger(logger)

	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		AuthToken: func() string { return cfg.Backend.AuthToken },
		Logger:    events,
	})
	if err != nil {
		logger.Fatal("failed to initialise backend client", zap.Error(err))
	}

	loader, err := gateway.NewLoader(gateway.LoaderConfig{
		Fetcher: client,
		Timeout: cfg.Gateway.LoadTimeout,
		Logger:  events,
	})
	if err != nil {
		logger.Fatal("failed to initialise gateway loader", zap.Error(err))
	}

	surface := gateway.NewCallbackSurface()

	adapter, err := gateway.NewAdapter(gateway.AdapterConfig{
		Loader:      loader,
		Intents:     client,
		Surface:     surface,
		DisplayName: cfg.Gateway.DisplayName,
		Logger:      events,
	})
	if err != nil {
		logger.Fatal("failed to initialise gateway adapter", zap.Error(err))
	}

	reconciler, err := orders.NewReconciler(orders.ReconcilerConfig{
		Backend: client,
		Logger:  events,
	})
	if err != nil {
		logger.Fatal("failed to initialise order reconciler", zap.Error(err))
	}

	calculator, err := cart.NewCalculator(cart.CalculatorConfig{
		TaxRate:               cfg.Pricing.TaxRate,
		ShippingFee:           cfg.Pricing.ShippingFee,
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
	})
	if err != nil {
		logger.Fatal("failed to initialise totals calculator", zap.Error(err))
	}

	store, err := cart.NewStore(cart.StoreConfig{
		Calculator: calculator,
		TTL:        cfg.Checkout.SessionTTL,
	})
	if err != nil {
		logger.Fatal("failed to initialise cart store", zap.Error(err))
	}

	orchestrator, err := checkout.NewOrchestrator(checkout.OrchestratorDeps{
		Carts:        store,
		Gateway:      adapter,
		Orders:       reconciler,
		Currency:     cfg.Gateway.Currency,
		DemoFallback: cfg.Features.DemoFallback,
		Logger:       events,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout orchestrator", zap.Error(err))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			handlers.SessionMiddleware(nil),
		),
		handlers.WithHealth(handlers.NewHealthHandlers(nil)),
		handlers.WithCartRoutes(handlers.NewCartHandlers(store, cfg.Checkout.MaxQuantityPerItem).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(orchestrator).Routes),
		handlers.WithPaymentRoutes(handlers.NewPaymentHandlers(loader, surface, cfg.Gateway.DisplayName).Routes),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(client).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(client).Routes),
	)

	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
		// WriteTimeout stays unset: checkout submissions park until the
		// gateway callback arrives. The per-group chi timeout bounds
		// everything else.
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := store.Sweep(); removed > 0 {
					logger.Info("swept idle cart sessions", zap.Int("removed", removed))
				}
				if removed := orchestrator.Sweep(cfg.Checkout.SessionTTL); removed > 0 {
					logger.Info("swept idle checkout sessions", zap.Int("removed", removed))
				}
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	sweepCancel()
	<-sweepDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
