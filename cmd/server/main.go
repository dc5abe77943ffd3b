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

	"github.com/orderguard/backend/config"
	httpDelivery "github.com/orderguard/backend/internal/delivery/http"
	"github.com/orderguard/backend/internal/domain"
	"github.com/orderguard/backend/internal/infrastructure/cache"
	"github.com/orderguard/backend/internal/infrastructure/llm"
	"github.com/orderguard/backend/internal/infrastructure/spreadsheet"
	"github.com/orderguard/backend/internal/infrastructure/storage"
	"github.com/orderguard/backend/internal/usecase"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration (.env first, then config.yaml and ORDERGUARD_* variables)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"storage":     cfg.Storage.Driver,
		"cache":       cfg.Cache.Type,
		"llm":         cfg.LLM.Provider,
	}).Info("starting OrderGuard backend")

	// Initialize infrastructure dependencies
	store, err := storage.Open(ctx, storage.Config{
		Driver:   cfg.Storage.Driver,
		DSN:      cfg.Storage.DSN,
		MaxConns: cfg.Storage.MaxConns,
	}, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	extractionCache, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	defer closeCache()

	extractor, err := llm.NewClient(llm.Config{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Timeout:           cfg.LLM.Timeout,
		MaxAttempts:       cfg.LLM.MaxAttempts,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}, logger)
	if err != nil {
		return fmt.Errorf("create extraction client: %w", err)
	}

	// Initialize usecase layer
	priceBooks := usecase.NewPriceBookService(store, spreadsheet.NewParser(), logger)
	orders := usecase.NewOrderService(
		store,
		store,
		extractor,
		extractionCache,
		spreadsheet.NewExporter(),
		usecase.OrderServiceConfig{
			CacheTTL:       cfg.Cache.TTL,
			MonthlyPOLimit: cfg.Orders.MonthlyPOLimit,
		},
		logger,
	)

	handler := httpDelivery.NewHandler(priceBooks, orders, store, logger)
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Extraction of a long PO can take most of the LLM timeout
		WriteTimeout: cfg.LLM.Timeout*time.Duration(max(cfg.LLM.MaxAttempts, 1)) + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newCache returns the configured extraction cache and a function releasing it
func newCache(ctx context.Context, cfg config.CacheConfig) (domain.CacheRepository, func(), error) {
	switch cfg.Type {
	case "redis":
		c, err := cache.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	default:
		c := cache.NewMemoryCache()
		return c, func() { c.Close() }, nil
	}
}
