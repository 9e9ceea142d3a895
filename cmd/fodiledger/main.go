// Package main запускает HTTP-сервер леджера FODI и фоновую отправку операций на расчёт.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Fodi999/fodi-ledger/internal/config"
	"github.com/Fodi999/fodi-ledger/internal/handler"
	"github.com/Fodi999/fodi-ledger/internal/metrics"
	"github.com/Fodi999/fodi-ledger/internal/middleware"
	"github.com/Fodi999/fodi-ledger/internal/repository"
	"github.com/Fodi999/fodi-ledger/internal/service"
	"github.com/Fodi999/fodi-ledger/internal/settlement"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ledger, err := openLedger(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("ledger initialization error", "error", err.Error())
	}
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is not set, balances are kept in memory and lost on restart")
	}

	var settlementClient *settlement.Client
	if cfg.SettlementSystemAddress != "" {
		settlementClient = settlement.NewClient(cfg.SettlementSystemAddress)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc, err := service.NewService(ledger, service.Options{
		Reward:     cfg.Reward,
		Burn:       cfg.Burn,
		Settlement: settlementClient,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		_ = ledger.Close()
		sugar.Fatalw("service initialization error", "error", err.Error())
	}
	defer svc.Close()

	if cfg.AuthSecret == "" {
		sugar.Warn("LEDGER_AUTH_SECRET is not set, caller tokens are valid until restart only")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, handler.Options{
		Metrics:            m,
		Gatherer:           reg,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая отправка неподписанных операций в систему расчётов
	g.Go(func() error {
		svc.StartSettlement(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting ledger server",
			"addr", cfg.RunAddress,
			"persistent", cfg.DatabaseURI != "",
			"settlement", cfg.SettlementSystemAddress != "",
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func openLedger(dsn string) (service.Ledger, error) {
	if dsn == "" {
		return repository.NewMemoryRepository(), nil
	}

	repo, err := repository.NewPostgresRepository(dsn)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
