package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"signalArmyBot/config"
	"signalArmyBot/internal/adapters/binanceclient"
	"signalArmyBot/internal/adapters/kucoinclient"
	"signalArmyBot/internal/adapters/logger"
	"signalArmyBot/internal/adapters/sqlite"
	"signalArmyBot/internal/dispatch"
	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <signal.json>", os.Args[0])
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Store (user directory + execution log)
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize store")
		log.Fatalf("FATAL: Failed to initialize store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing store")
		}
	}()

	// 4. Build the per-user exchange factory for the configured venue
	factory, err := buildFactory(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to build exchange factory")
		log.Fatalf("FATAL: Failed to build exchange factory: %v", err)
	}
	appLogger.Info(context.Background(), "Exchange factory ready", map[string]interface{}{
		"venue":   string(cfg.Venue),
		"sandbox": cfg.UseSandbox,
	})

	// 5. Initialize Dispatcher
	dispatcher, err := dispatch.New(dispatch.Config{
		Directory:      store,
		Factory:        factory,
		Sink:           store,
		Logger:         appLogger,
		MaxConcurrent:  cfg.MaxConcurrent,
		PerUserTimeout: cfg.PerUserTimeout,
		Currency:       cfg.Currency,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize dispatcher")
		log.Fatalf("FATAL: Failed to initialize dispatcher: %v", err)
	}

	// 6. Load the signal and dispatch it
	sig, err := loadSignal(os.Args[1])
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load signal")
		log.Fatalf("FATAL: Failed to load signal: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := dispatcher.Dispatch(ctx, sig)
	if err != nil {
		appLogger.Error(ctx, err, "Dispatch failed")
		os.Exit(1)
	}

	appLogger.Info(ctx, "Dispatch complete", map[string]interface{}{
		"signalID":  summary.SignalID,
		"users":     summary.Users,
		"succeeded": summary.Succeeded,
		"partial":   summary.Partial,
		"failed":    summary.Failed,
	})
	if summary.Partial > 0 {
		appLogger.Warn(ctx, "Some users hold unprotected exposure; manual review needed", map[string]interface{}{
			"partial": summary.Partial,
		})
	}
}

func buildLogger(cfg *config.Config) (ports.Logger, error) {
	if cfg.LogFormat == "json" {
		return logger.NewZapLogger(cfg.LogLevel)
	}
	return logger.NewStdLogger(cfg.LogLevel), nil
}

// buildFactory returns a factory producing one exchange client per user
// credential, so signing state is never shared across users.
func buildFactory(cfg *config.Config, appLogger ports.Logger) (ports.ExchangeFactory, error) {
	switch cfg.Venue {
	case config.VenueKuCoin:
		return func(cred domain.Credential) (ports.ExchangeClient, error) {
			return kucoinclient.New(kucoinclient.Config{
				Credential:  cred,
				UseSandbox:  cfg.UseSandbox,
				Logger:      appLogger,
				HTTPTimeout: cfg.HTTPTimeout,
			})
		}, nil
	case config.VenueBinance:
		return func(cred domain.Credential) (ports.ExchangeClient, error) {
			return binanceclient.New(binanceclient.Config{
				Credential: cred,
				UseTestnet: cfg.UseSandbox,
				Logger:     appLogger,
			})
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported venue %q", ports.ErrConfiguration, cfg.Venue)
	}
}

func loadSignal(path string) (*domain.Signal, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signal file: %w", err)
	}
	var sig domain.Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("parse signal file: %w", err)
	}
	if sig.RiskReward == 0 {
		sig.RiskReward = sig.ComputeRiskReward()
	}
	if sig.Status == "" {
		sig.Status = domain.SignalNotFilled
	}
	return &sig, nil
}
