// Package app wires configuration into the stores, settlement adapters and services
// shared by the server and the cronjob runner.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"aixblock-ledger/internal/config"
	"aixblock-ledger/internal/lock"
	"aixblock-ledger/internal/logger"
	"aixblock-ledger/internal/repository"
	"aixblock-ledger/internal/repository/memory"
	"aixblock-ledger/internal/repository/postgres"
	"aixblock-ledger/internal/service"
	"aixblock-ledger/internal/settlement"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// App holds the constructed services and the resources backing them.
type App struct {
	Rentals    service.RentalService
	Vesting    service.VestingService
	Deployment service.DeploymentService

	db    *sql.DB
	redis *redis.Client
}

// Build connects the configured backends and constructs the services.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	rentalRepo, allocRepo, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	locker := a.openLocker(cfg)
	oracle := newOracle(cfg)
	tokens := newTokenLedger(cfg)
	deployment := cfg.DeploymentInfo()

	a.Rentals = service.NewRentalService(rentalRepo, locker, oracle, tokens, deployment)
	a.Vesting = service.NewVestingService(allocRepo, locker, tokens, deployment, nil)
	a.Deployment = service.NewDeploymentService(deployment)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (repository.RentalRepository, repository.AllocationRepository, error) {
	if cfg.Database.Driver == "memory" {
		logger.Info("Using in-memory store")
		return memory.NewRentalStore(), memory.NewAllocationStore(), nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("Database schema migrated")
	}

	a.db = db
	store := postgres.NewStore(db)
	return store.RentalRepository, store.AllocationRepository, nil
}

func (a *App) openLocker(cfg *config.Config) lock.Locker {
	if cfg.Redis.Addr == "" {
		logger.Info("Using in-process locks")
		return lock.NewKeyedMutex()
	}

	logger.Info("Using Redis locks", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return lock.NewRedisLocker(a.redis, cfg.Redis.KeyPrefix, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second)
}

func newOracle(cfg *config.Config) settlement.PriceOracle {
	if cfg.Oracle.Type == "fixed" {
		logger.Info("Using fixed-rate oracle", "numerator", cfg.Oracle.FixedNumerator, "denominator", cfg.Oracle.FixedDenominator)
		return settlement.FixedRateOracle{Numerator: cfg.Oracle.FixedNumerator, Denominator: cfg.Oracle.FixedDenominator}
	}

	logger.Info("Using HTTP price oracle", "baseURL", cfg.Oracle.BaseURL, "feed", cfg.Deployment.PriceFeed)
	client := &http.Client{Timeout: time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second}
	maxAge := time.Duration(cfg.Oracle.MaxAgeSeconds) * time.Second
	return settlement.NewHTTPPriceOracle(cfg.Oracle.BaseURL, cfg.Deployment.PriceFeed, maxAge, client)
}

func newTokenLedger(cfg *config.Config) settlement.TokenLedger {
	if cfg.TokenLedger.Type == "memory" {
		logger.Info("Using in-memory token ledger", "minter", cfg.Deployment.Treasury)
		ledger := settlement.NewMemoryTokenLedger(cfg.Deployment.Treasury)
		for account, amount := range cfg.TokenLedger.Balances {
			ledger.Credit(account, amount)
		}
		return ledger
	}

	logger.Info("Using HTTP token ledger", "baseURL", cfg.TokenLedger.BaseURL, "token", cfg.Deployment.Token)
	client := &http.Client{Timeout: time.Duration(cfg.TokenLedger.TimeoutSeconds) * time.Second}
	return settlement.NewHTTPTokenLedger(cfg.TokenLedger.BaseURL, cfg.Deployment.Token, client)
}

// Health reports whether the backing stores are reachable.
func (a *App) Health(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
