// Package main provides the main entry point for the Meridian deposit service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridianpay/meridian/app/handlers"
	"github.com/meridianpay/meridian/app/middleware"
	"github.com/meridianpay/meridian/app/router"
	"github.com/meridianpay/meridian/app/scheduler"
	"github.com/meridianpay/meridian/app/services"
	businessflow "github.com/meridianpay/meridian/business_flow"
	"github.com/meridianpay/meridian/config"
	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	stopFuncs []func()
}

func main() {
	log.Println("Starting Meridian application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// migrateDatabase applies the schema for all domain models
func migrateDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Wallet{},
		&models.DepositOrder{},
		&models.CryptoTransaction{},
		&models.LedgerEntry{},
	)
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if client == nil {
		return cancel
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := migrateDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	orderRepo := repository.NewDepositOrderRepository(db)
	txRepo := repository.NewCryptoTransactionRepository(db)
	ledgerRepo := repository.NewLedgerEntryRepository(db)

	// Services
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	gateway := services.NewXMoneyClient(cfg.XMoney.BaseURL, cfg.XMoney.APIKey, cfg.XMoney.Timeout)
	verifier := services.NewWebhookVerifier(cfg.XMoney.WebhookSecret)

	fees := businessflow.NewFeeCalculator(map[models.FeeTier]float64{
		models.FeeTierStandard: cfg.Deposits.StandardFeePercent,
		models.FeeTierSilver:   cfg.Deposits.SilverFeePercent,
		models.FeeTierGold:     cfg.Deposits.GoldFeePercent,
		models.FeeTierVIP:      cfg.Deposits.VIPFeePercent,
	})

	// Flows
	ledgerService := businessflow.NewLedgerService(walletRepo, ledgerRepo, db)

	authFlow := businessflow.NewAuthFlow(userRepo, walletRepo, tokenService, db)

	depositFlow := businessflow.NewDepositFlow(
		userRepo,
		walletRepo,
		orderRepo,
		txRepo,
		gateway,
		fees,
		businessflow.DepositConfig{
			MinAmountCents: cfg.Deposits.MinAmountCents,
			MaxAmountCents: cfg.Deposits.MaxAmountCents,
			OrderTTL:       cfg.Deposits.OrderTTL,
			CallbackURL:    cfg.XMoney.CallbackURL,
			ReturnURL:      cfg.XMoney.ReturnURL,
		},
		db,
	)

	var cacheClient redis.UniversalClient
	if rc != nil {
		cacheClient = rc
	}
	webhookFlow := businessflow.NewWebhookFlow(orderRepo, txRepo, ledgerService, verifier, cacheClient, db)
	walletFlow := businessflow.NewWalletFlow(userRepo, walletRepo, ledgerService)

	// Handlers
	authHandler := handlers.NewAuthHandler(authFlow)
	depositHandler := handlers.NewDepositHandler(depositFlow)
	walletHandler := handlers.NewWalletHandler(walletFlow)
	webhookHandler := handlers.NewWebhookHandler(webhookFlow)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Background workers
	sweeper := scheduler.NewExpirySweeper(orderRepo, cfg.Workers.SweepInterval, cfg.Workers.SweepBatchSize)
	stopFuncs = append(stopFuncs, sweeper.Start(context.Background()))

	reconciler := scheduler.NewReconciliationWorker(webhookFlow, cfg.Workers.ReconcileInterval, cfg.Workers.ReconcileBatchSize)
	stopFuncs = append(stopFuncs, reconciler.Start(context.Background()))

	r := router.NewFiberRouter(
		authHandler,
		depositHandler,
		walletHandler,
		webhookHandler,
		authMiddleware,
		cfg.Security.AllowedOrigins,
	)

	return &Application{
		router:    r,
		config:    cfg,
		stopFuncs: stopFuncs,
	}, nil
}
