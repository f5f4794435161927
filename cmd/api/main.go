package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/greentrace/ledger/internal/clock"
	"github.com/greentrace/ledger/internal/config"
	"github.com/greentrace/ledger/internal/handlers"
	"github.com/greentrace/ledger/internal/ledger"
	"github.com/greentrace/ledger/internal/metrics"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/p2p"
	"github.com/greentrace/ledger/internal/services"
	"github.com/greentrace/ledger/internal/storage"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Warnf("failed to load config from %s: %v", configPath, err)
		log.Info("using default configuration")
		cfg = config.DefaultConfig()
	}

	if cfg.Ledger.Authority == "" {
		log.Warn("no authority configured: verification, decisions and pause are disabled")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT secret is required, set auth.jwt_secret or JWT_SECRET")
	}

	// Initialize database
	db, err := storage.New(cfg.Database.DatabaseURL())
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		execPath, err := os.Executable()
		if err == nil {
			execDir := filepath.Dir(execPath)
			migrationsPath = filepath.Join(execDir, "..", "..", "migrations")
		} else {
			migrationsPath = "./migrations"
		}
	}
	if err := db.Migrate(migrationsPath); err != nil {
		log.Warnf("migrations failed: %v", err)
	}

	metrics.Register()

	// Initialize P2P announcer
	var announcer services.Announcer = services.NoopAnnouncer{}
	if cfg.P2P.Enabled {
		p2pNode, err := p2p.NewNode(cfg.P2P.ListenAddresses, cfg.P2P.EnableTCP, cfg.P2P.EnableQUIC)
		if err != nil {
			log.Fatalf("failed to create p2p node: %v", err)
		}
		if err := p2pNode.Start(); err != nil {
			log.Fatalf("failed to start p2p node: %v", err)
		}
		defer p2pNode.Close()

		for _, peerAddr := range cfg.P2P.BootstrapPeers {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p2pNode.Connect(ctx, peerAddr); err != nil {
				log.Warnf("failed to connect to bootstrap peer %s: %v", peerAddr, err)
			}
			cancel()
		}

		announcer = p2pNode
		log.WithField("peer_id", p2pNode.ID().String()).Info("p2p node started")
	}

	// Initialize ledger rules and services
	rules := ledger.New(ledger.Params{
		Authority:         models.Identity(cfg.Ledger.Authority),
		CreditPrice:       cfg.Ledger.CreditPrice,
		DefaultBudget:     cfg.Ledger.DefaultBudget,
		RateLimitWindow:   cfg.Ledger.RateLimitWindow,
		MaxOpsPerTick:     cfg.Ledger.MaxOpsPerTick,
		BudgetResetWindow: cfg.Ledger.BudgetResetWindow,
	})
	ticker := clock.NewSystem(cfg.Ledger.TickIntervalSeconds)

	accountService := services.NewAccountService(db, db)
	ledgerService := services.NewLedgerService(db, rules, ticker, announcer)

	// Set up HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterConfig{
		AccountService:  accountService,
		LedgerService:   ledgerService,
		JWTSecret:       cfg.Auth.JWTSecret,
		TokenExpiration: time.Duration(cfg.Auth.TokenExpirationHours) * time.Hour,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("server forced to shutdown: %v", err)
		}
	}()

	log.Infof("ledger API listening on %s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("failed to start server: %v", err)
	}

	log.Info("server exited")
}
