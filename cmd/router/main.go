package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultrouter/internal/config"
	cronrunner "vaultrouter/internal/cron"
	"vaultrouter/internal/handler"
	"vaultrouter/internal/hostfeed"
	"vaultrouter/internal/logger"
	"vaultrouter/internal/registry"
	"vaultrouter/internal/routing"
	"vaultrouter/internal/service"
	"vaultrouter/internal/vault"
)

func main() {
	cfgPath := os.Getenv("VR_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("VR_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	bank := vault.NewMemoryBank(cfg.Engine.Account)
	hub := vault.NewMemoryHub()
	if cfg.Sim.Enabled {
		seedSim(cfg.Sim, bank, hub, logger)
	}

	reg := registry.New(logger)
	engine := routing.NewEngine(reg, hub, bank, cfg.Engine.Account, logger)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{Registry: reg}
	healthHandler.Register(router)
	vaultHandler := &handler.VaultHandler{Registry: reg, Engine: engine, Logger: logger}
	vaultHandler.Register(router)
	contextHandler := &handler.ContextHandler{Engine: engine, Logger: logger}
	contextHandler.Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Sweeper.Enabled {
		sweeper := &service.Sweeper{
			Engine:  engine,
			Logger:  logger,
			Targets: cfg.Sweeper.Targets,
		}
		if _, err := cronRunner.Add(cfg.Sweeper.Schedule, sweeper.SweepOnce); err != nil {
			logger.Fatal("schedule sweeper failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if cfg.HostFeed.Enabled {
		feed := &hostfeed.Stream{
			URL:        cfg.HostFeed.URL,
			Engine:     engine,
			Logger:     logger,
			BackoffMin: cfg.HostFeed.BackoffMin,
			BackoffMax: cfg.HostFeed.BackoffMax,
		}
		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("host feed stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
}

// seedSim populates the in-memory bank and vault hub from config so the
// service is usable without a chain-backed collaborator.
func seedSim(cfg config.SimConfig, bank *vault.MemoryBank, hub *vault.MemoryHub, logger *zap.Logger) {
	for resourceType, raw := range cfg.Balances {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			logger.Warn("invalid sim balance", zap.String("resource_type", resourceType), zap.String("value", raw))
			continue
		}
		bank.Credit(resourceType, amount)
	}
	for _, sv := range cfg.Vaults {
		if sv.ID == "" || sv.Asset == "" {
			logger.Warn("sim vault missing id or asset", zap.String("id", sv.ID))
			continue
		}
		assets, err := decimal.NewFromString(sv.TotalAssets)
		if err != nil {
			assets = decimal.Zero
		}
		supply, err := decimal.NewFromString(sv.TotalSupply)
		if err != nil {
			supply = decimal.Zero
		}
		hub.Add(vault.NewMemoryVault(sv.ID, sv.Asset, bank).Seed(assets, supply))
		logger.Info("sim vault seeded",
			zap.String("vault", sv.ID),
			zap.String("asset", sv.Asset),
			zap.String("total_assets", assets.String()),
			zap.String("total_supply", supply.String()),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
