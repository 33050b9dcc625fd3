package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/ucshop/config"
	"github.com/farellandr/ucshop/internal/audit"
	"github.com/farellandr/ucshop/internal/gateway"
	"github.com/farellandr/ucshop/internal/handlers"
	"github.com/farellandr/ucshop/internal/helpers"
	"github.com/farellandr/ucshop/internal/idempotency"
	"github.com/farellandr/ucshop/internal/middleware"
	"github.com/farellandr/ucshop/internal/models"
	"github.com/farellandr/ucshop/internal/notify"
	"github.com/farellandr/ucshop/internal/orders"
	"github.com/farellandr/ucshop/internal/risk"
	"github.com/farellandr/ucshop/internal/settings"
	"github.com/farellandr/ucshop/internal/stock"
)

// App holds the wired services behind the HTTP surface.
type App struct {
	Orders    *orders.Manager
	Stock     *stock.Service
	Settings  *settings.Store
	JWTSecret string
	Logger    *zap.Logger

	// TrustedProxies may set X-Forwarded-For. Client IPs feed risk scoring
	// and security logs, so nothing is trusted by default.
	TrustedProxies []string

	closers []func() error
}

func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.Logger.Warn("failed to close resource", zap.Error(err))
		}
	}
}

// NewApp wires services over an open database. Redis and Kafka are optional;
// without them an in-memory idempotency store and a logging notifier are used.
func NewApp(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*App, error) {
	cipher, err := helpers.NewCipher(cfg.SettingsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init settings cipher: %w", err)
	}

	app := &App{JWTSecret: cfg.JWTSecret, Logger: logger, TrustedProxies: cfg.TrustedProxies}

	var locks idempotency.Store = idempotency.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.closers = append(app.closers, redisClient.Close)
		locks = idempotency.NewRedisStore(redisClient, "ucshop")
		logger.Info("connected to redis")
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.KafkaBrokers, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, kafkaNotifier.Close)
		notifier = kafkaNotifier
		logger.Info("kafka notifier initialized", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	recorder := audit.NewGormRecorder(db, logger)
	app.Settings = settings.NewStore(db, cipher, recorder, logger)
	app.Stock = stock.NewService(db, recorder, logger)

	adapter := gateway.NewAdapter(app.Settings, gateway.Options{
		CallbackURL: cfg.GatewayCallbackURL,
		ReturnURL:   cfg.GatewayReturnURL,
		Currency:    cfg.GatewayCurrency,
		Locale:      cfg.GatewayLocale,
		Timeout:     cfg.GatewayTimeout,
	}, logger)

	app.Orders = orders.NewManager(orders.Dependencies{
		DB:        db,
		Gateway:   adapter,
		Risk:      risk.NewScorer(risk.NewGormHistory(db)),
		Allocator: stock.NewAllocator(logger),
		Notifier:  notifier,
		Audit:     recorder,
		Locks:     locks,
		LockTTL:   cfg.CallbackLockTTL,
		Logger:    logger,
	})

	return app, nil
}

func NewRouter(app *App) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(app.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	r.Use(gin.Recovery(), middleware.RequestLogger(app.Logger))

	r.GET("/health", func(c *gin.Context) {
		helpers.RespondWithData(c, http.StatusOK, gin.H{"status": "ok"})
	})

	orderHandler := handlers.NewOrderHandler(app.Orders)
	paymentHandler := handlers.NewPaymentHandler(app.Orders)
	adminHandler := handlers.NewAdminHandler(app.Orders)
	stockHandler := handlers.NewStockHandler(app.Stock)
	settingsHandler := handlers.NewSettingsHandler(app.Settings)

	public := r.Group("/v1")
	{
		public.POST("/payments/callback", paymentHandler.HandleCallback)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware(app.JWTSecret))
	{
		orderRoutes := protected.Group("/orders")
		{
			orderRoutes.POST("", orderHandler.CreateOrder)
			orderRoutes.GET("/:id", orderHandler.GetOrder)
			orderRoutes.POST("/:id/payment-link", orderHandler.RegeneratePaymentLink)
			orderRoutes.GET("/:id/qr", orderHandler.GenerateCodeQR)
		}

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/orders/:id/approve", adminHandler.ApproveOrder)
			admin.POST("/orders/:id/refund", adminHandler.RefundOrder)
			admin.PUT("/orders/:id/delivery", adminHandler.UpdateDelivery)
			admin.POST("/orders/:id/fulfill", adminHandler.FulfillOrder)

			admin.POST("/products/:id/stock", stockHandler.ImportStock)
			admin.GET("/products/:id/stock", stockHandler.StockSummary)

			admin.GET("/settings/gateway", settingsHandler.GetGatewaySettings)
			admin.PUT("/settings/gateway", settingsHandler.UpdateGatewaySettings)
		}
	}

	return r, nil
}

func Start(cfg *config.Config, logger *zap.Logger) error {
	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := config.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	app, err := NewApp(cfg, db, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	router, err := NewRouter(app)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}
