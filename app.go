package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/yourusername/rentpay/billing"
	"github.com/yourusername/rentpay/config"
	"github.com/yourusername/rentpay/handlers"
	"github.com/yourusername/rentpay/middleware"
	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/mpesa"
	"github.com/yourusername/rentpay/notify"
	"github.com/yourusername/rentpay/payments"
	"github.com/yourusername/rentpay/store"
	"gorm.io/gorm"
)

// app holds the wired services shared by the serve and batch commands.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *store.Store
	notifier *notify.Dispatcher
	ledger   *billing.Service
	engine   *payments.Engine
	registry *prometheus.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func billingLocation() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}

// newLedgerApp wires the store, notification sinks and ledger. It is all the
// batch commands need.
func newLedgerApp(cfg *config.Config, db *gorm.DB, logger zerolog.Logger) *app {
	a := &app{cfg: cfg, logger: logger, store: store.New(db), registry: prometheus.NewRegistry()}

	sinks := notify.MultiSink{notify.NewDBSink(db)}
	if cfg.RabbitMQURL != "" {
		var publisher notify.Publisher
		amqpPublisher, err := notify.NewAMQPPublisher(cfg.RabbitMQURL, cfg.NotificationExchange)
		if err != nil {
			logger.Warn().Err(err).Msg("RabbitMQ unavailable, notifications will only be stored")
			publisher = &notify.FallbackPublisher{Logger: logger}
		} else {
			publisher = amqpPublisher
			a.closers = append(a.closers, amqpPublisher.Close)
		}
		sinks = append(sinks, notify.NewAMQPSink(publisher, cfg.NotificationExchange))
	}
	a.notifier = notify.NewDispatcher(sinks, logger)

	a.ledger = billing.NewService(a.store, a.notifier, billing.Config{
		DueDay:   cfg.RentDueDay,
		Policy:   cfg.ReminderPolicy(),
		Location: billingLocation(),
	}, logger)
	return a
}

// newApp wires everything the HTTP server needs on top of the ledger.
func newApp(cfg *config.Config, db *gorm.DB, logger zerolog.Logger) (*app, error) {
	a := newLedgerApp(cfg, db, logger)

	router, err := config.NewBillerRouter(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var tokens mpesa.TokenCache = mpesa.NewMemoryTokenCache()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, using in-process token cache")
			client.Close()
		} else {
			tokens = mpesa.NewRedisTokenCache(client, "rentpay:mpesa_token")
			a.closers = append(a.closers, func() { client.Close() })
		}
	}

	gateway := mpesa.NewClient(mpesa.ClientConfig{
		BaseURL:     cfg.MpesaBaseURL,
		CallbackURL: cfg.MpesaCallbackURL,
		Timeout:     cfg.MpesaTimeout,
	}, router, tokens, logger)

	a.engine = payments.NewEngine(payments.Deps{
		Store:    a.store,
		Gateway:  gateway,
		Router:   router,
		Ledger:   a.ledger,
		Notifier: a.notifier,
		Metrics:  payments.NewMetrics(a.registry),
		Logger:   logger,
	})
	return a, nil
}

func setupRouter(a *app) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(a.logger.With().Str("component", "http").Logger()))
	router.Use(middleware.NewHTTPMetrics(a.registry).Handler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "rentpay-api",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	authHandler := handlers.NewAuthHandler(a.store, a.cfg)
	paymentHandler := handlers.NewPaymentHandler(a.engine, a.logger)
	chargeHandler := handlers.NewChargeHandler(a.ledger)

	api := router.Group("/api/v1")
	{
		api.POST("/auth/refresh", authHandler.Refresh)

		// Provider-facing endpoints carry no bearer token.
		api.POST("/payments/callback", paymentHandler.Callback)
		api.POST("/payments/c2b/validation", paymentHandler.C2BValidation)
		api.POST("/payments/c2b/confirmation", paymentHandler.C2BConfirmation)

		authed := api.Group("")
		authed.Use(middleware.JwtAuthMiddleware(a.cfg))
		{
			authed.POST("/payments/stk-push", middleware.RequireRole(models.RoleTenant, models.RoleCaretaker, models.RoleAdmin), paymentHandler.InitiatePush)
			authed.GET("/payments/status/:checkoutRequestId", paymentHandler.Status)
			authed.GET("/charges/:type/:id", chargeHandler.Get)

			staff := authed.Group("/charges")
			staff.Use(middleware.RequireRole(models.RoleCaretaker, models.RoleAdmin))
			staff.POST("/generate", chargeHandler.Generate)
			staff.POST("/reminders/check", chargeHandler.CheckReminders)
			staff.POST("/water/readings", chargeHandler.RecordMeterReading)
			staff.POST("/:type/:id/payments", chargeHandler.RecordPayment)
			staff.POST("/:type/:id/refunds", chargeHandler.RecordRefund)
		}
	}
	return router
}
