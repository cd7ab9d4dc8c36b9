package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/config"
	"github.com/travelhub/booking-backend/internal/database"
	"github.com/travelhub/booking-backend/internal/handlers"
	"github.com/travelhub/booking-backend/internal/middleware"
	"github.com/travelhub/booking-backend/internal/services"
	"github.com/travelhub/booking-backend/pkg/jwt"
	"github.com/travelhub/booking-backend/pkg/validator"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting travel booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Database
	logger.WithField("driver", cfg.Database.Driver).Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(migrateCtx, db)
		cancel()
		if err != nil {
			logger.Fatalf("Failed to apply schema: %v", err)
		}
		logger.Info("Database schema is up to date")
	}

	// Redis backs the trip cache and the rate limiter
	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.WithField("addr", cfg.Redis.Addr).Info("Redis connected")
	} else {
		logger.Warn("REDIS_ADDR not set, trip cache and rate limiting disabled")
	}

	// Booking events
	var events services.EventPublisher = services.NoopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := services.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		events = publisher
		logger.WithField("exchange", cfg.RabbitMQ.Exchange).Info("Booking events enabled")
	}
	defer events.Close()

	// Audit log
	auditSink, closeAudit := newAuditSink(cfg, db, logger)
	defer closeAudit()
	auditService := services.NewAuditService(auditSink, logger)

	// Repositories
	tripRepository := database.NewTripRepository(db)
	bookingRepository := database.NewBookingRepository(db, tripRepository)
	userRepository := database.NewUserRepository(db)
	refreshTokenRepository := database.NewRefreshTokenRepository(db)

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	v := validator.New()
	tripCache := services.NewRedisTripCache(redisClient, cfg.Redis.TripCacheTTL)
	rateLimitService := services.NewRateLimitService(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	tripService := services.NewTripService(tripRepository, v, tripCache, auditService, logger)
	bookingService := services.NewBookingService(bookingRepository, v, tripCache, events, auditService, logger)
	authService := services.NewAuthService(
		userRepository,
		refreshTokenRepository,
		jwtService,
		v,
		cfg.Security.BcryptCost,
		auditService,
		logger,
	)
	userService := services.NewUserService(
		userRepository,
		refreshTokenRepository,
		tripRepository,
		bookingRepository,
		v,
		cfg.Security.BcryptCost,
		auditService,
		logger,
	)
	reconcileService := services.NewReconcileService(tripRepository, bookingRepository, tripCache, logger)

	cronService := services.NewCronService(reconcileService, refreshTokenRepository, cfg.Jobs.ReconcileSchedule, logger)
	if pruner, ok := auditSink.(services.AuditPruner); ok {
		cronService.WithAuditRetention(pruner, cfg.Audit.Retention)
	}
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("Cron service started")

	// Handlers
	h := handlers.Handlers{
		Auth: handlers.NewAuthHandler(authService, handlers.CookieConfig{
			Name:   cfg.JWT.CookieName,
			Domain: cfg.JWT.CookieDomain,
			Secure: cfg.JWT.CookieSecure,
		}, logger),
		Trips:    handlers.NewTripHandler(tripService, logger),
		Bookings: handlers.NewBookingHandler(bookingService, logger),
		Users:    handlers.NewUserHandler(userService, logger),
		Admin:    handlers.NewAdminHandler(cronService, logger),
	}

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestMeta())
	if cfg.Security.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db))

	v1 := router.Group("/api/v1")
	handlers.RegisterRoutes(
		v1,
		h,
		middleware.AuthMiddleware(jwtService, userRepository, cfg.JWT.CookieName, logger),
		middleware.RateLimit(rateLimitService, "auth", auditService, logger),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// newAuditSink selects the audit destination from AUDIT_SINK. The returned
// func releases whatever connection the sink holds.
func newAuditSink(cfg *config.Config, db database.DB, logger *logrus.Logger) (services.AuditSink, func()) {
	if !cfg.Security.EnableAuditLog {
		logger.Info("Audit logging disabled")
		return nil, func() {}
	}

	switch cfg.Audit.Sink {
	case "mongo":
		client, err := database.ConnectMongo(cfg.Audit.MongoURI)
		if err != nil {
			logger.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		sink := services.NewMongoAuditSink(client.Database(cfg.Audit.MongoDatabase).Collection("audit_logs"))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sink.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to create audit log indexes")
		}

		logger.WithField("database", cfg.Audit.MongoDatabase).Info("Audit events go to MongoDB")
		return sink, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
	case "none":
		logger.Info("Audit sink disabled")
		return nil, func() {}
	default:
		return database.NewAuditRepository(db), func() {}
	}
}

// healthCheckHandler reports whether the database answers
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
