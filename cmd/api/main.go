package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ims-platform/inventory-service/internal/application"
	mongoRepo "github.com/ims-platform/inventory-service/internal/infrastructure/mongodb"
	"github.com/ims-platform/inventory-service/pkg/api"
	apperrors "github.com/ims-platform/inventory-service/pkg/errors"
	"github.com/ims-platform/inventory-service/pkg/kafka"
	"github.com/ims-platform/inventory-service/pkg/logging"
	"github.com/ims-platform/inventory-service/pkg/metrics"
	"github.com/ims-platform/inventory-service/pkg/middleware"
	"github.com/ims-platform/inventory-service/pkg/mongodb"
	"github.com/ims-platform/inventory-service/pkg/outbox"
	outboxMongo "github.com/ims-platform/inventory-service/pkg/outbox/mongodb"
	"github.com/ims-platform/inventory-service/pkg/tracing"
)

const serviceName = "inventory-service"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting inventory-service API")

	config := loadConfig()
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	// Initialize MongoDB
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	// Initialize Kafka producer behind a circuit breaker
	producer := kafka.NewCircuitBreakerProducer(kafka.NewProducer(config.Kafka), m, logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	// Initialize repositories
	outboxRepo := outboxMongo.NewRepository(mongoClient.Database())
	if err := outboxRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to create outbox indexes")
	}
	store := mongoRepo.NewInventoryStore(mongoClient, outboxRepo, kafka.Topics, m, logger)
	ledger := mongoRepo.NewMovementLedger(mongoClient, outboxRepo, kafka.Topics, m, logger)

	// Start the outbox publisher
	outboxPublisher := outbox.NewPublisher(outboxRepo, producer, logger, &outbox.PublisherConfig{
		Source:       "/" + serviceName,
		PollInterval: config.OutboxPollInterval,
		BatchSize:    100,
	})
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started", "pollInterval", config.OutboxPollInterval)

	// Initialize application services
	stockService := application.NewStockApplicationService(
		store, ledger, config.Stock, m, logger)
	reportService := application.NewReportApplicationService(store, logger)

	// Setup Gin router with the standard middleware chain
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(serviceName)))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	inventory := router.Group("/api/v1/inventory")
	{
		inventory.POST("", createInventoryHandler(stockService, logger, config.RequestTimeout))
		inventory.GET("", listInventoryHandler(stockService, logger))

		inventory.GET("/:productId", getRecordHandler(stockService, logger))
		inventory.POST("/:productId/add", movementHandler(stockService, logger, config.RequestTimeout, movementAdd))
		inventory.POST("/:productId/remove", movementHandler(stockService, logger, config.RequestTimeout, movementRemove))
		inventory.POST("/:productId/adjust", adjustStockHandler(stockService, logger, config.RequestTimeout))
		inventory.POST("/:productId/reserve", movementHandler(stockService, logger, config.RequestTimeout, movementReserve))
		inventory.POST("/:productId/release", movementHandler(stockService, logger, config.RequestTimeout, movementRelease))
		inventory.PUT("/:productId/threshold", updateThresholdHandler(stockService, logger, config.RequestTimeout))
		inventory.GET("/:productId/movements", listMovementsHandler(stockService, logger))
	}

	reports := router.Group("/api/v1/reports")
	{
		reports.GET("/low-stock", lowStockReportHandler(reportService, logger))
		reports.GET("/out-of-stock", outOfStockReportHandler(reportService, logger))
		reports.GET("/summary", summaryReportHandler(reportService, logger))
	}

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr         string
	RequestTimeout     time.Duration
	OutboxPollInterval time.Duration
	MongoDB            *mongodb.Config
	Kafka              *kafka.Config
	Stock              application.StockServiceConfig
}

func loadConfig() *Config {
	return &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8008"),
		RequestTimeout:     getTimeEnv("REQUEST_TIMEOUT", 5*time.Second),
		OutboxPollInterval: getTimeEnv("OUTBOX_POLL_INTERVAL", time.Second),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "inventory"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:      []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			ClientID:     serviceName,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
		},
		Stock: application.StockServiceConfig{
			MaxAttempts:    getIntEnv("STOCK_MAX_ATTEMPTS", 5),
			InitialBackoff: getTimeEnv("STOCK_INITIAL_BACKOFF", 10*time.Millisecond),
			MaxBackoff:     getTimeEnv("STOCK_MAX_BACKOFF", 250*time.Millisecond),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getTimeEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

const (
	movementAdd     = "add"
	movementRemove  = "remove"
	movementReserve = "reserve"
	movementRelease = "release"
)

const headerIdempotencyKey = "Idempotency-Key"

// movementRequest is the body shared by the delta movement routes
type movementRequest struct {
	Quantity       int64  `json:"quantity" binding:"required"`
	Reason         string `json:"reason" binding:"omitempty,safe_string,max=255"`
	IdempotencyKey string `json:"idempotencyKey" binding:"omitempty,movement_key"`
}

func (r *movementRequest) key(c *gin.Context) string {
	if r.IdempotencyKey != "" {
		return r.IdempotencyKey
	}
	return c.GetHeader(headerIdempotencyKey)
}

func createInventoryHandler(service *application.StockApplicationService, logger *logging.Logger, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			ProductID        string `json:"productId" binding:"required,product_id"`
			InitialQuantity  int64  `json:"initialQuantity" binding:"gte=0"`
			ReorderThreshold int64  `json:"reorderThreshold" binding:"gte=0"`
			IdempotencyKey   string `json:"idempotencyKey" binding:"omitempty,movement_key"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		key := req.IdempotencyKey
		if key == "" {
			key = c.GetHeader(headerIdempotencyKey)
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		result, err := service.CreateInventory(ctx, application.CreateInventoryCommand{
			ProductID:        req.ProductID,
			InitialQuantity:  req.InitialQuantity,
			ReorderThreshold: req.ReorderThreshold,
			IdempotencyKey:   key,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		c.JSON(status, result)
	}
}

// movementHandler serves the delta movement routes, which share a request
// shape and differ only in the applied kind.
func movementHandler(service *application.StockApplicationService, logger *logging.Logger, timeout time.Duration, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req movementRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		productID := c.Param("productId")
		key := req.key(c)

		var (
			result *application.MovementResultDTO
			err    error
		)
		switch kind {
		case movementAdd:
			result, err = service.AddStock(ctx, application.AddStockCommand{
				ProductID: productID, Quantity: req.Quantity, Reason: req.Reason, IdempotencyKey: key,
			})
		case movementRemove:
			result, err = service.RemoveStock(ctx, application.RemoveStockCommand{
				ProductID: productID, Quantity: req.Quantity, Reason: req.Reason, IdempotencyKey: key,
			})
		case movementReserve:
			result, err = service.ReserveStock(ctx, application.ReserveStockCommand{
				ProductID: productID, Quantity: req.Quantity, Reason: req.Reason, IdempotencyKey: key,
			})
		case movementRelease:
			result, err = service.ReleaseReservation(ctx, application.ReleaseReservationCommand{
				ProductID: productID, Quantity: req.Quantity, Reason: req.Reason, IdempotencyKey: key,
			})
		}
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func adjustStockHandler(service *application.StockApplicationService, logger *logging.Logger, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			NewQuantity    *int64 `json:"newQuantity" binding:"required,gte=0"`
			Reason         string `json:"reason" binding:"omitempty,safe_string,max=255"`
			IdempotencyKey string `json:"idempotencyKey" binding:"omitempty,movement_key"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		key := req.IdempotencyKey
		if key == "" {
			key = c.GetHeader(headerIdempotencyKey)
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		result, err := service.AdjustStock(ctx, application.AdjustStockCommand{
			ProductID:      c.Param("productId"),
			NewQuantity:    *req.NewQuantity,
			Reason:         req.Reason,
			IdempotencyKey: key,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func updateThresholdHandler(service *application.StockApplicationService, logger *logging.Logger, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			ReorderThreshold *int64 `json:"reorderThreshold" binding:"required,gte=0"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		record, err := service.UpdateReorderThreshold(ctx, application.UpdateThresholdCommand{
			ProductID:        c.Param("productId"),
			ReorderThreshold: *req.ReorderThreshold,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

func getRecordHandler(service *application.StockApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		record, err := service.GetRecord(c.Request.Context(), application.GetRecordQuery{
			ProductID: c.Param("productId"),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

func listInventoryHandler(service *application.StockApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		page := api.ParseCursor(c)
		records, nextCursor, err := service.ListInventory(c.Request.Context(), application.ListInventoryQuery{
			Cursor: page.Cursor,
			Limit:  int(page.Limit),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, api.NewCursorPage(records, nextCursor))
	}
}

func listMovementsHandler(service *application.StockApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		page := api.ParseCursor(c)
		movements, nextCursor, err := service.ListMovements(c.Request.Context(), application.ListMovementsQuery{
			ProductID: c.Param("productId"),
			Cursor:    page.Cursor,
			Limit:     int(page.Limit),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, api.NewCursorPage(movements, nextCursor))
	}
}

func lowStockReportHandler(service *application.ReportApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var query application.LowStockQuery
		if raw := c.Query("threshold"); raw != "" {
			threshold, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || threshold < 0 {
				responder.RespondWithAppError(apperrors.ErrValidation("threshold must be a non-negative integer"))
				return
			}
			query.ThresholdOverride = &threshold
		}

		report, err := service.LowStockReport(c.Request.Context(), query)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func outOfStockReportHandler(service *application.ReportApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		report, err := service.OutOfStockReport(c.Request.Context())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func summaryReportHandler(service *application.ReportApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		report, err := service.SummaryReport(c.Request.Context())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}
