package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/shopflow/shopflow/internal/cart"
	"github.com/shopflow/shopflow/internal/catalog"
	"github.com/shopflow/shopflow/internal/identity"
	"github.com/shopflow/shopflow/internal/messaging"
	"github.com/shopflow/shopflow/internal/middleware"
	"github.com/shopflow/shopflow/internal/orders"
	"github.com/shopflow/shopflow/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	domainMetrics, err := telemetry.NewDomainMetrics()
	if err != nil {
		logger.Error("failed to create domain metrics", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var publisher orders.EventPublisher
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		kafkaPublisher := orders.NewKafkaPublisher(
			messaging.NewProducer(brokers, messaging.TopicOrderCreated),
			messaging.NewProducer(brokers, messaging.TopicOrderStatusChanged),
		)
		defer func() { _ = kafkaPublisher.Close() }()
		publisher = kafkaPublisher
	}

	var cartCache cart.Cache
	redisURL := os.Getenv("REDIS_URL")
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()
		cartCache = cart.NewRedisCache(redisClient)
	}

	userRepo := identity.NewPostgresRepository(db)
	productRepo := catalog.NewPostgresRepository(db)
	cartRepo := cart.NewPostgresRepository(db)
	orderRepo := orders.NewPostgresRepository(db)

	cartService := cart.NewService(cartRepo, cartCache, productRepo, logger)
	orderService := orders.NewService(orderRepo, productRepo, userRepo, publisher, logger)

	identityHandler := identity.NewHandler(userRepo, logger)
	catalogHandler := catalog.NewHandler(productRepo, logger)
	cartHandler := cart.NewHandler(cartService, domainMetrics, logger)
	orderHandler := orders.NewHandler(orderService, domainMetrics, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)

	mux.HandleFunc("POST /users/register", telemetry.WithHTTPRoute(identityHandler.HandleRegister))
	mux.HandleFunc("POST /users/login", telemetry.WithHTTPRoute(identityHandler.HandleLogin))
	mux.HandleFunc("GET /users/me", telemetry.WithHTTPRoute(middleware.RequireUserID(identityHandler.HandleMe)))

	mux.HandleFunc("POST /products", telemetry.WithHTTPRoute(catalogHandler.HandleCreate))
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleList))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleGet))

	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(middleware.RequireUserID(cartHandler.HandleGet)))
	mux.HandleFunc("POST /cart/items", telemetry.WithHTTPRoute(middleware.RequireUserID(cartHandler.HandleUpsertItem)))
	mux.HandleFunc("PATCH /cart/items/{productId}", telemetry.WithHTTPRoute(middleware.RequireUserID(cartHandler.HandleChangeQuantity)))
	mux.HandleFunc("DELETE /cart/items/{productId}", telemetry.WithHTTPRoute(middleware.RequireUserID(cartHandler.HandleRemoveItem)))

	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(middleware.RequireUserID(orderHandler.HandleCreate)))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(middleware.RequireUserID(orderHandler.HandleListMine)))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(middleware.RequireUserID(orderHandler.HandleGet)))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(middleware.RequireUserID(orderHandler.HandleCancel)))

	mux.HandleFunc("GET /admin/orders", telemetry.WithHTTPRoute(orderHandler.HandleAdminList))
	mux.HandleFunc("PATCH /admin/orders/{id}/status", telemetry.WithHTTPRoute(orderHandler.HandleAdminUpdateStatus))

	var root http.Handler = mux
	root = middleware.Recover(logger)(root)
	root = middleware.CorrelationID(root)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(root, "api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting api service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
