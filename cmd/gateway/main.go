package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shopflow/shopflow/internal/gateway"
	"github.com/shopflow/shopflow/internal/middleware"
	"github.com/shopflow/shopflow/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	apiServiceURL := os.Getenv("API_SERVICE_URL")
	if apiServiceURL == "" {
		logger.Error("API_SERVICE_URL is required")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	apiProxy := gateway.NewServiceProxy(apiServiceURL, httpClient)
	handler := gateway.NewHandler(apiProxy, logger)

	proxy := telemetry.WithHTTPRoute(handler.HandleAPI)
	authed := telemetry.WithHTTPRoute(middleware.RequireUserID(handler.HandleAPI))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/register", proxy)
	mux.HandleFunc("POST /users/login", proxy)
	mux.HandleFunc("GET /users/me", authed)

	mux.HandleFunc("POST /products", proxy)
	mux.HandleFunc("GET /products", proxy)
	mux.HandleFunc("GET /products/{id}", proxy)

	mux.HandleFunc("GET /cart", authed)
	mux.HandleFunc("POST /cart/items", authed)
	mux.HandleFunc("PATCH /cart/items/{productId}", authed)
	mux.HandleFunc("DELETE /cart/items/{productId}", authed)

	mux.HandleFunc("POST /orders", authed)
	mux.HandleFunc("GET /orders", authed)
	mux.HandleFunc("GET /orders/{id}", authed)
	mux.HandleFunc("POST /orders/{id}/cancel", authed)

	mux.HandleFunc("GET /admin/orders", proxy)
	mux.HandleFunc("PATCH /admin/orders/{id}/status", proxy)

	var root http.Handler = mux
	root = middleware.CorrelationID(root)

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(root, "gateway",
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
		logger.Info("starting gateway service", "port", port)
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
