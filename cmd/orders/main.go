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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/beauzead/order-engine/internal/checkout"
	"github.com/beauzead/order-engine/internal/messaging"
	"github.com/beauzead/order-engine/internal/orders"
	"github.com/beauzead/order-engine/internal/payments"
	"github.com/beauzead/order-engine/internal/telemetry"
	"github.com/beauzead/order-engine/internal/webhook"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	gatewayURL := os.Getenv("PAYMENT_GATEWAY_URL")
	if gatewayURL == "" {
		logger.Error("PAYMENT_GATEWAY_URL environment variable is required")
		os.Exit(1)
	}

	secretKey := os.Getenv("PAYMENT_SECRET_KEY")
	if secretKey == "" {
		logger.Error("PAYMENT_SECRET_KEY environment variable is required")
		os.Exit(1)
	}

	webhookSecret := os.Getenv("PAYMENT_WEBHOOK_SECRET")
	if webhookSecret == "" {
		logger.Error("PAYMENT_WEBHOOK_SECRET environment variable is required")
		os.Exit(1)
	}

	cartServiceURL := os.Getenv("CART_SERVICE_URL")
	if cartServiceURL == "" {
		logger.Error("CART_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	catalogServiceURL := os.Getenv("CATALOG_SERVICE_URL")
	if catalogServiceURL == "" {
		logger.Error("CATALOG_SERVICE_URL environment variable is required")
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

	var producer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		producer = messaging.NewProducer(brokers, "order.payment")
		defer func() { _ = producer.Close() }()
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	store := orders.NewStore(db)
	paymentsClient := payments.NewClient(gatewayURL, secretKey, httpClient)
	cartClient := checkout.NewCartClient(cartServiceURL, httpClient)
	catalogClient := checkout.NewCatalogClient(catalogServiceURL, httpClient)

	checkoutHandler := checkout.NewHandler(cartClient, catalogClient, paymentsClient, store, logger)
	ordersHandler := orders.NewHandler(store, logger)

	var publisher webhook.OutcomePublisher
	if producer != nil {
		publisher = producer
	}
	webhookHandler := webhook.NewHandler(store, webhookSecret, publisher, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(checkoutHandler.HandleCheckout))
	mux.HandleFunc("GET /checkout/sessions/{id}", telemetry.WithHTTPRoute(checkoutHandler.HandleRetrieveSession))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(ordersHandler.HandleList))
	mux.HandleFunc("GET /orders/shipping", telemetry.WithHTTPRoute(ordersHandler.HandleListShipping))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.HandleFunc("POST /orders/{id}/transitions", telemetry.WithHTTPRoute(ordersHandler.HandleTransition))
	mux.HandleFunc("POST /webhooks/payment", telemetry.WithHTTPRoute(webhookHandler.HandleEvent))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "orders",
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
		logger.Info("starting orders service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
