package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/disaster-response/internal/aggregator"
	"github.com/mr1hm/disaster-response/internal/alerts"
	"github.com/mr1hm/disaster-response/internal/api"
	"github.com/mr1hm/disaster-response/internal/config"
	"github.com/mr1hm/disaster-response/internal/geo"
	internalgrpc "github.com/mr1hm/disaster-response/internal/grpc"
	"github.com/mr1hm/disaster-response/internal/hub"
	"github.com/mr1hm/disaster-response/internal/ingestion"
	"github.com/mr1hm/disaster-response/internal/logging"
	"github.com/mr1hm/disaster-response/internal/observability"
	"github.com/mr1hm/disaster-response/internal/repository"
	"github.com/mr1hm/disaster-response/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "store", cfg.Store.Driver)

	store, err := repository.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		logging.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	h := hub.New(
		hub.WithWriteTimeout(cfg.Hub.WriteTimeout),
		hub.WithMetrics(metrics),
	)

	agg := aggregator.New(buildProviders(cfg.Providers, metrics))

	var sender alerts.Sender
	if cfg.Alerts.Enabled() {
		sender = alerts.NewTwilio(cfg.Alerts.TwilioAccountSID, cfg.Alerts.TwilioAuthToken, cfg.Alerts.TwilioFromNumber, cfg.Alerts.TwilioURL)
	} else {
		slog.Warn("Twilio credentials missing, SMS alerts disabled")
	}
	registry := alerts.NewRegistry(store)
	dispatcher := alerts.NewDispatcher(sender, registry, cfg.Alerts.Workers, cfg.Alerts.BufferSize, metrics)
	dispatcher.Start(ctx)

	pipelineOpts := []ingestion.Option{
		ingestion.WithLabeler(agg),
		ingestion.WithNotifier(dispatcher),
		ingestion.WithMetrics(metrics),
	}
	var mirror *stream.KafkaMirror
	if cfg.Kafka.Enabled() {
		mirror = stream.NewKafkaMirror(cfg.Kafka)
		pipelineOpts = append(pipelineOpts, ingestion.WithMirror(mirror))
		slog.Info("mirroring reports to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	pipeline := ingestion.NewPipeline(store, h, pipelineOpts...)

	var grpcServer *internalgrpc.Server
	if cfg.GRPC.Enabled {
		grpcServer = internalgrpc.NewServer(store, h)
		go func() {
			grpcAddr := fmt.Sprintf(":%d", cfg.GRPC.Port)
			if err := grpcServer.Start(grpcAddr); err != nil {
				logging.Fatalf("gRPC server error: %v", err)
			}
		}()
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(api.Deps{
		Geo:           agg,
		Reports:       store,
		Store:         store,
		Ingest:        pipeline,
		Alerts:        dispatcher,
		Subscriptions: registry,
		WS:            hub.NewWSHandler(h, cfg.Hub.IdleTimeout, cfg.Server.CORSOrigins),
		Metrics:       api.MetricsHandler(),
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Close the hub first so WebSocket handlers return and Shutdown can finish.
	h.Close()
	if grpcServer != nil {
		grpcServer.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Drain queued alerts before canceling the workers' context.
	dispatcher.Stop()
	pipeline.Close()
	cancel()
	if mirror != nil {
		if err := mirror.Close(); err != nil {
			slog.Error("kafka writer close error", "error", err)
		}
	}

	slog.Info("shutdown complete")
}

// buildProviders only sets providers whose credentials are present, so an
// unconfigured provider shows up as an unreachable slot instead of a
// typed-nil interface.
func buildProviders(cfg config.ProvidersConfig, metrics *observability.Metrics) aggregator.Options {
	opts := aggregator.Options{
		Seismic:  geo.NewUSGS(cfg.USGSURL, cfg.Timeout),
		Timeout:  cfg.Timeout,
		CacheTTL: cfg.AggregateCacheTTL,
		Metrics:  metrics,
	}

	if cfg.OpenWeatherKey != "" {
		opts.Weather = geo.NewOpenWeather(cfg.OpenWeatherKey, cfg.OpenWeatherURL, cfg.Timeout)
	} else {
		slog.Warn("OPENWEATHER_API_KEY not set, weather disabled")
	}

	if cfg.GoogleMapsKey == "" {
		slog.Warn("GOOGLE_MAPS_API_KEY not set, facilities and place labels disabled")
		return opts
	}
	mapsClient, err := geo.NewGoogleClient(cfg.GoogleMapsKey, cfg.GoogleMapsURL, cfg.Timeout)
	if err != nil {
		slog.Error("google maps client unavailable, facilities and place labels disabled", "error", err)
		return opts
	}
	opts.Facilities = geo.NewGooglePlaces(mapsClient)
	opts.Geocoder = geo.NewCachedGeocoder(geo.NewGoogleGeocoder(mapsClient), cfg.GeocodeCacheSize)

	return opts
}
