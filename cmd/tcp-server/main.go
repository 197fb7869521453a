package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventcast/internal/config"
	"eventcast/internal/microservices/admin"
	"eventcast/internal/microservices/tcp"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load config (fallback to env/default)
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Setup structured logging
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	opts := []tcp.Option{
		tcp.WithLogger(logger),
		tcp.WithBusCapacity(cfg.BusCapacity),
		tcp.WithMaxFrameSize(cfg.MaxFrameSize),
		tcp.WithReadTimeout(cfg.ReadTimeout),
		tcp.WithWriteTimeout(cfg.WriteTimeout),
		tcp.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		tcp.WithPruneInterval(cfg.PruneInterval),
	}

	var gatherer prometheus.Gatherer
	if cfg.PrometheusEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, tcp.WithMetrics(tcp.NewMetrics(reg)))
		gatherer = reg
	}

	if cfg.RedisURL != "" {
		presence, err := tcp.NewRedisPresence(cfg.RedisURL, cfg.RedisPassword, tcp.DefaultPresenceKey)
		if err != nil {
			// presence is a mirror; the server runs without it
			logger.Warn("redis_presence_unavailable",
				"redis_url", cfg.RedisURL,
				"error", err.Error(),
			)
		} else {
			defer presence.Close()
			resetCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := presence.Reset(resetCtx); err != nil {
				logger.Warn("redis_presence_reset_failed", "error", err.Error())
			}
			cancel()
			opts = append(opts, tcp.WithPresence(presence))
		}
	}

	logger.Info("starting_tcp_server",
		"tcp_addr", cfg.TCPAddr(),
		"http_addr", cfg.HTTPAddr(),
		"env", cfg.GoEnv,
	)

	server, err := tcp.NewServer(cfg.TCPAddr(), opts...)
	if err != nil {
		logger.Error("tcp_server_bind_failed", "error", err.Error())
		os.Exit(1)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: admin.NewRouter(admin.NewHandler(server, gatherer, logger), logger),
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		return server.ListenEvents(gctx, func(ev tcp.Event) {
			logger.Info("event_received",
				"opcode", ev.Opcode,
				"variant", tcp.VariantName(tcp.Classify(ev)),
				"size", len(ev.Payload),
			)
		})
	})

	g.Go(func() error {
		logger.Info("admin_http_started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Wait for shutdown signal or the first failure
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("received_shutdown_signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
		server.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("server_stopped_gracefully")
}

func newLogger(cfg *config.Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
}
