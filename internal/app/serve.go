package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tidewatch.in/hazard/internal/cli"
	"tidewatch.in/hazard/internal/config"
	"tidewatch.in/hazard/internal/db"
	"tidewatch.in/hazard/internal/enrich"
	"tidewatch.in/hazard/internal/events"
	"tidewatch.in/hazard/internal/httpapi"
	"tidewatch.in/hazard/internal/logging"
	"tidewatch.in/hazard/internal/media"
	"tidewatch.in/hazard/internal/observability"
	"tidewatch.in/hazard/internal/report"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8080, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	mediaStore, err := media.NewDiskStore(cfg.MediaDir)
	if err != nil {
		logger.Error().Err(err).Str("dir", cfg.MediaDir).Msg("media store init failed")
		fmt.Fprintf(os.Stderr, "Failed to initialize media store: %v\n", err)
		return 1
	}

	metrics := observability.NewMetrics()

	var publisher events.Publisher = events.NopPublisher{}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		kafkaPub := events.NewKafkaPublisher(brokers, cfg.KafkaEventTopic, logger)
		defer kafkaPub.Close()
		publisher = kafkaPub
	}

	service := report.NewService(report.Options{
		Store:     pool,
		Enricher:  enrich.New(cfg, logger, metrics),
		Publisher: publisher,
		Logger:    logger,
		Metrics:   metrics,
		Epsilon:   cfg.ClusterEpsilon,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	srv := httpapi.NewServer(service, mediaStore, logger, metrics, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		MediaDir:        cfg.MediaDir,
		MediaPathPrefix: cfg.MediaPathPrefix,
		RateLimitWindow: cfg.RateLimitWindow,
		RateLimitMax:    cfg.RateLimitMax,
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
