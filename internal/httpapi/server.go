package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tidewatch.in/hazard/internal/globaltime"
	"tidewatch.in/hazard/internal/media"
	"tidewatch.in/hazard/internal/observability"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	MediaDir        string
	MediaPathPrefix string

	RateLimitWindow time.Duration
	RateLimitMax    int
}

type Server struct {
	service reportService
	media   media.Store
	logger  zerolog.Logger
	metrics *observability.Metrics
	opts    Options
}

func NewServer(service reportService, mediaStore media.Store, logger zerolog.Logger, metrics *observability.Metrics, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		// Submissions wait on enrichment, which may spend up to the stage
		// timeout per capability.
		writeTimeout = 60 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	mediaPrefix := strings.TrimSpace(opts.MediaPathPrefix)
	if mediaPrefix == "" {
		mediaPrefix = "/uploads"
	}

	return &Server{
		service: service,
		media:   mediaStore,
		logger:  logger,
		metrics: metrics,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			MediaDir:        opts.MediaDir,
			MediaPathPrefix: mediaPrefix,
			RateLimitWindow: opts.RateLimitWindow,
			RateLimitMax:    opts.RateLimitMax,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.service == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("hazardwatch api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("hazardwatch api server stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	var limiter *FixedWindowLimiter
	if s.opts.RateLimitMax > 0 && s.opts.RateLimitWindow > 0 {
		limiter = NewFixedWindowLimiter(s.opts.RateLimitWindow, s.opts.RateLimitMax)
	}

	e.POST("/submit-report", s.handleSubmitReport, s.submitRateLimit(limiter, s.metrics))
	e.GET("/reports", s.handleListReports)
	e.POST("/reports/:id/verify", s.handleVerifyReport)

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/api/uploads", s.handleListUploads)

	if s.opts.MediaDir != "" {
		e.Static(s.opts.MediaPathPrefix, s.opts.MediaDir)
	}

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		if text, ok := he.Message.(string); ok && strings.TrimSpace(text) != "" {
			message = text
		} else if text := strings.TrimSpace(http.StatusText(status)); text != "" {
			message = text
		}
	}

	if status >= 500 {
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("unhandled http error")
		message = "Server error"
	}

	_ = c.JSON(status, messageResponse{Message: message})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service": "hazardwatch",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleListUploads(c echo.Context) error {
	if s.media == nil {
		return c.JSON(http.StatusOK, map[string]any{"files": []string{}})
	}
	files, err := s.media.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("list uploads failed")
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Unable to read uploads folder"})
	}
	return c.JSON(http.StatusOK, map[string]any{"files": files})
}

func parseClampedInt(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return value
}
