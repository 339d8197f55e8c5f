// Package whatsapp implements the webhook server that receives inbound
// WhatsApp events from the gateway and turns VIN messages into report
// deliveries.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moalhelu/dejavplus-bots/internal/config"
)

// Server is the webhook HTTP front end.
type Server struct {
	echo    *echo.Echo
	cfg     config.WhatsAppConfig
	handler *Handler
	metrics *Metrics
	log     *slog.Logger
}

// NewServer wires routes and middleware for the webhook endpoint.
func NewServer(cfg config.WhatsAppConfig, handler *Handler, metrics *Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		cfg:     cfg,
		handler: handler,
		metrics: metrics,
		log:     log.With("component", "wa_server"),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			s.log.Info("HTTP request",
				"method", values.Method,
				"uri", values.URI,
				"status", values.Status,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
			if s.metrics != nil {
				s.metrics.RequestsTotal.WithLabelValues(
					values.Method, c.Path(), strconv.Itoa(values.Status),
				).Inc()
			}
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.POST("/whatsapp/webhook", s.handleWebhook)
	s.echo.POST("/whatsapp", s.handleWebhook)
	s.echo.GET("/whatsapp/health", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}),
		))
	}
}

// handleWebhook acks the gateway immediately and processes events in the
// background; gateways retry slow responses, which would only pile up
// duplicate deliveries behind the dedup cache.
func (s *Server) handleWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}

	events, err := ParseEvents(payload)
	if err != nil {
		s.log.Warn("Webhook payload is not valid JSON", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	for _, ev := range events {
		ev := ev
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandlerTimeout)
			defer cancel()
			s.handler.HandleEvent(ctx, ev)
		}()
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":   "accepted",
		"received": len(events),
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting webhook server", "address", address)
		if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("webhook server failed: %w", err)
		}
		return errors.New("webhook server stopped unexpectedly")
	case <-ctx.Done():
	}

	s.log.Info("Shutdown signal received, stopping webhook server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook server shutdown failed: %w", err)
	}
	s.log.Info("Webhook server stopped gracefully.")
	return nil
}
