package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/KishorKumar15007/aqimonitor/internal/logging"
)

func main() {
	// 1. Konfigurace a logger
	cfg, src := LoadConfig()

	logOpts := logging.Options{Service: "web-dashboard", Level: cfg.LogLevel}
	if cfg.LogMQTT {
		logOpts.MQTTBroker = cfg.MQTTBroker
	}
	logger, closeLogs, err := logging.Setup(logOpts)
	if err != nil {
		logger.Warn("Logy jdou jen na stdout", "error", err)
	}
	defer closeLogs()

	if err := src.Err(); err != nil {
		logger.Warn("Konfigurační soubor nelze načíst, používám ENV a defaulty", "error", err)
	}
	logger.Info("Startuji Web Dashboard", "port", cfg.HTTPPort, "api_url", cfg.APIURL, "public_api_url", cfg.APIPublicURL)

	// 2. Komponenty
	client := NewAPIClient(cfg.APIURL)
	handler, err := NewWebHandler(client, cfg, logger)
	if err != nil {
		logger.Error("Kritická chyba: Nepodařilo se načíst HTML šablony", "dir", cfg.TemplateDir, "error", err)
		os.Exit(1)
	}

	// 3. Routování
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Web server naslouchá", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server nečekaně spadl", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Ukončuji Web Dashboard...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Chyba při ukončování serveru", "error", err)
	}
}

// Routes vrací router se všemi stránkami.
func (h *WebHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", h.HandleDashboard)
	r.Get("/analytics", h.HandleAnalytics)
	r.Get("/devices", h.HandleDevices)
	r.Get("/alerts", h.HandleAlerts)

	// Healthcheck pro Docker: služba žije i bez Home API, jen to nahlásí.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := h.checkBackend(r.Context()); err != nil {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK (api unavailable)"))
			return
		}
		w.Write([]byte("OK"))
	})
	return r
}
