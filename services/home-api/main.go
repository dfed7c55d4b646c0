package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KishorKumar15007/aqimonitor/internal/logging"
	"github.com/KishorKumar15007/aqimonitor/internal/rtdb"
	"github.com/KishorKumar15007/aqimonitor/internal/sysstats"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

func main() {
	// 1. Načtení konfigurace
	cfg, src := LoadConfig()

	// 2. Logger (JSON na stdout, volitelně i do MQTT)
	logOpts := logging.Options{Service: "home-api", Level: cfg.LogLevel}
	if cfg.LogMQTT {
		logOpts.MQTTBroker = cfg.RTDB.MQTTBroker
	}
	logger, closeLogs, err := logging.Setup(logOpts)
	if err != nil {
		logger.Warn("Logy nepůjdou do MQTT", "error", err)
	}
	defer closeLogs()

	if err := src.Err(); err != nil {
		logger.Warn("Konfigurační soubor nelze načíst, používám ENV a defaulty", "error", err)
	}
	logger.Info("Startuji Home API", "port", cfg.HTTPPort, "backend", cfg.RTDB.Backend, "config_file", src.File())

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("Neznámá časová zóna, používám Local", "timezone", cfg.Timezone, "error", err)
		loc = time.Local
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Jediný klient realtime stromu pro celý proces
	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	client, err := rtdb.Open(connectCtx, cfg.RTDB, logger)
	cancelConnect()
	if err != nil {
		logger.Error("Kritická chyba: Nelze se připojit k realtime stromu", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// 4. Systémové statistiky na pozadí
	monitor := sysstats.NewMonitor(cfg.SystemInterval, nil, logger.With("component", "sysstats"))
	go monitor.Run(ctx)

	// 5. Wiring
	opts := telemetry.ViewOptions{Threshold: cfg.LiveThreshold, Location: loc}
	svc := NewService(client, cfg.RTDB.Backend, cfg.DeviceIDs, opts, monitor)
	streams := NewStreamHandler(svc, cfg.StreamRefresh, cfg.CORSOrigins, logger)
	api := NewAPIHandler(svc, streams, logger)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Routes(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Přijat signál ukončení, vypínám...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown selhal", "error", err)
		}
	}()

	logger.Info("HTTP server naslouchá", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server spadl", "error", err)
		os.Exit(1)
	}
}
