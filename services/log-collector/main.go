package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/KishorKumar15007/aqimonitor/internal/logging"
)

func main() {
	cfg, src := LoadConfig()

	// Vlastní logy jen na stdout, jinak by si collector posílal logy sám sobě.
	logger := logging.New(os.Stdout, "log-collector", cfg.LogLevel)
	if err := src.Err(); err != nil {
		logger.Warn("Konfigurační soubor nelze načíst, používám ENV a defaulty", "error", err)
	}
	logger.Info("Startuji Log Collector", "dir", cfg.LogDir, "topic", cfg.LogTopic)

	collector, err := NewCollector(cfg.LogDir, logger)
	if err != nil {
		logger.Error("Kritická chyba", "error", err)
		os.Exit(1)
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		collector.Handle(msg.Topic(), msg.Payload())
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBroker).SetClientID(cfg.MQTTClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	// Po každém (re)connectu se musíme přihlásit znovu, session není persistentní.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(cfg.LogTopic, 0, handler)
		if token.WaitTimeout(10*time.Second) && token.Error() != nil {
			logger.Error("Subscribe failed", "topic", cfg.LogTopic, "error", token.Error())
			return
		}
		logger.Info("Poslouchám logy", "topic", cfg.LogTopic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("Spojení s MQTT ztraceno", "error", err)
	})

	client := mqtt.NewClient(opts)
	// S ConnectRetry token dokončí až úspěšné připojení; nečekáme na něj.
	client.Connect()
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("Ukončuji Log Collector")
}
