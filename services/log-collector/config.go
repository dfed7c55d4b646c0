package main

import (
	"github.com/KishorKumar15007/aqimonitor/internal/config"
)

// Config drží nastavení služby Log Collector.
type Config struct {
	// MQTTBroker: Adresa brokera (např. tcp://mosquitto:1883)
	MQTTBroker string

	// MQTTClientID: Unikátní ID klienta.
	MQTTClientID string

	// LogTopic: Topic, na kterém posloucháme logy (např. "logs/#")
	LogTopic string

	// LogDir: Adresář pro soubory <service>.log. V Dockeru namapovaný volume.
	LogDir string

	LogLevel string
}

// LoadConfig načte konfiguraci z ENV (a volitelně config.yaml).
func LoadConfig() (Config, *config.Source) {
	src := config.New("log-collector")
	return Config{
		MQTTBroker:   src.String("MQTT_BROKER", "tcp://mosquitto:1883"),
		MQTTClientID: src.String("MQTT_CLIENT_ID", "log-collector"),
		LogTopic:     src.String("LOG_TOPIC", "logs/#"),
		LogDir:       src.String("LOG_DIR", "/var/log/aqimonitor"),
		LogLevel:     src.String("LOG_LEVEL", "info"),
	}, src
}
