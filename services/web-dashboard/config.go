package main

import (
	"github.com/KishorKumar15007/aqimonitor/internal/config"
)

// Config drží veškeré nastavení, které aplikace potřebuje k běhu.
// Dashboard se nepřipojuje k realtime stromu přímo, data bere z Home API.
type Config struct {
	// HTTPPort: Port webového serveru (např. "3000").
	HTTPPort string

	// APIURL: Adresa Home API z pohledu dashboardu (Docker síť), např. "http://home-api:8080".
	APIURL string

	// APIPublicURL: Adresa Home API z pohledu prohlížeče; na ni se otevírají WebSocket streamy.
	APIPublicURL string

	// DeviceID: zařízení zobrazené, když URL neobsahuje ?device=.
	DeviceID string

	// TemplateDir: adresář s HTML šablonami.
	TemplateDir string

	LogLevel   string
	LogMQTT    bool
	MQTTBroker string
}

// LoadConfig načte konfiguraci z ENV (a volitelně config.yaml).
func LoadConfig() (Config, *config.Source) {
	src := config.New("web-dashboard")
	return Config{
		HTTPPort:     src.String("HTTP_PORT", "3000"),
		APIURL:       src.String("API_URL", "http://home-api:8080"),
		APIPublicURL: src.String("API_PUBLIC_URL", "http://localhost:8080"),
		DeviceID:     src.String("DEVICE_ID", "device01"),
		TemplateDir:  src.String("TEMPLATE_DIR", "templates"),
		LogLevel:     src.String("LOG_LEVEL", "info"),
		LogMQTT:      src.Bool("LOG_MQTT", false),
		MQTTBroker:   src.String("MQTT_BROKER", "tcp://mosquitto:1883"),
	}, src
}
