package main

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/KishorKumar15007/aqimonitor/internal/chart"
	"github.com/KishorKumar15007/aqimonitor/internal/rtdb"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

// NavItem je položka postranního menu.
type NavItem struct {
	Page  string
	Path  string
	Label string
}

// Navigace nemá žádnou datovou závislost.
var navItems = []NavItem{
	{Page: "dashboard", Path: "/", Label: "Dashboard"},
	{Page: "analytics", Path: "/analytics", Label: "Analytics"},
	{Page: "devices", Path: "/devices", Label: "Devices"},
	{Page: "alerts", Path: "/alerts", Label: "Alerts"},
}

// RangeOption je tlačítko rozsahu na stránce Analytics.
type RangeOption struct {
	Value  telemetry.Granularity
	Label  string
	Active bool
}

// MetricOption je zaškrtávátko metriky na stránce Analytics.
type MetricOption struct {
	Value   telemetry.Metric
	Label   string
	Color   string
	Enabled bool
}

// WebHandler připravuje data z Home API a renderuje HTML.
type WebHandler struct {
	client    *APIClient
	logger    *slog.Logger
	tmpl      *template.Template
	publicAPI string
	deviceID  string
}

// NewWebHandler načte šablony. FuncMap se musí zaregistrovat před parsováním.
func NewWebHandler(client *APIClient, cfg Config, logger *slog.Logger) (*WebHandler, error) {
	funcMap := template.FuncMap{
		// nil pointer (chybějící hodnota) = 0
		"deref": func(f *float64) float64 {
			if f == nil {
				return 0.0
			}
			return *f
		},
		"to_json": func(v interface{}) template.JS {
			a, err := json.Marshal(v)
			if err != nil {
				return template.JS("null")
			}
			return template.JS(a)
		},
		// pct: used/total v procentech, pro progress bary systémového panelu
		"pct": func(used, total float64) float64 {
			if total <= 0 {
				return 0
			}
			return used / total * 100
		},
		"uptime": func(seconds uint64) string {
			return (time.Duration(seconds) * time.Second).String()
		},
	}

	tmpl, err := template.New("base").Funcs(funcMap).ParseGlob(filepath.Join(cfg.TemplateDir, "*.html"))
	if err != nil {
		return nil, err
	}

	return &WebHandler{
		client:    client,
		logger:    logger,
		tmpl:      tmpl,
		publicAPI: strings.TrimRight(cfg.APIPublicURL, "/"),
		deviceID:  cfg.DeviceID,
	}, nil
}

// device vrací ?device=..., jinak výchozí zařízení.
func (h *WebHandler) device(r *http.Request) (string, bool) {
	id := r.URL.Query().Get("device")
	if id == "" {
		id = h.deviceID
	}
	return id, rtdb.ValidDeviceID(id)
}

// streamURL sestaví adresu WebSocket streamu na Home API (http → ws, https → wss).
func (h *WebHandler) streamURL(deviceID, view string, extra url.Values) string {
	base := h.publicAPI
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	q := url.Values{"view": {view}}
	for k, v := range extra {
		q[k] = v
	}
	return base + "/api/devices/" + url.PathEscape(deviceID) + "/stream?" + q.Encode()
}

func (h *WebHandler) render(w http.ResponseWriter, page, title, deviceID string, data map[string]interface{}) {
	data["Page"] = page
	data["Title"] = title
	data["DeviceID"] = deviceID
	data["Nav"] = navItems

	// layout.html podle .Page vloží obsah stránky
	if err := h.tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		h.logger.Error("Chyba renderování", "page", page, "error", err)
	}
}

// backendFailed: Home API nedostupné = 502, neplatný vstup = 400.
func (h *WebHandler) backendFailed(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
		http.Error(w, apiErr.Message, http.StatusBadRequest)
		return
	}
	h.logger.Error("Chyba načítání dat", "error", err)
	http.Error(w, "Backend nedostupný", http.StatusBadGateway)
}

// HandleDashboard: / (AQI karta, LIVE badge, statistiky, systémový panel)
func (h *WebHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.device(r)
	if !ok {
		http.Error(w, "Neplatné ID zařízení", http.StatusBadRequest)
		return
	}
	live, err := h.client.GetLive(r.Context(), deviceID)
	if err != nil {
		h.backendFailed(w, err)
		return
	}
	// systémový panel není kritický
	system, err := h.client.GetSystem(r.Context())
	if err != nil {
		h.logger.Warn("Systémové statistiky nedostupné", "error", err)
	}

	h.render(w, "dashboard", "AQI Dashboard", deviceID, map[string]interface{}{
		"Live":      live,
		"System":    system,
		"StreamURL": h.streamURL(deviceID, "live", nil),
	})
}

// HandleAnalytics: /analytics?range=raw_10s&metric=aqi&metric=pm25
// Bez parametru metric jsou zapnuté všechny metriky.
func (h *WebHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.device(r)
	if !ok {
		http.Error(w, "Neplatné ID zařízení", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	g, err := telemetry.ParseGranularity(q.Get("range"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var selected []telemetry.Metric
	if q.Has("metric") {
		selected = []telemetry.Metric{}
		for _, name := range q["metric"] {
			m, err := telemetry.ParseMetric(name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			selected = append(selected, m)
		}
	}

	c, err := h.client.GetChart(r.Context(), deviceID, g, selected)
	if err != nil {
		h.backendFailed(w, err)
		return
	}

	ranges := make([]RangeOption, 0, 3)
	for _, opt := range telemetry.Granularities() {
		ranges = append(ranges, RangeOption{Value: opt, Label: opt.Label(), Active: opt == g})
	}
	metricOpts := make([]MetricOption, 0, 4)
	names := make([]string, 0, 4)
	for _, m := range telemetry.Metrics() {
		on := enabled(selected, m)
		if on {
			names = append(names, string(m))
		}
		metricOpts = append(metricOpts, MetricOption{Value: m, Label: m.DisplayName(), Color: chart.Color(m), Enabled: on})
	}

	h.render(w, "analytics", "Analytics", deviceID, map[string]interface{}{
		"Chart":   c,
		"Range":   g,
		"Ranges":  ranges,
		"Metrics": metricOpts,
		"StreamURL": h.streamURL(deviceID, "history", url.Values{
			"range":   {string(g)},
			"metrics": {strings.Join(names, ",")},
		}),
	})
}

func enabled(selected []telemetry.Metric, m telemetry.Metric) bool {
	if selected == nil {
		return true
	}
	for _, s := range selected {
		if s == m {
			return true
		}
	}
	return false
}

// HandleDevices: /devices (stav vybraného zařízení + seznam všech)
func (h *WebHandler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.device(r)
	if !ok {
		http.Error(w, "Neplatné ID zařízení", http.StatusBadRequest)
		return
	}
	live, err := h.client.GetLive(r.Context(), deviceID)
	if err != nil {
		h.backendFailed(w, err)
		return
	}
	devices, err := h.client.GetDevices(r.Context())
	if err != nil {
		h.logger.Warn("Seznam zařízení nedostupný", "error", err)
	}

	h.render(w, "devices", "Device Monitor", deviceID, map[string]interface{}{
		"Live":      live,
		"Devices":   devices,
		"StreamURL": h.streamURL(deviceID, "live", nil),
	})
}

// HandleAlerts: /alerts (alerty za 7 dní, nejnovější první)
func (h *WebHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.device(r)
	if !ok {
		http.Error(w, "Neplatné ID zařízení", http.StatusBadRequest)
		return
	}
	alerts, err := h.client.GetAlerts(r.Context(), deviceID)
	if err != nil {
		h.backendFailed(w, err)
		return
	}

	h.render(w, "alerts", "Alert History", deviceID, map[string]interface{}{
		"Alerts":    alerts,
		"StreamURL": h.streamURL(deviceID, "alerts", nil),
	})
}

// checkBackend ověří dostupnost Home API (pro /health).
func (h *WebHandler) checkBackend(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := h.client.GetSystem(ctx)
	return err
}
