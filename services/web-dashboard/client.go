package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KishorKumar15007/aqimonitor/internal/chart"
	"github.com/KishorKumar15007/aqimonitor/internal/sysstats"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

// --- DATOVÉ MODELY (DTO) ---
// Musí odpovídat tomu, co posílá Home API.

// DeviceDTO je položka GET /api/devices.
type DeviceDTO struct {
	ID   string             `json:"id"`
	Live telemetry.LiveView `json:"live"`
}

// SystemDTO odpovídá GET /api/system.
type SystemDTO struct {
	Ready   bool           `json:"ready"`
	Stats   sysstats.Stats `json:"stats"`
	Backend string         `json:"backend"`
}

// APIClient zapouzdřuje HTTP volání na Home API.
type APIClient struct {
	BaseURL    string
	httpClient *http.Client
}

// NewAPIClient vytváří instanci klienta. Timeout je nutný, defaultní http.Client žádný nemá.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// get provede GET a dekóduje JSON odpověď do out.
func (c *APIClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("chyba sestavení požadavku: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chyba sítě při volání API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chyba při parsování JSONu: %w", err)
	}
	return nil
}

// APIError je ne-200 odpověď Home API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API vrátilo chybný status: %d", e.Status)
	}
	return fmt.Sprintf("API vrátilo chybný status: %d (%s)", e.Status, e.Message)
}

func devicePath(deviceID, suffix string) string {
	return "/api/devices/" + url.PathEscape(deviceID) + "/" + suffix
}

// GetLive: GET /api/devices/{id}/live
func (c *APIClient) GetLive(ctx context.Context, deviceID string) (telemetry.LiveView, error) {
	var v telemetry.LiveView
	err := c.get(ctx, devicePath(deviceID, "live"), nil, &v)
	return v, err
}

// GetChart: GET /api/devices/{id}/chart. metrics == nil znamená všechny metriky.
func (c *APIClient) GetChart(ctx context.Context, deviceID string, g telemetry.Granularity, metrics []telemetry.Metric) (chart.Chart, error) {
	q := url.Values{"range": {string(g)}}
	if metrics != nil {
		names := make([]string, len(metrics))
		for i, m := range metrics {
			names[i] = string(m)
		}
		q.Set("metrics", strings.Join(names, ","))
	}
	var ch chart.Chart
	err := c.get(ctx, devicePath(deviceID, "chart"), q, &ch)
	return ch, err
}

// GetAlerts: GET /api/devices/{id}/alerts
func (c *APIClient) GetAlerts(ctx context.Context, deviceID string) ([]telemetry.AlertView, error) {
	var alerts []telemetry.AlertView
	err := c.get(ctx, devicePath(deviceID, "alerts"), nil, &alerts)
	return alerts, err
}

// GetDevices: GET /api/devices
func (c *APIClient) GetDevices(ctx context.Context) ([]DeviceDTO, error) {
	var devices []DeviceDTO
	err := c.get(ctx, "/api/devices", nil, &devices)
	return devices, err
}

// GetSystem: GET /api/system
func (c *APIClient) GetSystem(ctx context.Context) (SystemDTO, error) {
	var s SystemDTO
	err := c.get(ctx, "/api/system", nil, &s)
	return s, err
}
