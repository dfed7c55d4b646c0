package main

import (
	"github.com/KishorKumar15007/aqimonitor/internal/sysstats"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

// ErrorResponse je tělo odpovědi 4xx/5xx.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DeviceDTO je položka seznamu zařízení (stránka Devices).
type DeviceDTO struct {
	ID   string             `json:"id"`
	Live telemetry.LiveView `json:"live"`
}

// SystemDTO: Ready je false, dokud neproběhlo první měření.
type SystemDTO struct {
	Ready bool           `json:"ready"`
	Stats sysstats.Stats `json:"stats"`
	// Backend: který backend realtime stromu služba používá.
	Backend string `json:"backend"`
}

// StreamMessage je jedna zpráva WebSocket streamu (server → prohlížeč).
// Type: "live", "chart", "alerts" nebo "error".
type StreamMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
	Data     any    `json:"data"`
}

// ControlMessage posílá stránka Analytics (prohlížeč → server).
// Nil pole se nemění.
type ControlMessage struct {
	Range   *string   `json:"range,omitempty"`
	Metrics *[]string `json:"metrics,omitempty"`
	Labels  *string   `json:"labels,omitempty"`
}
