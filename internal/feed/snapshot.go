package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/KishorKumar15007/aqimonitor/internal/rtdb"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

// LiveSnapshot jednorázově přečte živý uzel a vrátí view-model.
func LiveSnapshot(ctx context.Context, client rtdb.Client, deviceID string, opts telemetry.ViewOptions, now time.Time) (telemetry.LiveView, error) {
	snap, err := client.Get(ctx, rtdb.DevicePath(deviceID, rtdb.NodeLive))
	if err != nil {
		return telemetry.LiveView{}, fmt.Errorf("feed: live %s: %w", deviceID, err)
	}
	reading, ok := telemetry.ParseLiveReading(snap.Value)
	return telemetry.BuildLiveView(deviceID, reading, ok, now, opts), nil
}

// HistorySnapshot jednorázově přečte kolekci historie.
func HistorySnapshot(ctx context.Context, client rtdb.Client, deviceID string, g telemetry.Granularity) (telemetry.Series, error) {
	snap, err := client.Get(ctx, rtdb.DevicePath(deviceID, string(g)))
	if err != nil {
		return telemetry.Series{}, fmt.Errorf("feed: history %s/%s: %w", deviceID, g, err)
	}
	return telemetry.Series{
		DeviceID:    deviceID,
		Granularity: g,
		Records:     telemetry.NormalizeHistory(snap.Value),
	}, nil
}

// AlertsSnapshot jednorázově přečte log alertů a vyfiltruje ho k času now.
func AlertsSnapshot(ctx context.Context, client rtdb.Client, deviceID string, opts telemetry.ViewOptions, now time.Time) ([]telemetry.AlertView, error) {
	snap, err := client.Get(ctx, rtdb.DevicePath(deviceID, rtdb.NodeAlerts))
	if err != nil {
		return nil, fmt.Errorf("feed: alerts %s: %w", deviceID, err)
	}
	return telemetry.BuildAlertViews(telemetry.ParseAlerts(snap.Value), now, opts), nil
}
