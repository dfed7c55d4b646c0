package feed

import (
	"context"
	"fmt"

	"github.com/KishorKumar15007/aqimonitor/internal/rtdb"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

// AlertReader sleduje devices/<id>/alerts. Každý push přefiltruje celý log
// vůči času čtení (okno 7 dní), bez stránkování.
type AlertReader struct {
	lifecycle

	client   rtdb.Client
	deviceID string
	opts     telemetry.ViewOptions
	now      Clock

	records  []telemetry.AlertRecord
	onUpdate func([]telemetry.AlertView)
}

func NewAlertReader(client rtdb.Client, deviceID string, opts telemetry.ViewOptions, now Clock) *AlertReader {
	return &AlertReader{
		lifecycle: lifecycle{kind: "alerts"},
		client:    client,
		deviceID:  deviceID,
		opts:      opts,
		now:       clockOrNow(now),
	}
}

// Start přihlásí odběr, pravidla pro onUpdate viz LiveReader.Start.
func (r *AlertReader) Start(ctx context.Context, onUpdate func([]telemetry.AlertView)) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if err := r.begin(); err != nil {
		return err
	}
	r.mu.Lock()
	r.onUpdate = onUpdate
	r.mu.Unlock()

	unsubscribe, err := r.client.Subscribe(ctx, rtdb.DevicePath(r.deviceID, rtdb.NodeAlerts), r.handle)
	if err != nil {
		r.abort()
		return fmt.Errorf("feed: alerts %s: %w", r.deviceID, err)
	}
	r.attach(ctx, unsubscribe, r.Stop)
	return nil
}

func (r *AlertReader) handle(snap rtdb.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.updating() {
		return
	}
	r.records = telemetry.ParseAlerts(snap.Value)
	views := telemetry.BuildAlertViews(r.records, r.now(), r.opts)
	r.updated()
	if r.onUpdate != nil {
		r.onUpdate(views)
	}
}

// Current přefiltruje poslední známý log k času volání.
func (r *AlertReader) Current() []telemetry.AlertView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return telemetry.BuildAlertViews(r.records, r.now(), r.opts)
}

func (r *AlertReader) Stop() {
	r.stop()
}
