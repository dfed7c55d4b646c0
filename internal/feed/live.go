package feed

import (
	"context"
	"fmt"

	"github.com/KishorKumar15007/aqimonitor/internal/rtdb"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

// LiveReader sleduje devices/<id>/live a drží poslední LiveView.
type LiveReader struct {
	lifecycle

	client   rtdb.Client
	deviceID string
	opts     telemetry.ViewOptions
	now      Clock

	// chráněno lifecycle.mu
	reading  telemetry.LiveReading
	hasData  bool
	current  telemetry.LiveView
	onUpdate func(telemetry.LiveView)
}

// NewLiveReader připraví reader ve stavu Idle.
func NewLiveReader(client rtdb.Client, deviceID string, opts telemetry.ViewOptions, now Clock) *LiveReader {
	r := &LiveReader{
		lifecycle: lifecycle{kind: "live"},
		client:    client,
		deviceID:  deviceID,
		opts:      opts,
		now:       clockOrNow(now),
	}
	r.current = telemetry.BuildLiveView(deviceID, telemetry.LiveReading{}, false, r.now(), opts)
	return r
}

// Start přihlásí odběr. onUpdate se volá při každém pushi se sériovým pořadím;
// nesmí blokovat ani volat metody readeru. Po Stop už se nezavolá.
// Konec ctx reader zastaví.
func (r *LiveReader) Start(ctx context.Context, onUpdate func(telemetry.LiveView)) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if err := r.begin(); err != nil {
		return err
	}
	r.mu.Lock()
	r.onUpdate = onUpdate
	r.mu.Unlock()

	unsubscribe, err := r.client.Subscribe(ctx, rtdb.DevicePath(r.deviceID, rtdb.NodeLive), r.handle)
	if err != nil {
		r.abort()
		return fmt.Errorf("feed: live %s: %w", r.deviceID, err)
	}
	r.attach(ctx, unsubscribe, r.Stop)
	return nil
}

func (r *LiveReader) handle(snap rtdb.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.updating() {
		return
	}
	r.reading, r.hasData = telemetry.ParseLiveReading(snap.Value)
	r.current = telemetry.BuildLiveView(r.deviceID, r.reading, r.hasData, r.now(), r.opts)
	r.updated()
	if r.onUpdate != nil {
		r.onUpdate(r.current)
	}
}

// Refresh přepočítá živost vůči aktuálnímu času. Když se stav LIVE/OFFLINE
// změnil bez nového pushe (zařízení přestalo posílat), zavolá onUpdate.
func (r *LiveReader) Refresh() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateUnsubscribed || r.State() == StateIdle {
		return false
	}
	next := telemetry.BuildLiveView(r.deviceID, r.reading, r.hasData, r.now(), r.opts)
	changed := next.Live != r.current.Live
	r.current = next
	if changed && r.onUpdate != nil {
		r.onUpdate(next)
	}
	return changed
}

// Current vrací poslední view-model, živost přepočtenou k času volání.
func (r *LiveReader) Current() telemetry.LiveView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return telemetry.BuildLiveView(r.deviceID, r.reading, r.hasData, r.now(), r.opts)
}

// Stop odhlásí odběr. Je idempotentní.
func (r *LiveReader) Stop() {
	r.stop()
}
