package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/KishorKumar15007/aqimonitor/internal/rtdb"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

// HistoryReader sleduje jednu kolekci historie (raw_10s, bucket_1min, bucket_10min).
// Při přepnutí granularity se starý odběr zruší dřív, než vznikne nový,
// a řada se nahradí celá.
type HistoryReader struct {
	lifecycle

	client   rtdb.Client
	deviceID string

	// chráněno lifecycle.mu
	gen      uint64
	series   telemetry.Series
	onUpdate func(telemetry.Series)
}

func NewHistoryReader(client rtdb.Client, deviceID string) *HistoryReader {
	return &HistoryReader{
		lifecycle: lifecycle{kind: "history"},
		client:    client,
		deviceID:  deviceID,
		series:    telemetry.Series{DeviceID: deviceID, Granularity: telemetry.Raw10s},
	}
}

// Start přihlásí odběr zvolené granularity, pravidla pro onUpdate viz LiveReader.Start.
func (r *HistoryReader) Start(ctx context.Context, g telemetry.Granularity, onUpdate func(telemetry.Series)) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if err := r.begin(); err != nil {
		return err
	}
	r.mu.Lock()
	r.onUpdate = onUpdate
	r.gen++
	gen := r.gen
	r.series = telemetry.Series{DeviceID: r.deviceID, Granularity: g}
	r.mu.Unlock()

	unsubscribe, err := r.client.Subscribe(ctx, rtdb.DevicePath(r.deviceID, string(g)), r.handler(gen, g))
	if err != nil {
		r.abort()
		return fmt.Errorf("feed: history %s/%s: %w", r.deviceID, g, err)
	}
	r.attach(ctx, unsubscribe, r.Stop)
	return nil
}

// SetGranularity přepne sledovanou kolekci. Pushe staré cesty, které
// dorazí po přepnutí, se zahodí. Když se novou kolekci nepodaří přihlásit,
// reader se vrátí k předchozí; pokud selže i to, zůstane odpojený a další
// volání se stejnou granularitou zkusí přihlášení znovu.
func (r *HistoryReader) SetGranularity(ctx context.Context, g telemetry.Granularity) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	switch r.State() {
	case StateIdle, StateUnsubscribed:
		r.mu.Unlock()
		return ErrNotRunning
	}
	prev := r.series.Granularity
	if prev == g && r.unsubscribe != nil {
		r.mu.Unlock()
		return nil
	}
	old := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	// nejdřív odhlásit, pak přihlásit: žádné okno, kdy běží oba odběry
	if old != nil {
		old()
	}

	err := r.subscribe(ctx, g)
	if err == nil {
		return nil
	}
	if prev != g {
		if restoreErr := r.subscribe(ctx, prev); restoreErr != nil {
			return errors.Join(err, restoreErr)
		}
	}
	return err
}

// subscribe přihlásí kolekci g s novou generací. Volá se pod opMu.
func (r *HistoryReader) subscribe(ctx context.Context, g telemetry.Granularity) error {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.series = telemetry.Series{DeviceID: r.deviceID, Granularity: g}
	r.mu.Unlock()

	unsubscribe, err := r.client.Subscribe(ctx, rtdb.DevicePath(r.deviceID, string(g)), r.handler(gen, g))
	if err != nil {
		return fmt.Errorf("feed: history %s/%s: %w", r.deviceID, g, err)
	}
	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
	return nil
}

// Attached je true, pokud reader běží a má aktivní odběr.
func (r *HistoryReader) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.State() {
	case StateIdle, StateUnsubscribed:
		return false
	}
	return r.unsubscribe != nil
}

func (r *HistoryReader) handler(gen uint64, g telemetry.Granularity) rtdb.Callback {
	return func(snap rtdb.Snapshot) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if gen != r.gen || !r.updating() {
			return
		}
		r.series = telemetry.Series{
			DeviceID:    r.deviceID,
			Granularity: g,
			Records:     telemetry.NormalizeHistory(snap.Value),
		}
		r.updated()
		if r.onUpdate != nil {
			r.onUpdate(r.series)
		}
	}
}

// Granularity vrací právě sledovanou granularitu.
func (r *HistoryReader) Granularity() telemetry.Granularity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.series.Granularity
}

// Current vrací poslední řadu.
func (r *HistoryReader) Current() telemetry.Series {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.series
}

func (r *HistoryReader) Stop() {
	r.stop()
}
