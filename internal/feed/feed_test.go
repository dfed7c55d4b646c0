package feed

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/KishorKumar15007/aqimonitor/internal/rtdb"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

const device = "device01"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func TestLiveReaderLifecycle(t *testing.T) {
	db := rtdb.NewMemory()
	defer db.Close()
	clock := newClock()
	path := rtdb.DevicePath(device, rtdb.NodeLive)
	_ = db.Set(path, map[string]any{"aqi": 45, "timestamp": clock.Now().Unix() - 10})

	r := NewLiveReader(db, device, telemetry.ViewOptions{Threshold: 20 * time.Second}, clock.Now)
	if r.State() != StateIdle {
		t.Fatalf("new reader state = %v, want idle", r.State())
	}

	var views []telemetry.LiveView
	if err := r.Start(context.Background(), func(v telemetry.LiveView) { views = append(views, v) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.State() != StateSubscribed {
		t.Fatalf("state after start = %v, want subscribed", r.State())
	}
	if len(views) != 1 {
		t.Fatalf("expected initial push, got %d", len(views))
	}
	if views[0].Status != "LIVE" || views[0].Category.Name != "Good" {
		t.Fatalf("unexpected first view: status=%s category=%s", views[0].Status, views[0].Category.Name)
	}

	_ = db.Set(path, map[string]any{"aqi": 250, "timestamp": clock.Now().Unix() - 25})
	if len(views) != 2 || views[1].Status != "OFFLINE" || views[1].Category.Name != "Very Unhealthy" {
		t.Fatalf("unexpected second view: %+v", views[len(views)-1])
	}

	r.Stop()
	r.Stop()
	if r.State() != StateUnsubscribed {
		t.Fatalf("state after stop = %v, want unsubscribed", r.State())
	}
	_ = db.Set(path, map[string]any{"aqi": 1})
	if len(views) != 2 {
		t.Fatalf("no callback expected after Stop, got %d views", len(views))
	}

	if err := r.Start(context.Background(), nil); !errors.Is(err, ErrStarted) {
		t.Fatalf("restart err = %v, want ErrStarted", err)
	}
}

func TestLiveReaderNoDataYet(t *testing.T) {
	db := rtdb.NewMemory()
	defer db.Close()

	r := NewLiveReader(db, device, telemetry.ViewOptions{}, newClock().Now)
	var got []telemetry.LiveView
	if err := r.Start(context.Background(), func(v telemetry.LiveView) { got = append(got, v) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	if len(got) != 1 || got[0].HasData {
		t.Fatalf("expected one no-data view, got %+v", got)
	}
	if got[0].Display.AQI != "0" || got[0].Display.LastUpdated != telemetry.Placeholder {
		t.Fatalf("unexpected placeholders: %+v", got[0].Display)
	}
}

func TestLiveReaderRefreshFlipsToOffline(t *testing.T) {
	db := rtdb.NewMemory()
	defer db.Close()
	clock := newClock()
	_ = db.Set(rtdb.DevicePath(device, rtdb.NodeLive), map[string]any{"aqi": 30, "timestamp": clock.Now().Unix()})

	r := NewLiveReader(db, device, telemetry.ViewOptions{Threshold: 20 * time.Second}, clock.Now)
	var calls int
	if err := r.Start(context.Background(), func(telemetry.LiveView) { calls++ }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	clock.Advance(19 * time.Second)
	if r.Refresh() {
		t.Fatalf("still live at 19s, Refresh should report no change")
	}
	clock.Advance(time.Second)
	if !r.Refresh() {
		t.Fatalf("offline at 20s, Refresh should report a change")
	}
	if calls != 2 {
		t.Fatalf("expected initial push and one refresh callback, got %d", calls)
	}
	if r.Current().Status != "OFFLINE" {
		t.Fatalf("Current status = %s, want OFFLINE", r.Current().Status)
	}
}

func TestLiveReaderStopsWhenContextEnds(t *testing.T) {
	db := rtdb.NewMemory()
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewLiveReader(db, device, telemetry.ViewOptions{}, nil)
	if err := r.Start(ctx, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for r.State() != StateUnsubscribed {
		if time.Now().After(deadline) {
			t.Fatalf("reader not stopped after context cancel, state=%v", r.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHistoryReaderSwitchesGranularity(t *testing.T) {
	db := rtdb.NewMemory()
	defer db.Close()

	raw := rtdb.DevicePath(device, rtdb.NodeRaw10s)
	bucket := rtdb.DevicePath(device, rtdb.NodeBucket1Min)
	_ = db.SetChild(raw, "200", map[string]any{"aqi": 20})
	_ = db.SetChild(raw, "100", map[string]any{"aqi": 10})
	_ = db.SetChild(bucket, "60", map[string]any{"aqi": map[string]any{"avg": 15, "max": 30}})

	r := NewHistoryReader(db, device)
	var series []telemetry.Series
	if err := r.Start(context.Background(), telemetry.Raw10s, func(s telemetry.Series) { series = append(series, s) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	if len(series) != 1 || len(series[0].Records) != 2 {
		t.Fatalf("unexpected initial series: %+v", series)
	}
	if series[0].Records[0].Timestamp != 100 || series[0].Records[1].Timestamp != 200 {
		t.Fatalf("records not ascending: %+v", series[0].Records)
	}

	if err := r.SetGranularity(context.Background(), telemetry.Bucket1Min); err != nil {
		t.Fatalf("SetGranularity: %v", err)
	}
	if r.Granularity() != telemetry.Bucket1Min {
		t.Fatalf("granularity = %s", r.Granularity())
	}
	last := series[len(series)-1]
	if last.Granularity != telemetry.Bucket1Min || len(last.Records) != 1 {
		t.Fatalf("series not replaced after switch: %+v", last)
	}
	if v := last.Values(telemetry.MetricAQI)[0]; v == nil || *v != 15 {
		t.Fatalf("bucketed mode must read avg, got %v", v)
	}

	// stará kolekce už nesmí nic doručit
	n := len(series)
	_ = db.SetChild(raw, "300", map[string]any{"aqi": 30})
	if len(series) != n {
		t.Fatalf("push from previous granularity leaked into the view")
	}

	_ = db.SetChild(bucket, "120", map[string]any{"aqi": map[string]any{"avg": 25}})
	if len(series) != n+1 || len(series[n].Records) != 2 {
		t.Fatalf("expected update of new collection, got %+v", series[len(series)-1])
	}
}

func TestHistoryReaderSetGranularityRequiresRunning(t *testing.T) {
	db := rtdb.NewMemory()
	defer db.Close()
	r := NewHistoryReader(db, device)
	if err := r.SetGranularity(context.Background(), telemetry.Bucket10Min); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

// failingClient odmítne Subscribe na vybraných cestách.
type failingClient struct {
	*rtdb.Memory

	mu   sync.Mutex
	fail map[string]bool
}

func (c *failingClient) setFail(path string, fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[path] = fail
}

func (c *failingClient) Subscribe(ctx context.Context, path string, cb rtdb.Callback) (rtdb.Unsubscribe, error) {
	c.mu.Lock()
	fail := c.fail[path]
	c.mu.Unlock()
	if fail {
		return nil, errors.New("subscribe refused")
	}
	return c.Memory.Subscribe(ctx, path, cb)
}

func TestHistoryReaderFailedSwitchKeepsPreviousCollection(t *testing.T) {
	db := &failingClient{Memory: rtdb.NewMemory(), fail: map[string]bool{}}
	defer db.Close()

	raw := rtdb.DevicePath(device, rtdb.NodeRaw10s)
	bucket := rtdb.DevicePath(device, rtdb.NodeBucket1Min)
	_ = db.SetChild(raw, "100", map[string]any{"aqi": 10})
	_ = db.SetChild(bucket, "60", map[string]any{"aqi": map[string]any{"avg": 15}})

	r := NewHistoryReader(db, device)
	var mu sync.Mutex
	var series []telemetry.Series
	if err := r.Start(context.Background(), telemetry.Raw10s, func(s telemetry.Series) {
		mu.Lock()
		series = append(series, s)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()
	lastSeries := func() telemetry.Series {
		mu.Lock()
		defer mu.Unlock()
		return series[len(series)-1]
	}

	db.setFail(bucket, true)
	if err := r.SetGranularity(context.Background(), telemetry.Bucket1Min); err == nil {
		t.Fatalf("expected switch error")
	}
	if r.Granularity() != telemetry.Raw10s || !r.Attached() {
		t.Fatalf("reader must fall back to raw_10s, got %s attached=%v", r.Granularity(), r.Attached())
	}
	_ = db.SetChild(raw, "200", map[string]any{"aqi": 20})
	if got := lastSeries(); got.Granularity != telemetry.Raw10s || len(got.Records) != 2 {
		t.Fatalf("previous collection not followed after failed switch: %+v", got)
	}

	// po odstranění chyby musí stejné přepnutí projít
	db.setFail(bucket, false)
	if err := r.SetGranularity(context.Background(), telemetry.Bucket1Min); err != nil {
		t.Fatalf("retry: %v", err)
	}
	_ = db.SetChild(bucket, "120", map[string]any{"aqi": map[string]any{"avg": 25}})
	if got := lastSeries(); got.Granularity != telemetry.Bucket1Min || len(got.Records) != 2 {
		t.Fatalf("no pushes after retry: %+v", got)
	}
}

func TestHistoryReaderRetriesWhenDetached(t *testing.T) {
	db := &failingClient{Memory: rtdb.NewMemory(), fail: map[string]bool{}}
	defer db.Close()

	raw := rtdb.DevicePath(device, rtdb.NodeRaw10s)
	bucket := rtdb.DevicePath(device, rtdb.NodeBucket10Min)

	r := NewHistoryReader(db, device)
	pushes := 0
	if err := r.Start(context.Background(), telemetry.Raw10s, func(telemetry.Series) { pushes++ }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	db.setFail(raw, true)
	db.setFail(bucket, true)
	if err := r.SetGranularity(context.Background(), telemetry.Bucket10Min); err == nil {
		t.Fatalf("expected switch error")
	}
	if r.Attached() {
		t.Fatalf("reader must report that it follows nothing")
	}

	db.setFail(raw, false)
	if err := r.SetGranularity(context.Background(), r.Granularity()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !r.Attached() {
		t.Fatalf("retry with the same granularity must subscribe again")
	}
	before := pushes
	_ = db.SetChild(raw, "100", map[string]any{"aqi": 10})
	if pushes != before+1 {
		t.Fatalf("no pushes after retry")
	}
}

func TestAlertReaderRefiltersOnEveryPush(t *testing.T) {
	db := rtdb.NewMemory()
	defer db.Close()
	clock := newClock()
	now := clock.Now().Unix()
	path := rtdb.DevicePath(device, rtdb.NodeAlerts)
	_ = db.SetChild(path, itoa(now-100), map[string]any{"type": "AQI_SEVERE", "value": 320})
	_ = db.SetChild(path, itoa(now-604801), map[string]any{"type": "CO_HIGH"})

	r := NewAlertReader(db, device, telemetry.ViewOptions{Location: time.UTC}, clock.Now)
	var got [][]telemetry.AlertView
	if err := r.Start(context.Background(), func(v []telemetry.AlertView) { got = append(got, v) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	if len(got) != 1 || len(got[0]) != 1 {
		t.Fatalf("expected exactly one alert inside window, got %+v", got)
	}
	if got[0][0].Type != "AQI_SEVERE" || got[0][0].Severity.Color != "red" {
		t.Fatalf("unexpected alert %+v", got[0][0])
	}

	_ = db.SetChild(path, itoa(now-5), map[string]any{"type": "SENSOR_FAULT"})
	latest := got[len(got)-1]
	if len(latest) != 2 || latest[0].Timestamp != now-5 {
		t.Fatalf("expected newest first, got %+v", latest)
	}
	if latest[0].Severity.Color != "gray" {
		t.Fatalf("unknown type should be gray, got %s", latest[0].Severity.Color)
	}

	clock.Advance(7 * 24 * time.Hour)
	if cur := r.Current(); len(cur) != 0 {
		t.Fatalf("Current must filter relative to read time, got %d alerts", len(cur))
	}
}

func TestSnapshots(t *testing.T) {
	db := rtdb.NewMemory()
	defer db.Close()
	now := time.Unix(1_700_000_000, 0)
	_ = db.Set(rtdb.DevicePath(device, rtdb.NodeLive), map[string]any{"aqi": 72.6, "timestamp": now.Unix() - 3})
	_ = db.SetChild(rtdb.DevicePath(device, rtdb.NodeBucket10Min), "600", map[string]any{"pm25": map[string]any{"avg": 12.5}})

	live, err := LiveSnapshot(context.Background(), db, device, telemetry.ViewOptions{}, now)
	if err != nil {
		t.Fatalf("LiveSnapshot: %v", err)
	}
	if !live.HasData || !live.Live || live.Display.AQI != "73" {
		t.Fatalf("unexpected live snapshot %+v", live)
	}

	series, err := HistorySnapshot(context.Background(), db, device, telemetry.Bucket10Min)
	if err != nil {
		t.Fatalf("HistorySnapshot: %v", err)
	}
	if v := series.Values(telemetry.MetricPM25)[0]; v == nil || *v != 12.5 {
		t.Fatalf("unexpected pm25 avg %v", v)
	}

	alerts, err := AlertsSnapshot(context.Background(), db, device, telemetry.ViewOptions{}, now)
	if err != nil {
		t.Fatalf("AlertsSnapshot: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts, got %d", len(alerts))
	}

	_ = db.Close()
	if _, err := LiveSnapshot(context.Background(), db, device, telemetry.ViewOptions{}, now); !errors.Is(err, rtdb.ErrClosed) {
		t.Fatalf("err = %v, want wrapped ErrClosed", err)
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
