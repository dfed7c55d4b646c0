package rtdb

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) cb(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func TestSnapshotExists(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"", false},
		{"null", false},
		{"  null ", false},
		{"{}", true},
		{"0", true},
		{`{"aqi":45}`, true},
	}
	for _, tc := range cases {
		if got := (Snapshot{Value: []byte(tc.raw)}).Exists(); got != tc.want {
			t.Fatalf("Exists(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestValidDeviceID(t *testing.T) {
	for _, id := range []string{"device01", "a-b_c", "X"} {
		if !ValidDeviceID(id) {
			t.Fatalf("%q should be valid", id)
		}
	}
	for _, id := range []string{"", "a/b", "dev#", "dev+1", "a b"} {
		if ValidDeviceID(id) {
			t.Fatalf("%q should be invalid", id)
		}
	}
}

func TestMemorySubscribeDeliversCurrentValueFirst(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	path := DevicePath("device01", NodeLive)
	if err := m.Set(path, map[string]any{"aqi": 45}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var rec recorder
	unsubscribe, err := m.Subscribe(context.Background(), path, rec.cb)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("expected exactly one initial snapshot, got %d", len(got))
	}
	if string(got[0].Value) != `{"aqi":45}` {
		t.Fatalf("unexpected initial value %s", got[0].Value)
	}

	if err := m.Set(path, map[string]any{"aqi": 60}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got = rec.all()
	if len(got) != 2 || string(got[1].Value) != `{"aqi":60}` {
		t.Fatalf("expected update to be pushed, got %+v", got)
	}
}

func TestMemorySubscribeToMissingNodeGetsEmptySnapshot(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	var rec recorder
	unsubscribe, err := m.Subscribe(context.Background(), DevicePath("ghost", NodeLive), rec.cb)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	got := rec.all()
	if len(got) != 1 || got[0].Exists() {
		t.Fatalf("expected one empty snapshot, got %+v", got)
	}
}

func TestMemorySecondSubscriberGetsCachedValueOnce(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	path := DevicePath("device01", NodeAlerts)
	_ = m.SetChild(path, "1700000000", map[string]any{"type": "AQI_SEVERE"})

	var a, b recorder
	ua, _ := m.Subscribe(context.Background(), path, a.cb)
	defer ua()
	ub, _ := m.Subscribe(context.Background(), path, b.cb)
	defer ub()

	if len(a.all()) != 1 || len(b.all()) != 1 {
		t.Fatalf("each subscriber should see the value once: a=%d b=%d", len(a.all()), len(b.all()))
	}
}

func TestMemoryUnsubscribeStopsDelivery(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	path := DevicePath("device01", NodeLive)

	var rec recorder
	unsubscribe, err := m.Subscribe(context.Background(), path, rec.cb)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	unsubscribe()
	unsubscribe() // idempotentní

	_ = m.Set(path, map[string]any{"aqi": 1})
	if n := len(rec.all()); n != 1 {
		t.Fatalf("no pushes expected after unsubscribe, got %d snapshots", n)
	}
	if m.fan.isWatched(path) {
		t.Fatalf("path should not be watched after last unsubscribe")
	}
}

func TestMemorySetChildMergesKeys(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	path := DevicePath("device01", NodeRaw10s)
	_ = m.SetChild(path, "100", map[string]any{"aqi": 1})
	_ = m.SetChild(path, "110", map[string]any{"aqi": 2})

	snap, err := m.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(snap.Value) != `{"100":{"aqi":1},"110":{"aqi":2}}` {
		t.Fatalf("unexpected merged value %s", snap.Value)
	}
}

func TestMemoryDeletePushesEmptySnapshot(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	path := DevicePath("device01", NodeLive)
	_ = m.Set(path, map[string]any{"aqi": 1})

	var rec recorder
	unsubscribe, _ := m.Subscribe(context.Background(), path, rec.cb)
	defer unsubscribe()
	_ = m.Delete(path)

	got := rec.all()
	if len(got) != 2 || got[1].Exists() {
		t.Fatalf("expected empty snapshot after delete, got %+v", got)
	}
}

func TestMemoryRejectsInvalidPath(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	for _, p := range []string{"", "devices/#", "devices/+/live", "/devices", "devices/"} {
		if _, err := m.Subscribe(context.Background(), p, func(Snapshot) {}); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Subscribe(%q) err = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	_ = m.Close()
	if _, err := m.Subscribe(context.Background(), "devices/a/live", func(Snapshot) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe after Close err = %v, want ErrClosed", err)
	}
	if _, err := m.Get(context.Background(), "devices/a/live"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after Close err = %v, want ErrClosed", err)
	}
	if err := m.Set("devices/a/live", 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set after Close err = %v, want ErrClosed", err)
	}
}

func TestCallbackMayUnsubscribeItself(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	path := DevicePath("device01", NodeLive)

	var (
		unsubscribe Unsubscribe
		calls       int
		ready       = make(chan struct{})
	)
	unsubscribe, err := m.Subscribe(context.Background(), path, func(Snapshot) {
		calls++
		select {
		case <-ready:
			unsubscribe()
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	close(ready)
	_ = m.Set(path, 1)
	_ = m.Set(path, 2)
	if calls != 2 {
		t.Fatalf("expected initial push and one update, got %d calls", calls)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "firebase"}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	c, err := Open(context.Background(), Options{Backend: "memory"}, nil)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	_ = c.Close()
}
