package sysstats

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestMatches(t *testing.T) {
	targets := []string{"home-api", "mosquitto"}
	if !matches("home-api", targets) || !matches("/usr/sbin/mosquitto", targets) {
		t.Fatalf("expected match")
	}
	if matches("bash", targets) {
		t.Fatalf("unexpected match")
	}
}

func TestMonitorServesLatestSnapshot(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	m := NewMonitor(10*time.Millisecond, nil, logger)

	calls := make(chan struct{}, 16)
	m.collect = func(context.Context) Stats {
		select {
		case calls <- struct{}{}:
		default:
		}
		return Stats{CPULoad: 12.5, RamTotalMB: 1024}
	}

	if _, ok := m.Latest(); ok {
		t.Fatalf("no snapshot expected before Run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("collector was not called")
		}
	}
	cancel()
	<-done

	s, ok := m.Latest()
	if !ok || s.CPULoad != 12.5 || s.RamTotalMB != 1024 {
		t.Fatalf("unexpected snapshot %+v (ok=%v)", s, ok)
	}
}
