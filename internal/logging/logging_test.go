package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	block    chan struct{}
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return doneToken{}
}

func TestMQTTWriterPublishesEachLine(t *testing.T) {
	pub := &fakePublisher{}
	w := NewMQTTWriter(pub, "home-api", 8)

	logger := New(w, "home-api", "info")
	logger.Info("Server startuje", "port", "8080")
	logger.Debug("nezobrazí se")
	w.Close()

	if len(pub.payloads) != 1 {
		t.Fatalf("expected 1 published line, got %d", len(pub.payloads))
	}
	if pub.topics[0] != "logs/home-api" {
		t.Fatalf("topic = %q", pub.topics[0])
	}
	var line map[string]any
	if err := json.Unmarshal(pub.payloads[0], &line); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if line["msg"] != "Server startuje" || line["service"] != "home-api" || line["port"] != "8080" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestMQTTWriterDropsWhenQueueFull(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	w := NewMQTTWriter(pub, "svc", 1)

	// první zprávu si vezme goroutina a zasekne se, druhá zaplní frontu
	_, _ = w.Write([]byte("a"))
	deadline := time.Now().Add(2 * time.Second)
	for len(w.queue) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sender did not pick up first message")
		}
		time.Sleep(time.Millisecond)
	}
	_, _ = w.Write([]byte("b"))
	n, err := w.Write([]byte("c"))
	if err != nil || n != 1 {
		t.Fatalf("Write must never fail: n=%d err=%v", n, err)
	}
	if w.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", w.Dropped())
	}

	close(pub.block)
	w.Close()
	if len(pub.payloads) != 2 {
		t.Fatalf("expected 2 delivered messages, got %d", len(pub.payloads))
	}

	_, _ = w.Write([]byte("late"))
	if w.Dropped() != 2 {
		t.Fatalf("writes after Close must be dropped")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"noisy": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupWithoutBrokerLogsToStdout(t *testing.T) {
	logger, closeFn, err := Setup(Options{Service: "test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer closeFn()
	if logger == nil {
		t.Fatalf("nil logger")
	}
}

func TestNewAddsServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "web-dashboard", "debug").Debug("ahoj")
	if !bytes.Contains(buf.Bytes(), []byte(`"service":"web-dashboard"`)) {
		t.Fatalf("missing service attribute: %s", buf.String())
	}
}
