package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newTestCollector(t *testing.T) (*Collector, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "logs")
	c, err := NewCollector(dir, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c, dir
}

func TestCollectorAppendsPerService(t *testing.T) {
	c, dir := newTestCollector(t)

	c.Handle("logs/home-api", []byte(`{"msg":"a"}`))
	c.Handle("logs/home-api", []byte("{\"msg\":\"b\"}\n"))
	c.Handle("logs/web-dashboard", []byte(`{"msg":"c"}`))

	got, err := os.ReadFile(filepath.Join(dir, "home-api.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "{\"msg\":\"a\"}\n{\"msg\":\"b\"}\n" {
		t.Fatalf("unexpected home-api.log: %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "web-dashboard.log")); err != nil {
		t.Fatalf("web-dashboard.log missing: %v", err)
	}
}

func TestCollectorIgnoresBadTopics(t *testing.T) {
	c, dir := newTestCollector(t)

	for _, topic := range []string{"logs", "logs/", "logs/..", "metrics/home-api"} {
		c.Handle(topic, []byte("x"))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("bad topics must not create files, got %d", len(entries))
	}
}

func TestServiceFromTopic(t *testing.T) {
	name, err := serviceFromTopic("logs/home-api/info")
	if err != nil || name != "home-api" {
		t.Fatalf("got %q, %v", name, err)
	}
}
