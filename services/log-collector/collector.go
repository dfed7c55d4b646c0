package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var errBadTopic = errors.New("topic musí mít tvar logs/<service>")

// Collector ukládá logovací zprávy do souborů podle služby.
type Collector struct {
	dir    string
	logger *slog.Logger

	// mu serializuje zápisy; paho volá handler z více goroutin
	mu sync.Mutex
}

// NewCollector připraví adresář pro logy.
func NewCollector(dir string, logger *slog.Logger) (*Collector, error) {
	// 0755: vlastník může psát, ostatní číst
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("nelze vytvořit adresář pro logy: %w", err)
	}
	return &Collector{dir: dir, logger: logger}, nil
}

// serviceFromTopic: "logs/home-api" → "home-api". Jméno nesmí opustit adresář.
func serviceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != "logs" {
		return "", errBadTopic
	}
	name := parts[1]
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `\`) {
		return "", errBadTopic
	}
	return name, nil
}

// Handle zpracuje jednu zprávu z MQTT.
func (c *Collector) Handle(topic string, payload []byte) {
	service, err := serviceFromTopic(topic)
	if err != nil {
		c.logger.Warn("Ignoruji zprávu se špatným formátem topicu", "topic", topic)
		return
	}
	if err := c.appendLine(service, payload); err != nil {
		c.logger.Error("Chyba při zápisu do souboru", "service", service, "error", err)
	}
}

// appendLine připíše řádek do <dir>/<service>.log.
// Soubor se otevírá pro každý zápis, takže nevadí rotace logů zvenku.
func (c *Collector) appendLine(service string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	filename := filepath.Join(c.dir, service+".log")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := strings.TrimRight(string(data), "\n") + "\n"
	if _, err := f.WriteString(line); err != nil {
		return err
	}
	return nil
}
