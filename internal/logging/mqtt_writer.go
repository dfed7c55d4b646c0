package logging

import (
	"fmt"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// publisher je část mqtt.Client, kterou writer potřebuje.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTWriter implementuje io.Writer: každý zápis (jeden JSON řádek ze slog)
// odešle do topicu logs/<service>.
//
// Write neblokuje: zprávy jdou přes frontu a odesílá je jedna goroutina.
// Při plné frontě se zpráva zahodí a započítá do Dropped.
type MQTTWriter struct {
	client publisher
	topic  string

	queue   chan []byte
	done    chan struct{}
	dropped atomic.Uint64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewMQTTWriter spustí odesílací goroutinu.
func NewMQTTWriter(client publisher, service string, buffer int) *MQTTWriter {
	if buffer <= 0 {
		buffer = 256
	}
	w := &MQTTWriter{
		client: client,
		topic:  fmt.Sprintf("logs/%s", service),
		queue:  make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *MQTTWriter) run() {
	defer close(w.done)
	for payload := range w.queue {
		// fire-and-forget, na potvrzení nečekáme
		w.client.Publish(w.topic, 0, false, payload)
	}
}

// Write zkopíruje p (slog buffer znovu používá) a zařadí ho do fronty.
func (w *MQTTWriter) Write(p []byte) (int, error) {
	payload := make([]byte, len(p))
	copy(payload, p)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return len(p), nil
	}
	select {
	case w.queue <- payload:
	default:
		w.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped vrací počet zahozených zpráv.
func (w *MQTTWriter) Dropped() uint64 {
	return w.dropped.Load()
}

// Close odešle zbytek fronty a ukončí goroutinu.
func (w *MQTTWriter) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
		<-w.done
	})
}
