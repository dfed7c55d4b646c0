package rtdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTOptions nastavují MQTT backend.
type MQTTOptions struct {
	BrokerURL string
	ClientID  string // prázdné = vygeneruje se unikátní
	QoS       byte
	// GetWait: jak dlouho Get čeká na retained zprávu, než uzel prohlásí za prázdný.
	GetWait time.Duration
}

// MQTT mapuje strom na retained topicy: uzel devices/device01/live je topic
// "devices/device01/live" a jeho retained payload je JSON hodnota uzlu.
// Znovupřipojení a retry řeší knihovna paho.
type MQTT struct {
	client  mqtt.Client
	qos     byte
	getWait time.Duration
	logger  *slog.Logger
	fan     *fanout

	mu     sync.Mutex
	closed bool
}

// NewMQTT se připojí k brokeru. Při reconnectu obnoví odběry všech sledovaných cest.
func NewMQTT(opts MQTTOptions, logger *slog.Logger) (*MQTT, error) {
	if opts.ClientID == "" {
		opts.ClientID = "aqimonitor-" + uuid.NewString()
	}
	if opts.GetWait <= 0 {
		opts.GetWait = 2 * time.Second
	}

	m := &MQTT{
		qos:     opts.QoS,
		getWait: opts.GetWait,
		logger:  logger.With("component", "rtdb-mqtt"),
	}
	m.fan = newFanout("mqtt", m)

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(2 * time.Second)
	o.SetOnConnectHandler(func(c mqtt.Client) {
		// Clean session: broker si odběry nepamatuje, po reconnectu je musíme poslat znovu.
		for _, path := range m.fan.watched() {
			if token := c.Subscribe(path, m.qos, m.handle); token.Wait() && token.Error() != nil {
				m.logger.Error("Obnovení odběru selhalo", "path", path, "error", token.Error())
			}
		}
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Warn("Spojení s MQTT brokerem ztraceno", "error", err)
	})

	m.client = mqtt.NewClient(o)
	token := m.client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		return nil, fmt.Errorf("rtdb: MQTT connect timeout (%s)", opts.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("rtdb: MQTT connect: %w", err)
	}
	m.logger.Info("Připojeno k MQTT", "broker", opts.BrokerURL, "client_id", opts.ClientID)
	return m, nil
}

func (m *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	// Payload musíme zkopírovat, paho buffer znovu používá.
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	m.fan.publish(msg.Topic(), Snapshot{Path: msg.Topic(), Value: payload})
}

func (m *MQTT) watch(path string) error {
	token := m.client.Subscribe(path, m.qos, m.handle)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("rtdb: MQTT subscribe %s: timeout", path)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("rtdb: MQTT subscribe %s: %w", path, err)
	}
	m.logger.Debug("Odběr topicu", "path", path)
	return nil
}

func (m *MQTT) unwatch(path string) {
	token := m.client.Unsubscribe(path)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		m.logger.Warn("Odhlášení topicu selhalo", "path", path, "error", token.Error())
	}
}

// Subscribe viz Client.
func (m *MQTT) Subscribe(_ context.Context, path string, cb Callback) (Unsubscribe, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	return m.fan.add(path, cb)
}

// Get vrátí retained hodnotu. Pokud ji broker do GetWait nepošle, uzel je prázdný.
func (m *MQTT) Get(ctx context.Context, path string) (Snapshot, error) {
	if m.isClosed() {
		return Snapshot{}, ErrClosed
	}
	if snap, ok := m.fan.cached(path); ok {
		return snap, nil
	}

	got := make(chan Snapshot, 1)
	unsubscribe, err := m.fan.add(path, func(s Snapshot) {
		select {
		case got <- s:
		default:
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	defer unsubscribe()

	timer := time.NewTimer(m.getWait)
	defer timer.Stop()

	select {
	case s := <-got:
		return s, nil
	case <-timer.C:
		return Snapshot{Path: path}, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Snapshot{Path: path}, nil
		}
		return Snapshot{}, ctx.Err()
	}
}

func (m *MQTT) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close odpojí klienta.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.fan.close()
	m.client.Disconnect(250)
	return nil
}
