// Package logging nastavuje JSON logger služeb a volitelné posílání logů do MQTT
// (logs/<service>), odkud je sbírá log-collector.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Options pro Setup.
type Options struct {
	Service string
	Level   string // debug | info | warn | error
	// MQTTBroker: prázdné = logy jen na stdout.
	MQTTBroker string
	// Buffer: kapacita fronty zpráv pro MQTT.
	Buffer int
}

// ParseLevel převede textovou úroveň; neznámá = info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New vytvoří JSON logger s atributem service.
func New(w io.Writer, service, level string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h).With("service", service)
}

// Setup vytvoří logger a nastaví ho jako výchozí. Vrácená funkce uzavře MQTT writer.
//
// MQTT klient musí vzniknout dřív než logger, proto se chyby připojení
// hlásí přes návratovou hodnotu a služba pokračuje jen se stdout.
func Setup(opts Options) (*slog.Logger, func(), error) {
	if opts.MQTTBroker == "" {
		logger := New(os.Stdout, opts.Service, opts.Level)
		slog.SetDefault(logger)
		return logger, func() {}, nil
	}

	o := mqtt.NewClientOptions().
		AddBroker(opts.MQTTBroker).
		SetClientID(opts.Service + "-logs").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)
	client := mqtt.NewClient(o)
	token := client.Connect()
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		logger := New(os.Stdout, opts.Service, opts.Level)
		slog.SetDefault(logger)
		err := token.Error()
		if err == nil {
			err = errors.New("connect timeout")
		}
		// s ConnectRetry se klient připojuje dál na pozadí, ale logy jdou jen na stdout
		client.Disconnect(0)
		return logger, func() {}, fmt.Errorf("logging: MQTT %s: %w", opts.MQTTBroker, err)
	}

	w := NewMQTTWriter(client, opts.Service, opts.Buffer)
	logger := New(io.MultiWriter(os.Stdout, w), opts.Service, opts.Level)
	slog.SetDefault(logger)
	return logger, func() {
		w.Close()
		client.Disconnect(250)
	}, nil
}
