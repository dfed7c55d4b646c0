package rtdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Options vybírají backend a jeho nastavení.
type Options struct {
	Backend string // mqtt | redis | postgres | memory

	MQTTBroker  string
	MQTTGetWait time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresURL     string
	PostgresTable   string
	PostgresChannel string
	PostgresMigrate bool
}

// Open vytvoří klienta podle Options.Backend.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Client, error) {
	switch opts.Backend {
	case "mqtt":
		return NewMQTT(MQTTOptions{
			BrokerURL: opts.MQTTBroker,
			QoS:       1,
			GetWait:   opts.MQTTGetWait,
		}, logger)
	case "redis", "valkey":
		return NewRedis(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		}, logger)
	case "postgres":
		return NewPostgres(ctx, PostgresOptions{
			URL:     opts.PostgresURL,
			Table:   opts.PostgresTable,
			Channel: opts.PostgresChannel,
			Migrate: opts.PostgresMigrate,
		}, logger)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("rtdb: neznámý backend %q", opts.Backend)
	}
}
