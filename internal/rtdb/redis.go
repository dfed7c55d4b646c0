package rtdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisOptions nastavují Valkey/Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis čte uzly z Valkey. Uzel je buď string s JSON hodnotou (live),
// nebo hash, kde pole = klíč potomka a hodnota = JSON potomka (historie, alerty).
// Změny se hlásí přes keyspace notifikace, po každé se uzel načte znovu celý.
type Redis struct {
	rdb    *redis.Client
	db     int
	logger *slog.Logger
	fan    *fanout

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewRedis ověří spojení a zapne keyspace notifikace (pokud to server dovolí).
func NewRedis(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("rtdb: Valkey není dostupný: %w", err)
	}

	r := &Redis{
		rdb:    rdb,
		db:     opts.DB,
		logger: logger.With("component", "rtdb-redis"),
		done:   make(chan struct{}),
	}
	r.fan = newFanout("redis", r)

	// Spravované instance CONFIG SET často zakazují, pak musí být nastaveno ručně.
	if err := rdb.ConfigSet(ctx, "notify-keyspace-events", "KA").Err(); err != nil {
		r.logger.Warn("Nelze zapnout keyspace notifikace", "error", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.pubsub = rdb.Subscribe(loopCtx)
	go r.loop(loopCtx)

	r.logger.Info("Připojeno k Valkey", "addr", opts.Addr, "db", opts.DB)
	return r, nil
}

func (r *Redis) channel(path string) string {
	return fmt.Sprintf("__keyspace@%d__:%s", r.db, path)
}

func (r *Redis) loop(ctx context.Context) {
	defer close(r.done)
	prefix := fmt.Sprintf("__keyspace@%d__:", r.db)
	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			path := strings.TrimPrefix(msg.Channel, prefix)
			seq, watched := r.fan.ticket(path)
			if !watched {
				continue
			}
			snap, err := r.read(ctx, path)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Error("Čtení uzlu po notifikaci selhalo", "path", path, "error", err)
				}
				continue
			}
			r.fan.publishAt(path, seq, snap)
		}
	}
}

// read sestaví snapshot podle typu klíče.
func (r *Redis) read(ctx context.Context, path string) (Snapshot, error) {
	kind, err := r.rdb.Type(ctx, path).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("rtdb: TYPE %s: %w", path, err)
	}

	switch kind {
	case "none":
		return Snapshot{Path: path}, nil
	case "string":
		val, err := r.rdb.Get(ctx, path).Bytes()
		if errors.Is(err, redis.Nil) {
			return Snapshot{Path: path}, nil
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("rtdb: GET %s: %w", path, err)
		}
		return Snapshot{Path: path, Value: val}, nil
	case "hash":
		fields, err := r.rdb.HGetAll(ctx, path).Result()
		if err != nil {
			return Snapshot{}, fmt.Errorf("rtdb: HGETALL %s: %w", path, err)
		}
		return hashSnapshot(path, fields)
	default:
		return Snapshot{}, fmt.Errorf("rtdb: klíč %s má nepodporovaný typ %q", path, kind)
	}
}

// hashSnapshot složí pole hashe do jednoho JSON objektu. Prázdný hash je prázdný uzel.
func hashSnapshot(path string, fields map[string]string) (Snapshot, error) {
	if len(fields) == 0 {
		return Snapshot{Path: path}, nil
	}
	obj := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if json.Valid([]byte(v)) {
			obj[k] = json.RawMessage(v)
			continue
		}
		// neplatný JSON bereme jako obyčejný řetězec
		quoted, _ := json.Marshal(v)
		obj[k] = quoted
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rtdb: skládání %s: %w", path, err)
	}
	return Snapshot{Path: path, Value: raw}, nil
}

func (r *Redis) watch(path string) error {
	ctx := context.Background()
	if err := r.pubsub.Subscribe(ctx, r.channel(path)); err != nil {
		return fmt.Errorf("rtdb: SUBSCRIBE %s: %w", path, err)
	}
	// lístek až po SUBSCRIBE: změna během čtení přijde jako notifikace s vyšším lístkem
	seq, ok := r.fan.ticket(path)
	if !ok {
		return nil
	}
	snap, err := r.read(ctx, path)
	if err != nil {
		return err
	}
	r.fan.publishAt(path, seq, snap)
	return nil
}

func (r *Redis) unwatch(path string) {
	if err := r.pubsub.Unsubscribe(context.Background(), r.channel(path)); err != nil {
		r.logger.Warn("UNSUBSCRIBE selhal", "path", path, "error", err)
	}
}

// Get viz Client.
func (r *Redis) Get(ctx context.Context, path string) (Snapshot, error) {
	if r.isClosed() {
		return Snapshot{}, ErrClosed
	}
	if err := checkPath(path); err != nil {
		return Snapshot{}, err
	}
	return r.read(ctx, path)
}

// Subscribe viz Client.
func (r *Redis) Subscribe(_ context.Context, path string, cb Callback) (Unsubscribe, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	return r.fan.add(path, cb)
}

func (r *Redis) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close ukončí notifikační smyčku a spojení.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.fan.close()
	r.cancel()
	err := r.pubsub.Close()
	<-r.done
	if cerr := r.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}
