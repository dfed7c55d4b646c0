package rtdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresOptions nastavují Postgres backend.
type PostgresOptions struct {
	URL     string
	Table   string // výchozí "rtdb_nodes"
	Channel string // výchozí "rtdb_changes"
	// Migrate vytvoří tabulku a trigger, pokud chybí.
	Migrate bool
}

// Postgres drží uzly v tabulce (path TEXT PK, value JSONB).
// Trigger po každé změně pošle NOTIFY s cestou, odběratelé pak uzel načtou znovu.
type Postgres struct {
	pool    *pgxpool.Pool
	table   pgx.Identifier
	channel string
	logger  *slog.Logger
	fan     *fanout

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPostgres otevře pool, volitelně připraví schéma a spustí LISTEN smyčku.
func NewPostgres(ctx context.Context, opts PostgresOptions, logger *slog.Logger) (*Postgres, error) {
	if opts.Table == "" {
		opts.Table = "rtdb_nodes"
	}
	if opts.Channel == "" {
		opts.Channel = "rtdb_changes"
	}

	pool, err := pgxpool.New(ctx, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("rtdb: chyba konfigurace DB: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("rtdb: DB není dostupná: %w", err)
	}

	p := &Postgres{
		pool:    pool,
		table:   pgx.Identifier{opts.Table},
		channel: opts.Channel,
		logger:  logger.With("component", "rtdb-postgres"),
		done:    make(chan struct{}),
	}
	p.fan = newFanout("postgres", p)

	if opts.Migrate {
		if err := p.migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.listen(loopCtx)

	p.logger.Info("Připojeno k Postgres", "table", opts.Table, "channel", opts.Channel)
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	for _, q := range migrationStatements(p.table, p.channel) {
		if _, err := p.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("rtdb: migrace schématu: %w", err)
		}
	}
	return nil
}

// migrationStatements vrací DDL pro tabulku uzlů a NOTIFY trigger.
// Kanál jde do pg_notify jako SQL literál.
func migrationStatements(tableID pgx.Identifier, channelName string) []string {
	table := tableID.Sanitize()
	fn := pgx.Identifier{tableID[0] + "_notify"}.Sanitize()
	channel := "'" + strings.ReplaceAll(channelName, "'", "''") + "'"

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			path TEXT PRIMARY KEY,
			value JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table),
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' THEN
				PERFORM pg_notify(%s, OLD.path);
			ELSE
				PERFORM pg_notify(%s, NEW.path);
			END IF;
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`, fn, channel, channel),
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, fn, table),
		fmt.Sprintf(`CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s
			FOR EACH ROW EXECUTE FUNCTION %s()`, fn, table, fn),
	}
}

// textSnapshot: chybějící řádek i SQL NULL znamenají prázdný uzel.
func textSnapshot(path string, val *string) Snapshot {
	if val == nil {
		return Snapshot{Path: path}
	}
	return Snapshot{Path: path, Value: []byte(*val)}
}

func (p *Postgres) read(ctx context.Context, path string) (Snapshot, error) {
	query := fmt.Sprintf(`SELECT value::text FROM %s WHERE path = $1`, p.table.Sanitize())

	var val *string
	err := p.pool.QueryRow(ctx, query, path).Scan(&val)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{Path: path}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("rtdb: čtení %s: %w", path, err)
	}
	return textSnapshot(path, val), nil
}

// listen drží vyhrazené spojení s LISTEN. Po výpadku se připojí znovu
// a načte všechny sledované cesty, aby se nepropásla žádná změna.
func (p *Postgres) listen(ctx context.Context) {
	defer close(p.done)
	first := true
	for ctx.Err() == nil {
		err := p.listenOnce(ctx, !first)
		first = false
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("LISTEN spojení přerušeno, zkusím znovu", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (p *Postgres) listenOnce(ctx context.Context, resync bool) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		return err
	}

	if resync {
		for _, path := range p.fan.watched() {
			p.refresh(ctx, path)
		}
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			// spojení po chybě nevracíme do poolu
			conn.Conn().Close(context.Background())
			return err
		}
		if p.fan.isWatched(n.Payload) {
			p.refresh(ctx, n.Payload)
		}
	}
}

func (p *Postgres) refresh(ctx context.Context, path string) {
	seq, ok := p.fan.ticket(path)
	if !ok {
		return
	}
	snap, err := p.read(ctx, path)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("Čtení uzlu po notifikaci selhalo", "path", path, "error", err)
		}
		return
	}
	p.fan.publishAt(path, seq, snap)
}

// watch načte počáteční hodnotu. Notifikace, která dorazí během čtení,
// spustí refresh s vyšším lístkem a jeho novější hodnota vyhraje.
func (p *Postgres) watch(path string) error {
	seq, ok := p.fan.ticket(path)
	if !ok {
		return nil
	}
	snap, err := p.read(context.Background(), path)
	if err != nil {
		return err
	}
	p.fan.publishAt(path, seq, snap)
	return nil
}

func (p *Postgres) unwatch(string) {}

// Get viz Client.
func (p *Postgres) Get(ctx context.Context, path string) (Snapshot, error) {
	if p.isClosed() {
		return Snapshot{}, ErrClosed
	}
	if err := checkPath(path); err != nil {
		return Snapshot{}, err
	}
	return p.read(ctx, path)
}

// Subscribe viz Client.
func (p *Postgres) Subscribe(_ context.Context, path string, cb Callback) (Unsubscribe, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	return p.fan.add(path, cb)
}

func (p *Postgres) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close zastaví LISTEN smyčku a uzavře pool.
func (p *Postgres) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.fan.close()
	p.cancel()
	<-p.done
	p.pool.Close()
	return nil
}
