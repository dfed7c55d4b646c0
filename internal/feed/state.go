// Package feed drží odběry jednoho pohledu: živá data, historii a alerty.
//
// Každý reader má vlastní stav pod vlastním zámkem a mezi pohledy nic nesdílí.
// Životní cyklus: Idle → Subscribed → (Updating při každém pushi) → Unsubscribed.
// Unsubscribed je konečný stav, reader se znovu nespouští.
package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KishorKumar15007/aqimonitor/internal/metrics"
	"github.com/KishorKumar15007/aqimonitor/internal/rtdb"
)

// State je fáze odběru readeru.
type State int32

const (
	StateIdle State = iota
	StateSubscribed
	StateUpdating
	StateUnsubscribed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateUpdating:
		return "updating"
	case StateUnsubscribed:
		return "unsubscribed"
	}
	return "unknown"
}

var (
	// ErrStarted: Start na readeru, který už běží nebo skončil.
	ErrStarted = errors.New("feed: reader already started")
	// ErrNotRunning: operace vyžaduje běžící reader.
	ErrNotRunning = errors.New("feed: reader not running")
)

// Clock vrací "teď". V testech se podstrkuje pevný čas.
type Clock func() time.Time

func clockOrNow(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// lifecycle je společný základ readerů.
//
// opMu serializuje Start/Stop/přepnutí, mu chrání stav, který čtou callbacky.
// Callback ze zdroje může přijít ještě během Subscribe, proto se Subscribe
// nikdy nevolá pod mu.
type lifecycle struct {
	kind string

	opMu  sync.Mutex
	mu    sync.Mutex
	state atomic.Int32

	unsubscribe rtdb.Unsubscribe
	stopOnDone  func() bool
}

func (l *lifecycle) State() State {
	return State(l.state.Load())
}

// begin přepne Idle → Subscribed. Volá se pod opMu.
func (l *lifecycle) begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.State() != StateIdle {
		return ErrStarted
	}
	l.state.Store(int32(StateSubscribed))
	return nil
}

// abort vrátí reader do Idle po neúspěšném Subscribe.
func (l *lifecycle) abort() {
	l.mu.Lock()
	if l.State() == StateSubscribed {
		l.state.Store(int32(StateIdle))
	}
	l.mu.Unlock()
}

// attach uloží odhlašovací funkci a naváže Stop na konec ctx.
func (l *lifecycle) attach(ctx context.Context, unsubscribe rtdb.Unsubscribe, stop func()) {
	l.mu.Lock()
	l.unsubscribe = unsubscribe
	l.mu.Unlock()
	metrics.FeedActive.WithLabelValues(l.kind).Inc()
	l.stopOnDone = context.AfterFunc(ctx, stop)
}

// updating vrací false, pokud push přišel po ukončení. Volá se pod mu.
func (l *lifecycle) updating() bool {
	if l.State() == StateUnsubscribed {
		return false
	}
	l.state.Store(int32(StateUpdating))
	return true
}

// updated ukončí zpracování pushe. Volá se pod mu.
func (l *lifecycle) updated() {
	if l.State() == StateUpdating {
		l.state.Store(int32(StateSubscribed))
	}
	metrics.FeedUpdates.WithLabelValues(l.kind).Inc()
}

// stop je společná část Stop. Vrací false, pokud už reader skončil.
func (l *lifecycle) stop() bool {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	prev := l.State()
	l.state.Store(int32(StateUnsubscribed))
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	l.mu.Unlock()

	if prev == StateUnsubscribed {
		return false
	}
	if l.stopOnDone != nil {
		l.stopOnDone()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if prev != StateIdle {
		metrics.FeedActive.WithLabelValues(l.kind).Dec()
	}
	return true
}
