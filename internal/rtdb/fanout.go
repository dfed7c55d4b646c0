package rtdb

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/KishorKumar15007/aqimonitor/internal/metrics"
)

// upstream je strana backendu: začít a přestat sledovat jednu cestu ve zdroji.
type upstream interface {
	watch(path string) error
	unwatch(path string)
}

type subscription struct {
	id        string
	cb        Callback
	closed    atomic.Bool
	delivered bool // chráněno watch.deliver
}

type watch struct {
	// deliver serializuje doručování na jedné cestě, takže každý odběratel
	// vidí snapshoty ve stejném pořadí jako zdroj.
	deliver sync.Mutex
	subs    map[string]*subscription
	last    *Snapshot

	// seq je poslední vydaný lístek čtení, applied lístek posledního
	// doručeného snapshotu (obojí chráněno fanout.mu).
	seq     uint64
	applied uint64
}

// fanout rozdává snapshoty jedné cesty všem jejím callbackům.
// První odběr cesty spustí upstream.watch, poslední odhlášení upstream.unwatch.
type fanout struct {
	backend string
	up      upstream

	mu     sync.Mutex
	paths  map[string]*watch
	closed bool

	// upMu serializuje volání watch/unwatch, aby se nepředběhla.
	upMu sync.Mutex
}

func newFanout(backend string, up upstream) *fanout {
	return &fanout{
		backend: backend,
		up:      up,
		paths:   make(map[string]*watch),
	}
}

func (f *fanout) add(path string, cb Callback) (Unsubscribe, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	sub := &subscription{id: uuid.NewString(), cb: cb}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	w, ok := f.paths[path]
	first := !ok
	if first {
		w = &watch{subs: make(map[string]*subscription)}
		f.paths[path] = w
	}
	w.subs[sub.id] = sub
	f.mu.Unlock()

	metrics.RTDBSubscriptions.WithLabelValues(f.backend).Inc()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			if !sub.closed.Swap(true) {
				metrics.RTDBSubscriptions.WithLabelValues(f.backend).Dec()
			}

			f.mu.Lock()
			idle := false
			if cur, ok := f.paths[path]; ok && cur == w {
				delete(w.subs, sub.id)
				if len(w.subs) == 0 {
					delete(f.paths, path)
					idle = true
				}
			}
			f.mu.Unlock()

			if idle {
				f.stopIfIdle(path)
			}
		})
	}

	if first {
		f.upMu.Lock()
		err := f.up.watch(path)
		f.upMu.Unlock()
		if err != nil {
			unsubscribe()
			return nil, err
		}
	}

	// Nový odběratel už sledované cesty dostane poslední známou hodnotu hned.
	w.deliver.Lock()
	f.mu.Lock()
	last := w.last
	f.mu.Unlock()
	if last != nil && !sub.delivered && !sub.closed.Load() {
		sub.delivered = true
		metrics.RTDBPushes.WithLabelValues(f.backend).Inc()
		sub.cb(*last)
	}
	w.deliver.Unlock()

	return unsubscribe, nil
}

func (f *fanout) stopIfIdle(path string) {
	f.upMu.Lock()
	defer f.upMu.Unlock()

	f.mu.Lock()
	_, active := f.paths[path]
	f.mu.Unlock()
	if active {
		// mezitím se někdo přihlásil znovu
		return
	}
	f.up.unwatch(path)
}

// ticket vydá lístek pro čtení cesty. Lístek se bere PŘED čtením ze zdroje,
// takže vyšší lístek znamená čtení, které začalo později.
func (f *fanout) ticket(path string) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.paths[path]
	if !ok {
		return 0, false
	}
	w.seq++
	return w.seq, true
}

// publish doručí snapshot všem odběratelům cesty. Nesledované cesty ignoruje.
// Pro backendy, které doručují v pořadí zdroje (MQTT, memory).
func (f *fanout) publish(path string, snap Snapshot) {
	seq, ok := f.ticket(path)
	if !ok {
		return
	}
	f.publishAt(path, seq, snap)
}

// publishAt doručí snapshot přečtený s lístkem seq. Pokud už byl doručen
// snapshot z později začatého čtení, tento je starší a zahodí se.
func (f *fanout) publishAt(path string, seq uint64, snap Snapshot) {
	f.mu.Lock()
	w, ok := f.paths[path]
	f.mu.Unlock()
	if !ok {
		return
	}

	w.deliver.Lock()
	defer w.deliver.Unlock()

	f.mu.Lock()
	if seq <= w.applied {
		f.mu.Unlock()
		return
	}
	w.applied = seq
	w.last = &snap
	subs := make([]*subscription, 0, len(w.subs))
	for _, s := range w.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		if s.closed.Load() {
			continue
		}
		s.delivered = true
		metrics.RTDBPushes.WithLabelValues(f.backend).Inc()
		s.cb(snap)
	}
}

// cached vrací poslední doručený snapshot sledované cesty.
func (f *fanout) cached(path string) (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.paths[path]
	if !ok || w.last == nil {
		return Snapshot{}, false
	}
	return *w.last, true
}

// watched vrací seznam právě sledovaných cest (pro obnovu po reconnectu).
func (f *fanout) watched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.paths))
	for p := range f.paths {
		out = append(out, p)
	}
	return out
}

func (f *fanout) isWatched(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.paths[path]
	return ok
}

// close zneplatní všechny odběry. Další add vrací ErrClosed.
func (f *fanout) close() {
	f.mu.Lock()
	f.closed = true
	paths := f.paths
	f.paths = make(map[string]*watch)
	f.mu.Unlock()

	for _, w := range paths {
		for _, s := range w.subs {
			if !s.closed.Swap(true) {
				metrics.RTDBSubscriptions.WithLabelValues(f.backend).Dec()
			}
		}
	}
}
