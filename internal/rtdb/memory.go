package rtdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory je realtime strom v paměti procesu. Slouží pro testy a lokální vývoj
// (RTDB_BACKEND=memory); jako jediný backend umí i zápis.
type Memory struct {
	mu     sync.RWMutex
	nodes  map[string]json.RawMessage
	fan    *fanout
	closed bool
}

// NewMemory vytvoří prázdný strom.
func NewMemory() *Memory {
	m := &Memory{nodes: make(map[string]json.RawMessage)}
	m.fan = newFanout("memory", m)
	return m
}

func (m *Memory) watch(path string) error {
	m.mu.RLock()
	val := m.nodes[path]
	m.mu.RUnlock()
	// Stejně jako RTDB: první callback přijde vždy, i když uzel neexistuje.
	m.fan.publish(path, Snapshot{Path: path, Value: val})
	return nil
}

func (m *Memory) unwatch(string) {}

// Get vrátí aktuální hodnotu uzlu.
func (m *Memory) Get(_ context.Context, path string) (Snapshot, error) {
	if err := checkPath(path); err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}
	return Snapshot{Path: path, Value: m.nodes[path]}, nil
}

// Subscribe viz Client.
func (m *Memory) Subscribe(_ context.Context, path string, cb Callback) (Unsubscribe, error) {
	return m.fan.add(path, cb)
}

// Set přepíše uzel a upozorní odběratele. value se serializuje do JSONu.
func (m *Memory) Set(path string, value any) error {
	if err := checkPath(path); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("rtdb: serializace %s: %w", path, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.nodes[path] = raw
	m.mu.Unlock()

	m.fan.publish(path, Snapshot{Path: path, Value: raw})
	return nil
}

// SetChild vloží (nebo přepíše) jeden klíč v objektu na cestě path,
// typicky nový záznam "<epoch>" v kolekci raw_10s nebo alerts.
func (m *Memory) SetChild(path, key string, value any) error {
	if err := checkPath(path); err != nil {
		return err
	}
	child, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("rtdb: serializace %s/%s: %w", path, key, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	obj := map[string]json.RawMessage{}
	if cur := m.nodes[path]; len(cur) > 0 {
		// Pokud uzel nebyl objekt, nahradíme ho.
		_ = json.Unmarshal(cur, &obj)
		if obj == nil {
			obj = map[string]json.RawMessage{}
		}
	}
	obj[key] = child
	raw, err := json.Marshal(obj)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("rtdb: serializace %s: %w", path, err)
	}
	m.nodes[path] = raw
	m.mu.Unlock()

	m.fan.publish(path, Snapshot{Path: path, Value: raw})
	return nil
}

// Delete odstraní uzel; odběratelé dostanou prázdný snapshot.
func (m *Memory) Delete(path string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	delete(m.nodes, path)
	m.mu.Unlock()

	m.fan.publish(path, Snapshot{Path: path})
	return nil
}

// Close viz Client.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.fan.close()
	return nil
}
