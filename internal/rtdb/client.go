// Package rtdb čte realtime strom (devices/<id>/...) z externího úložiště.
//
// Klient se vytváří jednou při startu procesu a předává se odkazem všem komponentám,
// které potřebují odběr. Tento kód strom nikdy nezapisuje (kromě Memory backendu pro testy).
package rtdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Uzly pod devices/<id>/.
const (
	NodeLive        = "live"
	NodeRaw10s      = "raw_10s"
	NodeBucket1Min  = "bucket_1min"
	NodeBucket10Min = "bucket_10min"
	NodeAlerts      = "alerts"
)

var (
	// ErrClosed vrací klient po zavolání Close.
	ErrClosed = errors.New("rtdb: client closed")
	// ErrInvalidPath značí prázdnou nebo nepovolenou cestu.
	ErrInvalidPath = errors.New("rtdb: invalid path")
)

// Snapshot je hodnota uzlu v okamžiku doručení.
type Snapshot struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// Exists je false pro chybějící uzel (prázdná hodnota nebo JSON null).
// Chybějící uzel je platný stav "zatím žádná data", ne chyba.
func (s Snapshot) Exists() bool {
	v := bytes.TrimSpace(s.Value)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// Callback dostává snapshoty v pořadí, v jakém je doručí zdroj.
type Callback func(Snapshot)

// Unsubscribe zruší odběr. Je idempotentní. Doručení, které už běží, může ještě doběhnout.
type Unsubscribe func()

// Client je dlouho žijící push zdroj s registrací callbacků po cestách.
type Client interface {
	// Get jednorázově přečte uzel.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Subscribe zaregistruje callback pro cestu. Aktuální hodnota (pokud je známá)
	// přijde jako první, potom každá změna.
	Subscribe(ctx context.Context, path string, cb Callback) (Unsubscribe, error)
	// Close ukončí všechny odběry a uvolní spojení.
	Close() error
}

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidDeviceID ověří ID zařízení, které přijde z URL.
func ValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

// DevicePath sestaví cestu devices/<id>/<node>.
func DevicePath(deviceID, node string) string {
	return "devices/" + deviceID + "/" + node
}

// checkPath odmítne prázdné cesty a MQTT wildcardy.
func checkPath(path string) error {
	if path == "" || strings.ContainsAny(path, "#+") || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return ErrInvalidPath
	}
	return nil
}
