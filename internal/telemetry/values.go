package telemetry

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// number převede hodnotu z dekódovaného JSONu na float64.
// Zařízení občas pošle číslo jako string ("24.5"), takové hodnoty také bereme.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func numberPtr(v any) *float64 {
	f, ok := number(v)
	if !ok {
		return nil
	}
	return &f
}

// roundHalfUp zaokrouhluje stejně jako dashboard v prohlížeči (x.5 nahoru i pro záporná čísla).
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// decodeObject vrací nil, pokud hodnota není JSON objekt.
func decodeObject(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

// keyedRecord je jeden záznam kolekce klíčované časovou značkou
// (devices/<id>/raw_10s, .../alerts).
type keyedRecord struct {
	Key       string
	Timestamp int64
	Fields    map[string]any
}

// parseKeyed rozbalí objekt {"<epoch>": {...}, ...} na seznam záznamů.
// Pole "timestamp" uvnitř záznamu má přednost před klíčem. Záznam bez vlastního
// timestampu, jehož klíč není celé číslo, zahazujeme.
// Výsledek je seřazený vzestupně podle času, při shodě podle klíče. Nic se neslučuje.
func parseKeyed(raw json.RawMessage) []keyedRecord {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	out := make([]keyedRecord, 0, len(obj))
	for k, v := range obj {
		fields := decodeObject(v)
		if fields == nil {
			fields = map[string]any{}
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if own, ok := number(fields["timestamp"]); ok {
			ts, err = int64(own), nil
		}
		if err != nil {
			continue
		}
		out = append(out, keyedRecord{Key: k, Timestamp: ts, Fields: fields})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Key < out[j].Key
	})
	return out
}
