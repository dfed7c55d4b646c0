package telemetry

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// AlertWindow je zpětné okno alert logu (7 dní = 604 800 s).
const AlertWindow = 7 * 24 * time.Hour

// Známé typy alertů. Prahy, které je vyvolávají, určuje zařízení, ne tento kód.
const (
	AlertAQISevere = "AQI_SEVERE"
	AlertCOHigh    = "CO_HIGH"
)

// AlertRecord je jeden záznam z devices/<id>/alerts.
type AlertRecord struct {
	Timestamp int64    `json:"timestamp"`
	Type      string   `json:"type"`
	Value     *float64 `json:"value,omitempty"`
}

// ParseAlerts dekóduje celý alert log (bez filtrování).
func ParseAlerts(raw json.RawMessage) []AlertRecord {
	keyed := parseKeyed(raw)
	out := make([]AlertRecord, 0, len(keyed))
	for _, k := range keyed {
		rec := AlertRecord{Timestamp: k.Timestamp, Value: numberPtr(k.Fields["value"])}
		if t, ok := k.Fields["type"].(string); ok {
			rec.Type = t
		}
		out = append(out, rec)
	}
	return out
}

// FilterAlerts ponechá záznamy s timestamp >= now - 7 dní a seřadí je sestupně (nejnovější první).
// Vstupní slice se nemění.
func FilterAlerts(records []AlertRecord, now time.Time) []AlertRecord {
	cutoff := now.Unix() - int64(AlertWindow/time.Second)
	out := make([]AlertRecord, 0, len(records))
	for _, r := range records {
		if r.Timestamp >= cutoff {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// Severity je závažnost alertu a jeho barva v UI.
type Severity struct {
	Level string `json:"level"`
	Color string `json:"color"`
}

var (
	SeveritySevere = Severity{Level: "severe", Color: "red"}
	SeverityHigh   = Severity{Level: "high", Color: "orange"}
	SeverityInfo   = Severity{Level: "info", Color: "gray"}
)

// ClassifyAlert mapuje typ na závažnost přesnou shodou; neznámé typy jsou neutrální.
func ClassifyAlert(alertType string) Severity {
	switch alertType {
	case AlertAQISevere:
		return SeveritySevere
	case AlertCOHigh:
		return SeverityHigh
	}
	return SeverityInfo
}

// AlertView je alert připravený pro stránku Alerts.
type AlertView struct {
	AlertRecord
	Severity  Severity `json:"severity"`
	When      string   `json:"when"`
	Ago       string   `json:"ago"`
	ShowValue bool     `json:"show_value"`
}

// BuildAlertViews vyfiltruje, seřadí a obohatí alerty vzhledem k času čtení.
func BuildAlertViews(records []AlertRecord, now time.Time, opts ViewOptions) []AlertView {
	filtered := FilterAlerts(records, now)
	out := make([]AlertView, 0, len(filtered))
	for _, r := range filtered {
		out = append(out, AlertView{
			AlertRecord: r,
			Severity:    ClassifyAlert(r.Type),
			When:        time.Unix(r.Timestamp, 0).In(opts.location()).Format(DisplayTimeLayout),
			Ago:         TimeAgo(r.Timestamp, now),
			ShowValue:   r.Value != nil && *r.Value != 0,
		})
	}
	return out
}

// TimeAgo formátuje stáří události ("42s ago", "5m ago", "3h ago", "2d ago").
func TimeAgo(epoch int64, now time.Time) string {
	diff := now.Unix() - epoch
	if diff < 0 {
		diff = 0
	}
	switch {
	case diff < 60:
		return fmt.Sprintf("%ds ago", diff)
	case diff < 3600:
		return fmt.Sprintf("%dm ago", diff/60)
	case diff < 86400:
		return fmt.Sprintf("%dh ago", diff/3600)
	}
	return fmt.Sprintf("%dd ago", diff/86400)
}
