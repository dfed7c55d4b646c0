package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Granularity určuje, ze které kolekce se čte historie.
// Hodnota je zároveň název uzlu pod devices/<id>/.
type Granularity string

const (
	Raw10s      Granularity = "raw_10s"      // surové vzorky po 10 s
	Bucket1Min  Granularity = "bucket_1min"  // minutové průměry
	Bucket10Min Granularity = "bucket_10min" // desetiminutové průměry
)

// Granularities vrací všechny podporované granularity v pořadí tlačítek v UI.
func Granularities() []Granularity {
	return []Granularity{Raw10s, Bucket1Min, Bucket10Min}
}

// ParseGranularity akceptuje pouze tři pevné hodnoty. Prázdný string znamená Raw10s.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "":
		return Raw10s, nil
	case Raw10s, Bucket1Min, Bucket10Min:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("neznámá granularita %q (povoleno: raw_10s, bucket_1min, bucket_10min)", s)
}

// IsBucketed je true pro předagregované kolekce, kde každá metrika nese pod-pole "avg".
func (g Granularity) IsBucketed() bool {
	return g == Bucket1Min || g == Bucket10Min
}

// Window je lidsky čitelné časové okno kolekce.
func (g Granularity) Window() string {
	switch g {
	case Bucket1Min:
		return "Last 24 Hours"
	case Bucket10Min:
		return "Last 7 Days"
	default:
		return "Last 1 Hour"
	}
}

// Label je popisek tlačítka pro přepnutí rozsahu.
func (g Granularity) Label() string {
	switch g {
	case Bucket1Min:
		return "24 Hours"
	case Bucket10Min:
		return "7 Days"
	default:
		return "1 Hour"
	}
}

// Metric je jedna vykreslitelná veličina historie.
type Metric string

const (
	MetricAQI  Metric = "aqi"
	MetricPM1  Metric = "pm1"
	MetricPM25 Metric = "pm25"
	MetricPM10 Metric = "pm10"
)

// Metrics vrací metriky v pevném pořadí, v jakém se kreslí do grafu.
func Metrics() []Metric {
	return []Metric{MetricAQI, MetricPM1, MetricPM25, MetricPM10}
}

// ParseMetric ověří název metriky.
func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("neznámá metrika %q", s)
}

// DisplayName je název metriky v legendě grafu.
func (m Metric) DisplayName() string {
	switch m {
	case MetricAQI:
		return "Air Quality Index"
	case MetricPM1:
		return "PM1 (µg/m³)"
	case MetricPM25:
		return "PM2.5 (µg/m³)"
	case MetricPM10:
		return "PM10 (µg/m³)"
	}
	return string(m)
}

// HistoryRecord je jeden bod historie. Fields obsahují buď přímo hodnoty metrik (raw_10s),
// nebo agregační objekty s pod-polem "avg" (bucket_*).
type HistoryRecord struct {
	Timestamp int64          `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// Series je aktuální řada pro jednu granularitu. Při každém pushi se nahrazuje celá.
type Series struct {
	DeviceID    string          `json:"device_id"`
	Granularity Granularity     `json:"granularity"`
	Records     []HistoryRecord `json:"records"`
}

// NormalizeHistory převede klíčovaný objekt ze snapshotu na řadu seřazenou ostře
// vzestupně podle času. Více záznamů se stejným časem (klíč i vlastní timestamp)
// se sloučí na poslední z nich podle klíče.
func NormalizeHistory(raw json.RawMessage) []HistoryRecord {
	keyed := parseKeyed(raw)
	out := make([]HistoryRecord, 0, len(keyed))
	for _, k := range keyed {
		rec := HistoryRecord{Timestamp: k.Timestamp, Fields: k.Fields}
		if n := len(out); n > 0 && out[n-1].Timestamp == rec.Timestamp {
			out[n-1] = rec
			continue
		}
		out = append(out, rec)
	}
	return out
}

// MetricValue vybere hodnotu metriky podle granularity.
// Surová data: číselný list. Agregovaná data: pod-pole "avg" dané metriky, nikdy list.
// Starší zápis agregací s jediným "avg" na úrovni záznamu bereme jen pro AQI.
func MetricValue(rec HistoryRecord, m Metric, g Granularity) *float64 {
	v, present := rec.Fields[string(m)]
	if !g.IsBucketed() {
		return numberPtr(v)
	}
	if agg, ok := v.(map[string]any); ok {
		return numberPtr(agg["avg"])
	}
	if !present && m == MetricAQI {
		return numberPtr(rec.Fields["avg"])
	}
	return nil
}

// Values vrátí hodnoty jedné metriky ve stejném pořadí jako záznamy řady.
func (s Series) Values(m Metric) []*float64 {
	out := make([]*float64, len(s.Records))
	for i, rec := range s.Records {
		out[i] = MetricValue(rec, m, s.Granularity)
	}
	return out
}

// Times vrátí časové značky řady.
func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s.Records))
	for i, rec := range s.Records {
		out[i] = time.Unix(rec.Timestamp, 0)
	}
	return out
}
