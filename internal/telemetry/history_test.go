package telemetry

import (
	"encoding/json"
	"testing"
)

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("")
	if err != nil || g != Raw10s {
		t.Fatalf("empty range must default to raw_10s, got %q (%v)", g, err)
	}
	for _, s := range []string{"raw_10s", "bucket_1min", "bucket_10min"} {
		if _, err := ParseGranularity(s); err != nil {
			t.Fatalf("ParseGranularity(%q): %v", s, err)
		}
	}
	if _, err := ParseGranularity("bucket_1h"); err == nil {
		t.Fatalf("expected error for unknown granularity")
	}
}

func TestNormalizeHistorySortsAscending(t *testing.T) {
	raw := json.RawMessage(`{
		"1700000030": {"aqi": 3},
		"1700000010": {"aqi": 1},
		"bogus":      {"aqi": 99},
		"1700000020": {"aqi": 2},
		"1700000000": {"aqi": 0}
	}`)

	recs := NormalizeHistory(raw)
	if len(recs) != 4 {
		t.Fatalf("expected 4 records (non-numeric key dropped), got %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i-1].Timestamp >= recs[i].Timestamp {
			t.Fatalf("series not strictly ascending at %d: %d >= %d", i, recs[i-1].Timestamp, recs[i].Timestamp)
		}
	}
	if recs[0].Timestamp != 1700000000 || recs[3].Timestamp != 1700000030 {
		t.Fatalf("unexpected bounds: %d..%d", recs[0].Timestamp, recs[3].Timestamp)
	}
}

func TestNormalizeHistoryEmpty(t *testing.T) {
	if got := NormalizeHistory(nil); len(got) != 0 {
		t.Fatalf("expected empty series, got %d records", len(got))
	}
	if got := NormalizeHistory(json.RawMessage(`null`)); len(got) != 0 {
		t.Fatalf("expected empty series for null, got %d records", len(got))
	}
}

func TestMetricValueRawReadsLeaf(t *testing.T) {
	rec := HistoryRecord{Fields: map[string]any{"aqi": 42.0, "pm25": map[string]any{"avg": 7.0}}}

	if v := MetricValue(rec, MetricAQI, Raw10s); v == nil || *v != 42 {
		t.Fatalf("raw aqi: got %v", v)
	}
	if v := MetricValue(rec, MetricPM25, Raw10s); v != nil {
		t.Fatalf("raw mode must not unwrap aggregates, got %v", *v)
	}
}

func TestMetricValueBucketedReadsAvg(t *testing.T) {
	rec := HistoryRecord{Fields: map[string]any{
		"aqi":  map[string]any{"avg": 55.5, "min": 40.0, "max": 70.0},
		"pm1":  map[string]any{"avg": 4.0},
		"pm25": 12.0, // list, ne agregace
	}}

	for _, g := range []Granularity{Bucket1Min, Bucket10Min} {
		if v := MetricValue(rec, MetricAQI, g); v == nil || *v != 55.5 {
			t.Fatalf("%s aqi avg: got %v", g, v)
		}
		if v := MetricValue(rec, MetricPM1, g); v == nil || *v != 4 {
			t.Fatalf("%s pm1 avg: got %v", g, v)
		}
		if v := MetricValue(rec, MetricPM25, g); v != nil {
			t.Fatalf("%s must not read raw leaf for pm25, got %v", g, *v)
		}
		if v := MetricValue(rec, MetricPM10, g); v != nil {
			t.Fatalf("%s missing pm10 must be nil, got %v", g, *v)
		}
	}
}

func TestMetricValueLegacyFlatAvg(t *testing.T) {
	rec := HistoryRecord{Fields: map[string]any{"avg": 80.0, "count": 6.0}}
	if v := MetricValue(rec, MetricAQI, Bucket1Min); v == nil || *v != 80 {
		t.Fatalf("legacy flat avg must be used for aqi, got %v", v)
	}
	if v := MetricValue(rec, MetricPM10, Bucket1Min); v != nil {
		t.Fatalf("legacy flat avg applies to aqi only, got %v", *v)
	}
}

func TestSeriesValues(t *testing.T) {
	s := Series{
		Granularity: Raw10s,
		Records: NormalizeHistory(json.RawMessage(`{
			"20": {"aqi": 2, "pm1": 5},
			"10": {"aqi": 1}
		}`)),
	}
	vals := s.Values(MetricPM1)
	if len(vals) != 2 || vals[0] != nil || vals[1] == nil || *vals[1] != 5 {
		t.Fatalf("unexpected pm1 values: %v", vals)
	}
}

func TestNormalizeHistoryMergesSameTimestamp(t *testing.T) {
	raw := json.RawMessage(`{
		"100":   {"aqi": 1},
		"-Nx9":  {"aqi": 2, "timestamp": 100},
		"200":   {"aqi": 3}
	}`)
	recs := NormalizeHistory(raw)
	if len(recs) != 2 || recs[0].Timestamp != 100 || recs[1].Timestamp != 200 {
		t.Fatalf("history must stay strictly ascending, got %+v", recs)
	}
	// "100" > "-Nx9" podle klíče, vyhrává tedy záznam pod klíčem "100"
	if v := MetricValue(recs[0], MetricAQI, Raw10s); v == nil || *v != 1 {
		t.Fatalf("unexpected merged value %v", v)
	}
}
