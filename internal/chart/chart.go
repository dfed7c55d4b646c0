// Package chart skládá z řady historie datasety a volby pro Chart.js.
// Nic nekreslí, jen připraví JSON, který stránka Analytics předá knihovně.
package chart

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

// DefaultYMax je strop osy Y, když graf nemá žádnou číselnou hodnotu.
const DefaultYMax = 100

// LabelStyle určuje popisky osy X.
type LabelStyle string

const (
	LabelsFormatted LabelStyle = "formatted"
	LabelsBlank     LabelStyle = "blank"
)

// ParseLabelStyle: prázdný řetězec = formatted.
func ParseLabelStyle(s string) (LabelStyle, error) {
	switch LabelStyle(s) {
	case "", LabelsFormatted:
		return LabelsFormatted, nil
	case LabelsBlank:
		return LabelsBlank, nil
	}
	return "", fmt.Errorf("neznámý styl popisků %q", s)
}

var colors = map[telemetry.Metric]string{
	telemetry.MetricAQI:  "#22c55e",
	telemetry.MetricPM1:  "#3b82f6",
	telemetry.MetricPM25: "#f59e0b",
	telemetry.MetricPM10: "#ef4444",
}

// Color vrací barvu čáry metriky.
func Color(m telemetry.Metric) string {
	return colors[m]
}

// ParseMetrics čte seznam metrik oddělený čárkami ("aqi,pm25").
// Prázdný řetězec znamená prázdný výběr.
func ParseMetrics(csv string) ([]telemetry.Metric, error) {
	var out []telemetry.Metric
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, err := telemetry.ParseMetric(part)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Input jsou parametry vykreslení.
type Input struct {
	// Metrics: zapnuté metriky. nil = všechny čtyři, prázdný slice = žádná.
	Metrics  []telemetry.Metric
	Labels   LabelStyle
	Location *time.Location
}

// Dataset odpovídá jednomu datasetu Chart.js.
type Dataset struct {
	Metric           telemetry.Metric `json:"metric"`
	Label            string           `json:"label"`
	Data             []*float64       `json:"data"`
	BorderColor      string           `json:"borderColor"`
	BackgroundColor  string           `json:"backgroundColor"`
	Fill             bool             `json:"fill"`
	Tension          float64          `json:"tension"`
	BorderWidth      int              `json:"borderWidth"`
	PointRadius      int              `json:"pointRadius"`
	PointHoverRadius int              `json:"pointHoverRadius"`
}

// Chart je kompletní model grafu. Tooltips[i] je titulek tooltipu bodu i.
type Chart struct {
	DeviceID    string                `json:"device_id"`
	Granularity telemetry.Granularity `json:"granularity"`
	Title       string                `json:"title"`
	Labels      []string              `json:"labels"`
	Tooltips    []string              `json:"tooltips"`
	Timestamps  []int64               `json:"timestamps"`
	Datasets    []Dataset             `json:"datasets"`
	YMax        float64               `json:"y_max"`
	Options     Options               `json:"options"`
}

// Build sestaví graf. Prázdná řada dá prázdný graf, ne chybu.
func Build(series telemetry.Series, in Input) Chart {
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}
	g := series.Granularity
	if g == "" {
		g = telemetry.Raw10s
	}
	series.Granularity = g

	n := len(series.Records)
	c := Chart{
		DeviceID:    series.DeviceID,
		Granularity: g,
		Title:       "Analytics - " + g.Window(),
		Labels:      make([]string, n),
		Tooltips:    make([]string, n),
		Timestamps:  make([]int64, n),
		Datasets:    []Dataset{},
	}
	for i, rec := range series.Records {
		t := time.Unix(rec.Timestamp, 0).In(loc)
		c.Timestamps[i] = rec.Timestamp
		c.Tooltips[i] = t.Format(telemetry.DisplayTimeLayout)
		if in.Labels != LabelsBlank {
			c.Labels[i] = FormatLabel(t, g)
		}
	}

	radius := 0
	if n <= 2 {
		radius = 5
	}
	for _, m := range enabled(in.Metrics) {
		c.Datasets = append(c.Datasets, Dataset{
			Metric:           m,
			Label:            m.DisplayName(),
			Data:             series.Values(m),
			BorderColor:      Color(m),
			BackgroundColor:  Color(m) + "22",
			Fill:             true,
			Tension:          0.3,
			BorderWidth:      3,
			PointRadius:      radius,
			PointHoverRadius: 6,
		})
	}

	c.YMax = YMax(c.Datasets)
	c.Options = newOptions(c.Title, c.YMax)
	return c
}

// enabled vrací zapnuté metriky v pevném pořadí bez duplicit.
func enabled(selected []telemetry.Metric) []telemetry.Metric {
	if selected == nil {
		return telemetry.Metrics()
	}
	on := make(map[telemetry.Metric]bool, len(selected))
	for _, m := range selected {
		on[m] = true
	}
	var out []telemetry.Metric
	for _, m := range telemetry.Metrics() {
		if on[m] {
			out = append(out, m)
		}
	}
	return out
}

// YMax = 1,2 × maximum číselných hodnot všech datasetů, bez hodnot DefaultYMax.
func YMax(datasets []Dataset) float64 {
	top := math.Inf(-1)
	for _, d := range datasets {
		for _, v := range d.Data {
			if v != nil && *v > top {
				top = *v
			}
		}
	}
	if math.IsInf(top, -1) {
		return DefaultYMax
	}
	return top * 1.2
}

// FormatLabel: surová data čas, minutové agregace den a hodina, desetiminutové jen den.
func FormatLabel(t time.Time, g telemetry.Granularity) string {
	switch g {
	case telemetry.Bucket1Min:
		return t.Format("Jan 2, 15h")
	case telemetry.Bucket10Min:
		return t.Format("Jan 2")
	}
	return t.Format("15:04:05")
}
