package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DefaultLiveThreshold je maximální stáří živého záznamu, kdy ho ještě považujeme za "LIVE".
const DefaultLiveThreshold = 20 * time.Second

// DisplayTimeLayout odpovídá formátu en-GB, který používá graf i seznam alertů.
const DisplayTimeLayout = "02/01/2006, 15:04:05"

// Placeholder se zobrazí místo hodnoty, která v záznamu chybí.
const Placeholder = "--"

// LiveReading je poslední stav zařízení z cesty devices/<id>/live.
// Všechna pole jsou pointery: chybějící nebo nečíselná hodnota zůstane nil a v UI
// se z ní stane placeholder, ne chyba.
type LiveReading struct {
	AQI       *float64 `json:"aqi"`
	PM1       *float64 `json:"pm1"`
	PM25      *float64 `json:"pm25"`
	PM10      *float64 `json:"pm10"`
	Temp      *float64 `json:"temp"`
	Pressure  *float64 `json:"pressure"`
	COStatus  *string  `json:"co_status"`
	Timestamp *int64   `json:"timestamp"`

	// přesný čas včetně zlomku sekundy, Timestamp je jen zaokrouhlený pro zobrazení
	epoch float64
}

// ParseLiveReading dekóduje snapshot živého záznamu. Druhá návratová hodnota je false,
// pokud snapshot není objekt (žádná data).
func ParseLiveReading(raw json.RawMessage) (LiveReading, bool) {
	obj := decodeObject(raw)
	if obj == nil {
		return LiveReading{}, false
	}

	r := LiveReading{
		AQI:      numberPtr(obj["aqi"]),
		PM1:      numberPtr(obj["pm1"]),
		PM25:     numberPtr(obj["pm25"]),
		PM10:     numberPtr(obj["pm10"]),
		Temp:     numberPtr(obj["temp"]),
		Pressure: numberPtr(obj["pressure"]),
	}

	switch s := obj["co_status"].(type) {
	case string:
		r.COStatus = &s
	case float64:
		v := strconv.FormatFloat(s, 'f', -1, 64)
		r.COStatus = &v
	case bool:
		v := strconv.FormatBool(s)
		r.COStatus = &v
	}

	if ts, ok := number(obj["timestamp"]); ok {
		v := int64(math.Floor(ts))
		r.Timestamp = &v
		r.epoch = ts
	}
	return r, true
}

// IsLive platí, pokud now - timestamp < threshold (v sekundách, hranice je exkluzivní).
// Záznam bez časové značky (nebo s nulovou) není nikdy živý.
func IsLive(r LiveReading, now time.Time, threshold time.Duration) bool {
	if r.Timestamp == nil || *r.Timestamp == 0 {
		return false
	}
	ts := r.epoch
	if ts == 0 {
		ts = float64(*r.Timestamp)
	}
	age := float64(now.UnixNano())/1e9 - ts
	return age < threshold.Seconds()
}

// Category je slovní kategorie AQI a barva, kterou ji UI vykreslí.
type Category struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

var (
	CategoryGood          = Category{Name: "Good", Color: "green"}
	CategoryModerate      = Category{Name: "Moderate", Color: "yellow"}
	CategoryUnhealthy     = Category{Name: "Unhealthy", Color: "orange"}
	CategoryVeryUnhealthy = Category{Name: "Very Unhealthy", Color: "red"}
	CategoryHazardous     = Category{Name: "Hazardous", Color: "purple"}
)

// AQICategory zařadí hodnotu AQI do pásma.
func AQICategory(aqi float64) Category {
	switch {
	case aqi <= 50:
		return CategoryGood
	case aqi <= 100:
		return CategoryModerate
	case aqi <= 200:
		return CategoryUnhealthy
	case aqi <= 300:
		return CategoryVeryUnhealthy
	default:
		return CategoryHazardous
	}
}

// LiveDisplay drží hodnoty naformátované pro zobrazení.
type LiveDisplay struct {
	AQI         string `json:"aqi"`
	PM1         string `json:"pm1"`
	PM25        string `json:"pm25"`
	PM10        string `json:"pm10"`
	Temp        string `json:"temp"`
	Pressure    string `json:"pressure"`
	COStatus    string `json:"co_status"`
	LastUpdated string `json:"last_updated"`
}

// LiveView je kompletní model pro Dashboard a Devices.
type LiveView struct {
	DeviceID   string      `json:"device_id"`
	HasData    bool        `json:"has_data"`
	Reading    LiveReading `json:"reading"`
	Display    LiveDisplay `json:"display"`
	Live       bool        `json:"live"`
	Status     string      `json:"status"`     // LIVE / OFFLINE
	Badge      string      `json:"badge"`      // ONLINE / OFFLINE
	Connection string      `json:"connection"` // Active / Disconnected
	Category   Category    `json:"category"`
	Threshold  int64       `json:"threshold_seconds"`
	CheckedAt  int64       `json:"checked_at"`
}

// ViewOptions řídí formátování view-modelů.
type ViewOptions struct {
	Threshold time.Duration
	Location  *time.Location
}

func (o ViewOptions) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o ViewOptions) threshold() time.Duration {
	if o.Threshold <= 0 {
		return DefaultLiveThreshold
	}
	return o.Threshold
}

// BuildLiveView připraví view-model z (případně chybějícího) živého záznamu.
func BuildLiveView(deviceID string, r LiveReading, hasData bool, now time.Time, opts ViewOptions) LiveView {
	v := LiveView{
		DeviceID:  deviceID,
		HasData:   hasData,
		Reading:   r,
		Threshold: int64(opts.threshold().Seconds()),
		CheckedAt: now.Unix(),
	}

	aqi := roundedOrZero(r.AQI)
	v.Display = LiveDisplay{
		AQI:         formatInt(aqi),
		PM1:         formatInt(roundedOrZero(r.PM1)),
		PM25:        formatInt(roundedOrZero(r.PM25)),
		PM10:        formatInt(roundedOrZero(r.PM10)),
		Temp:        formatTemp(r.Temp),
		Pressure:    formatInt(roundedOrZero(r.Pressure)),
		COStatus:    Placeholder,
		LastUpdated: Placeholder,
	}
	if r.COStatus != nil {
		v.Display.COStatus = *r.COStatus
	}
	if r.Timestamp != nil && *r.Timestamp != 0 {
		v.Display.LastUpdated = time.Unix(*r.Timestamp, 0).In(opts.location()).Format(DisplayTimeLayout)
	}

	v.Category = AQICategory(aqi)
	v.Live = hasData && IsLive(r, now, opts.threshold())
	if v.Live {
		v.Status, v.Badge, v.Connection = "LIVE", "ONLINE", "Active"
	} else {
		v.Status, v.Badge, v.Connection = "OFFLINE", "OFFLINE", "Disconnected"
	}
	return v
}

func roundedOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return roundHalfUp(*p)
}

func formatInt(f float64) string {
	return strconv.FormatFloat(f, 'f', 0, 64)
}

// formatTemp: nulová nebo chybějící teplota se zobrazí jako "0.0".
func formatTemp(p *float64) string {
	if p == nil || *p == 0 {
		return "0.0"
	}
	return strconv.FormatFloat(*p, 'f', 1, 64)
}
