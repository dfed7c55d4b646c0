package chart

// Options kopírují strukturu voleb Chart.js (včetně pluginu zoom),
// aby je stránka mohla předat knihovně beze změny.
type Options struct {
	Responsive          bool        `json:"responsive"`
	MaintainAspectRatio bool        `json:"maintainAspectRatio"`
	Interaction         Interaction `json:"interaction"`
	Plugins             Plugins     `json:"plugins"`
	Scales              Scales      `json:"scales"`
}

type Interaction struct {
	Mode      string `json:"mode"`
	Intersect bool   `json:"intersect"`
}

type Plugins struct {
	Title  Title  `json:"title"`
	Legend Legend `json:"legend"`
	Zoom   Zoom   `json:"zoom"`
}

type Title struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
	Color   string `json:"color"`
}

type Legend struct {
	Labels struct {
		Color string `json:"color"`
	} `json:"labels"`
}

type Toggle struct {
	Enabled bool `json:"enabled"`
}

type Zoom struct {
	Pan struct {
		Enabled bool   `json:"enabled"`
		Mode    string `json:"mode"`
	} `json:"pan"`
	Zoom struct {
		Wheel Toggle `json:"wheel"`
		Pinch Toggle `json:"pinch"`
		Mode  string `json:"mode"`
	} `json:"zoom"`
}

type Scales struct {
	X Axis `json:"x"`
	Y Axis `json:"y"`
}

type Axis struct {
	BeginAtZero  bool     `json:"beginAtZero,omitempty"`
	SuggestedMax *float64 `json:"suggestedMax,omitempty"`
	Ticks        struct {
		Display *bool  `json:"display,omitempty"`
		Color   string `json:"color,omitempty"`
	} `json:"ticks"`
	Grid struct {
		Display *bool  `json:"display,omitempty"`
		Color   string `json:"color,omitempty"`
	} `json:"grid"`
}

func newOptions(title string, yMax float64) Options {
	o := Options{
		Responsive:  true,
		Interaction: Interaction{Mode: "index", Intersect: false},
	}
	o.Plugins.Title = Title{Display: true, Text: title, Color: "white"}
	o.Plugins.Legend.Labels.Color = "white"

	// posun a zoom jen po ose X
	o.Plugins.Zoom.Pan.Enabled = true
	o.Plugins.Zoom.Pan.Mode = "x"
	o.Plugins.Zoom.Zoom.Wheel.Enabled = true
	o.Plugins.Zoom.Zoom.Pinch.Enabled = true
	o.Plugins.Zoom.Zoom.Mode = "x"

	hidden := false
	o.Scales.X.Ticks.Color = "white"
	o.Scales.X.Grid.Display = &hidden

	o.Scales.Y.BeginAtZero = true
	o.Scales.Y.SuggestedMax = &yMax
	o.Scales.Y.Ticks.Color = "white"
	o.Scales.Y.Grid.Color = "rgba(255,255,255,0.08)"
	return o
}
