package components

import (
	"math"
	"time"
)

// PriceModel gives the energy price at a grid connector. Either a fixed
// price per kWh or a polynomial in the drawn power is set; an empty model
// means the connector must carry a schedule target instead.
type PriceModel struct {
	FixedPerKWh *float64  `json:"fixed"`
	Polynomial  []float64 `json:"polynomial"`
}

// Empty reports whether no cost information is present.
func (p PriceModel) Empty() bool {
	return p.FixedPerKWh == nil && len(p.Polynomial) == 0
}

// PricePerKWh evaluates the model at the given total power draw.
func (p PriceModel) PricePerKWh(powerKW float64) float64 {
	if p.FixedPerKWh != nil {
		return *p.FixedPerKWh
	}
	price := 0.0
	x := 1.0
	for _, c := range p.Polynomial {
		price += c * x
		x *= powerKW
	}
	return price
}

// LoadForecast is a per-weekday, per-timeslot table of average fixed load,
// used by look-ahead strategies once the event queue runs out of facts.
type LoadForecast struct {
	SlotDuration time.Duration `json:"-"`
	// Values holds one row per weekday (time.Weekday order) with one
	// average load per timeslot.
	Values [7][]float64 `json:"values"`
}

// At returns the forecast load for the slot containing t, or 0 when the
// table has no row for that weekday.
func (f *LoadForecast) At(t time.Time) float64 {
	row := f.Values[t.Weekday()]
	if len(row) == 0 || f.SlotDuration <= 0 {
		return 0
	}
	slot := int(time.Duration(t.Hour())*time.Hour+time.Duration(t.Minute())*time.Minute) / int(f.SlotDuration)
	if slot >= len(row) {
		slot = len(row) - 1
	}
	return row[slot]
}

// GridConnector is the shared point of connection to the public grid. Loads
// of stations, batteries and external consumers are tracked by source id;
// negative entries are feed-in.
type GridConnector struct {
	ID         string
	MaxPowerKW float64
	// CurMaxPowerKW is the time-varying capacity set by operator signals,
	// never above MaxPowerKW when that is set.
	CurMaxPowerKW float64
	CurrentLoads  map[string]float64
	Price         PriceModel
	// Target is an externally supplied power schedule value; Window flags
	// tariff-favorable periods. Both are updated by operator signals.
	Target *float64
	Window *bool
	// CoreStandingWindows are recurring daily periods during which the
	// fleet is guaranteed present, in minutes from midnight.
	CoreStandingWindows []StandingWindow
	Forecast            *LoadForecast
	VoltageLevel        string
	Operator            string
}

// StandingWindow is a recurring daily [start,end) period in minutes from
// midnight.
type StandingWindow struct {
	StartMinute int `json:"start"`
	EndMinute   int `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w StandingWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= w.StartMinute && m < w.EndMinute
}

// TotalLoad sums all current loads except the named sources.
func (gc *GridConnector) TotalLoad(exclude map[string]bool) float64 {
	total := 0.0
	for src, p := range gc.CurrentLoads {
		if exclude[src] {
			continue
		}
		total += p
	}
	return total
}

// Headroom returns the remaining draw capacity, never negative.
func (gc *GridConnector) Headroom() float64 {
	h := gc.CurMaxPowerKW - gc.TotalLoad(nil)
	if h < 0 {
		return 0
	}
	return h
}

// WithinLimit reports whether the aggregate load, excluding the given local
// generation sources, respects the current capacity within eps.
func (gc *GridConnector) WithinLimit(excludeGeneration map[string]bool, eps float64) bool {
	return math.Abs(gc.TotalLoad(excludeGeneration)) <= gc.CurMaxPowerKW+eps
}

// Clone returns a deep copy.
func (gc *GridConnector) Clone() *GridConnector {
	cp := *gc
	cp.CurrentLoads = make(map[string]float64, len(gc.CurrentLoads))
	for k, v := range gc.CurrentLoads {
		cp.CurrentLoads[k] = v
	}
	if gc.Target != nil {
		t := *gc.Target
		cp.Target = &t
	}
	if gc.Window != nil {
		w := *gc.Window
		cp.Window = &w
	}
	if gc.Forecast != nil {
		f := *gc.Forecast
		cp.Forecast = &f
	}
	cp.CoreStandingWindows = append([]StandingWindow(nil), gc.CoreStandingWindows...)
	return &cp
}
