package scenario

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/evgrid/fleetsim/core/battery"
	"github.com/evgrid/fleetsim/core/components"
	"github.com/evgrid/fleetsim/core/curve"
	"github.com/evgrid/fleetsim/core/events"
	"github.com/evgrid/fleetsim/core/sim"
)

// Scenario is a fully resolved simulation input: the component registry, the
// complete event list and the derived timing.
type Scenario struct {
	Start          time.Time
	Interval       time.Duration
	NIntervals     int
	DischargeLimit float64
	Registry       *components.Registry
	Events         []events.Event
}

// Load reads and resolves a scenario document. CSV references are resolved
// relative to the document's directory.
func Load(path string) (*Scenario, error) {
	k := koanf.New(".")
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("%w: unsupported scenario format %s", sim.ErrConfig, filepath.Ext(path))
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	var doc Document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return Build(&doc, filepath.Dir(path))
}

// Build resolves a raw document into a Scenario.
func Build(doc *Document, baseDir string) (*Scenario, error) {
	start, err := parseTime(doc.Scenario.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: scenario start_time: %v", sim.ErrConfig, err)
	}
	if doc.Scenario.IntervalMinutes <= 0 {
		return nil, fmt.Errorf("%w: scenario interval must be positive minutes", sim.ErrConfig)
	}
	interval := time.Duration(doc.Scenario.IntervalMinutes) * time.Minute

	n, err := deriveIntervals(doc.Scenario, start, interval)
	if err != nil {
		return nil, err
	}

	comps := doc.Components
	if comps == nil {
		comps = doc.Constants
	}
	if comps == nil {
		return nil, fmt.Errorf("%w: scenario has no components section", sim.ErrConfig)
	}

	reg, err := buildRegistry(comps, doc.Scenario)
	if err != nil {
		return nil, err
	}
	evs, err := buildEvents(&doc.Events, baseDir, start)
	if err != nil {
		return nil, err
	}

	return &Scenario{
		Start:          start,
		Interval:       interval,
		NIntervals:     n,
		DischargeLimit: doc.Scenario.DischargeLimit,
		Registry:       reg,
		Events:         evs,
	}, nil
}

// deriveIntervals resolves the run length: exactly one of n_intervals and
// stop_time must be given.
func deriveIntervals(s ScenarioSection, start time.Time, interval time.Duration) (int, error) {
	hasN := s.NIntervals != nil
	hasStop := s.StopTime != ""
	switch {
	case hasN && hasStop:
		return 0, fmt.Errorf("%w: scenario sets both n_intervals and stop_time", sim.ErrConfig)
	case hasN:
		if *s.NIntervals <= 0 {
			return 0, fmt.Errorf("%w: n_intervals must be positive", sim.ErrConfig)
		}
		return *s.NIntervals, nil
	case hasStop:
		stop, err := parseTime(s.StopTime)
		if err != nil {
			return 0, fmt.Errorf("%w: scenario stop_time: %v", sim.ErrConfig, err)
		}
		if !stop.After(start) {
			return 0, fmt.Errorf("%w: stop_time must be after start_time", sim.ErrConfig)
		}
		return int(stop.Sub(start) / interval), nil
	default:
		return 0, fmt.Errorf("%w: scenario needs n_intervals or stop_time", sim.ErrConfig)
	}
}

func buildRegistry(comps *ComponentSection, s ScenarioSection) (*components.Registry, error) {
	reg := components.NewRegistry()

	windows, err := parseStandingWindows(s.CoreStandingTimes)
	if err != nil {
		return nil, err
	}

	for id, def := range comps.GridConnectors {
		gc := &components.GridConnector{
			ID:                  id,
			MaxPowerKW:          def.MaxPowerKW,
			CurMaxPowerKW:       def.MaxPowerKW,
			CurrentLoads:        make(map[string]float64),
			VoltageLevel:        def.VoltageLevel,
			Operator:            def.GridOperator,
			CoreStandingWindows: windows,
		}
		if def.CurMaxPowerKW != nil {
			gc.CurMaxPowerKW = *def.CurMaxPowerKW
		}
		if def.Cost != nil {
			price, err := buildPrice(def.Cost)
			if err != nil {
				return nil, fmt.Errorf("connector %s: %w", id, err)
			}
			gc.Price = price
		}
		if def.Target != nil {
			t := *def.Target
			gc.Target = &t
		}
		if def.Window != nil {
			w := *def.Window
			gc.Window = &w
		}
		if def.Forecast != nil {
			fc, err := buildForecast(def.Forecast)
			if err != nil {
				return nil, fmt.Errorf("connector %s: %w", id, err)
			}
			gc.Forecast = fc
		}
		if gc.Price.Empty() && gc.Target == nil {
			return nil, fmt.Errorf("%w: connector %s has neither cost model nor schedule target", sim.ErrConfig, id)
		}
		reg.GridConnectors[id] = gc
	}

	for id, def := range comps.ChargingStations {
		if _, ok := reg.GridConnectors[def.Parent]; !ok {
			return nil, fmt.Errorf("%w: station %s references unknown connector %s", sim.ErrConfig, id, def.Parent)
		}
		reg.ChargingStations[id] = &components.ChargingStation{
			ID:         id,
			MaxPowerKW: def.MaxPowerKW,
			MinPowerKW: def.MinPowerKW,
			ParentGC:   def.Parent,
		}
	}

	for name, def := range comps.VehicleTypes {
		vt, err := buildVehicleType(name, def)
		if err != nil {
			return nil, err
		}
		reg.VehicleTypes[name] = vt
	}

	for id, def := range comps.Vehicles {
		vt, ok := reg.VehicleTypes[def.VehicleType]
		if !ok {
			return nil, fmt.Errorf("%w: vehicle %s references unknown vehicle type %q", sim.ErrConfig, id, def.VehicleType)
		}
		b, err := battery.New(vt.CapacityKWh, def.SoC, vt.ChargeCurve, vt.DischargeCurve, vt.Efficiency, vt.DischargeFactor)
		if err != nil {
			return nil, fmt.Errorf("%w: vehicle %s: %v", sim.ErrConfig, id, err)
		}
		b.Loss = vt.Loss
		v := &components.Vehicle{
			ID:               id,
			Type:             vt,
			Battery:          b,
			ConnectedStation: def.ConnectedStation,
			DesiredSoC:       def.DesiredSoC,
		}
		if def.EstimatedArrival != "" {
			t, err := parseTime(def.EstimatedArrival)
			if err != nil {
				return nil, fmt.Errorf("%w: vehicle %s arrival: %v", sim.ErrConfig, id, err)
			}
			v.EstimatedArrival = &t
		}
		if def.EstimatedDeparture != "" {
			t, err := parseTime(def.EstimatedDeparture)
			if err != nil {
				return nil, fmt.Errorf("%w: vehicle %s departure: %v", sim.ErrConfig, id, err)
			}
			v.EstimatedDeparture = &t
		}
		reg.Vehicles[id] = v
	}

	for id, def := range comps.Batteries {
		if _, ok := reg.GridConnectors[def.Parent]; !ok {
			return nil, fmt.Errorf("%w: battery %s references unknown connector %s", sim.ErrConfig, id, def.Parent)
		}
		capacity := def.CapacityKWh
		if capacity <= 0 {
			capacity = battery.UnboundedCapacityKWh
		}
		charge, err := buildCurve(def.ChargingCurve)
		if err != nil {
			return nil, fmt.Errorf("%w: battery %s charging curve: %v", sim.ErrConfig, id, err)
		}
		var discharge *curve.Curve
		if len(def.DischargingCurve) > 0 {
			discharge, err = buildCurve(def.DischargingCurve)
			if err != nil {
				return nil, fmt.Errorf("%w: battery %s discharging curve: %v", sim.ErrConfig, id, err)
			}
		}
		eff := def.Efficiency
		if eff == 0 {
			eff = 0.95
		}
		b, err := battery.New(capacity, def.SoC, charge, discharge, eff, 1)
		if err != nil {
			return nil, fmt.Errorf("%w: battery %s: %v", sim.ErrConfig, id, err)
		}
		if def.LossRate != nil {
			b.Loss = &battery.LossRate{
				RelativePct:      def.LossRate.RelativePct,
				FixedRelativePct: def.LossRate.FixedRelativePct,
				FixedAbsoluteKWh: def.LossRate.FixedAbsoluteKWh,
			}
		}
		reg.Batteries[id] = &components.StationaryBattery{
			ID:         id,
			Battery:    b,
			ParentGC:   def.Parent,
			MinPowerKW: def.MinPowerKW,
		}
	}

	for id, def := range comps.Photovoltaics {
		if _, ok := reg.GridConnectors[def.Parent]; !ok {
			return nil, fmt.Errorf("%w: photovoltaic %s references unknown connector %s", sim.ErrConfig, id, def.Parent)
		}
		reg.Photovoltaics[id] = &components.Photovoltaic{
			ID:             id,
			ParentGC:       def.Parent,
			NominalPowerKW: def.NominalPowerKW,
		}
	}

	return reg, nil
}

func buildVehicleType(name string, def VehicleTypeDef) (*components.VehicleType, error) {
	charge, err := buildCurve(def.ChargingCurve)
	if err != nil {
		return nil, fmt.Errorf("%w: vehicle type %s charging curve: %v", sim.ErrConfig, name, err)
	}
	var discharge *curve.Curve
	if len(def.DischargingCurve) > 0 {
		discharge, err = buildCurve(def.DischargingCurve)
		if err != nil {
			return nil, fmt.Errorf("%w: vehicle type %s discharging curve: %v", sim.ErrConfig, name, err)
		}
	}
	eff := def.Efficiency
	if eff == 0 {
		eff = 0.95
	}
	factor := def.V2GPowerFactor
	if factor == 0 {
		factor = 0.5
	}
	if discharge == nil {
		discharge = charge.Scaled(factor)
	}
	vt := &components.VehicleType{
		Name:            name,
		CapacityKWh:     def.CapacityKWh,
		ChargeCurve:     charge,
		DischargeCurve:  discharge,
		MinPowerKW:      def.MinPowerKW,
		Efficiency:      eff,
		V2G:             def.V2G,
		DischargeFactor: factor,
	}
	if def.CapacityKWh <= 0 {
		return nil, fmt.Errorf("%w: vehicle type %s capacity must be positive", sim.ErrConfig, name)
	}
	if def.LossRate != nil {
		vt.Loss = &battery.LossRate{
			RelativePct:      def.LossRate.RelativePct,
			FixedRelativePct: def.LossRate.FixedRelativePct,
			FixedAbsoluteKWh: def.LossRate.FixedAbsoluteKWh,
		}
	}
	return vt, nil
}

func buildCurve(points [][]float64) (*curve.Curve, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("curve has no points")
	}
	pts := make([]curve.Point, 0, len(points))
	for i, p := range points {
		if len(p) != 2 {
			return nil, fmt.Errorf("curve point %d must be [soc, power]", i)
		}
		pts = append(pts, curve.Point{SoC: p[0], PowerKW: p[1]})
	}
	return curve.New(pts)
}

func buildPrice(def *CostDef) (components.PriceModel, error) {
	switch def.Type {
	case "fixed":
		v := def.Value
		return components.PriceModel{FixedPerKWh: &v}, nil
	case "polynomial":
		if len(def.Coeff) == 0 {
			return components.PriceModel{}, fmt.Errorf("%w: polynomial cost needs coefficients", sim.ErrConfig)
		}
		return components.PriceModel{Polynomial: append([]float64(nil), def.Coeff...)}, nil
	default:
		return components.PriceModel{}, fmt.Errorf("%w: unknown cost type %q", sim.ErrConfig, def.Type)
	}
}

func buildForecast(def *ForecastDef) (*components.LoadForecast, error) {
	if len(def.Values) != 7 {
		return nil, fmt.Errorf("%w: forecast needs seven weekday rows, got %d", sim.ErrConfig, len(def.Values))
	}
	fc := &components.LoadForecast{SlotDuration: time.Duration(def.SlotDurationMinutes) * time.Minute}
	if fc.SlotDuration <= 0 {
		return nil, fmt.Errorf("%w: forecast slot duration must be positive", sim.ErrConfig)
	}
	for i, row := range def.Values {
		fc.Values[i] = append([]float64(nil), row...)
	}
	return fc, nil
}

func parseStandingWindows(specs []string) ([]components.StandingWindow, error) {
	var out []components.StandingWindow
	for _, s := range specs {
		parts := strings.Split(s, "-")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: core standing time %q must be HH:MM-HH:MM", sim.ErrConfig, s)
		}
		start, err := parseMinute(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%w: core standing time %q: %v", sim.ErrConfig, s, err)
		}
		end, err := parseMinute(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: core standing time %q: %v", sim.ErrConfig, s, err)
		}
		out = append(out, components.StandingWindow{StartMinute: start, EndMinute: end})
	}
	return out, nil
}

func parseMinute(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// parseTime accepts RFC3339 and the date-space-time form used by older
// scenario files.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}
