package scenario

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/evgrid/fleetsim/core/events"
	"github.com/evgrid/fleetsim/core/sim"
)

// buildEvents resolves the event section into a flat, unordered event list;
// the stepper's queue takes care of ordering.
func buildEvents(sec *EventSection, baseDir string, scenarioStart time.Time) ([]events.Event, error) {
	var out []events.Event

	fixed := sec.FixedLoad
	if len(fixed) == 0 {
		fixed = sec.ExternalLoad
	}
	for name, ref := range fixed {
		series, err := resolveSeries(name, ref, baseDir)
		if err != nil {
			return nil, err
		}
		out = append(out, series.FixedLoadEvents()...)
	}

	generation := sec.LocalGeneration
	if len(generation) == 0 {
		generation = sec.EnergyFeedIn
	}
	for name, ref := range generation {
		series, err := resolveSeries(name, ref, baseDir)
		if err != nil {
			return nil, err
		}
		out = append(out, series.LocalGenerationEvents()...)
	}

	for i, def := range sec.GridOperatorSignals {
		evs, err := buildOperatorSignal(i, def, baseDir, scenarioStart)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}

	for i, def := range sec.VehicleEvents {
		ev, err := buildVehicleEvent(i, def)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}

	return out, nil
}

func resolveSeries(name string, ref SeriesRef, baseDir string) (events.Series, error) {
	start, err := parseTime(ref.StartTime)
	if err != nil {
		return events.Series{}, fmt.Errorf("%w: series %s start_time: %v", sim.ErrConfig, name, err)
	}
	if ref.StepDurationS <= 0 {
		return events.Series{}, fmt.Errorf("%w: series %s needs a positive step_duration_s", sim.ErrConfig, name)
	}
	values, err := readColumn(filepath.Join(baseDir, ref.CSVFile), ref.Column)
	if err != nil {
		return events.Series{}, err
	}
	return events.Series{
		Name:            name,
		GridConnectorID: ref.GridConnectorID,
		Start:           start,
		Step:            time.Duration(ref.StepDurationS) * time.Second,
		Values:          values,
	}, nil
}

func buildOperatorSignal(i int, def OperatorSignalDef, baseDir string, scenarioStart time.Time) ([]events.Event, error) {
	if def.CSVFile != "" {
		start := scenarioStart
		if def.StartTime != "" {
			var err error
			start, err = parseTime(def.StartTime)
			if err != nil {
				return nil, fmt.Errorf("%w: operator signal %d start_time: %v", sim.ErrConfig, i, err)
			}
		}
		if def.StepDurationS <= 0 {
			return nil, fmt.Errorf("%w: operator signal %d needs a positive step_duration_s", sim.ErrConfig, i)
		}
		values, err := readColumn(filepath.Join(baseDir, def.CSVFile), def.Column)
		if err != nil {
			return nil, err
		}
		series := events.Series{
			Name:            def.Column,
			GridConnectorID: def.GridConnectorID,
			Start:           start,
			Step:            time.Duration(def.StepDurationS) * time.Second,
			Values:          values,
		}
		lead := time.Duration(def.SignalLeadH * float64(time.Hour))
		switch def.Kind {
		case "price", "":
			return series.PriceEvents(lead), nil
		case "schedule":
			return series.ScheduleEvents(lead), nil
		default:
			return nil, fmt.Errorf("%w: operator signal %d has unknown kind %q", sim.ErrConfig, i, def.Kind)
		}
	}

	start, err := parseTime(def.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: operator signal %d start_time: %v", sim.ErrConfig, i, err)
	}
	signal := start
	if def.SignalTime != "" {
		signal, err = parseTime(def.SignalTime)
		if err != nil {
			return nil, fmt.Errorf("%w: operator signal %d signal_time: %v", sim.ErrConfig, i, err)
		}
	}
	ev := events.GridOperatorSignal{
		Base:            events.Base{Signal: signal, Start: start},
		GridConnectorID: def.GridConnectorID,
		Target:          def.Target,
		Window:          def.Window,
		MaxPowerKW:      def.MaxPowerKW,
	}
	if def.Cost != nil {
		price, err := buildPrice(def.Cost)
		if err != nil {
			return nil, fmt.Errorf("operator signal %d: %w", i, err)
		}
		ev.Cost = &price
	}
	return []events.Event{ev}, nil
}

func buildVehicleEvent(i int, def VehicleEventDef) (events.Event, error) {
	start, err := parseTime(def.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: vehicle event %d start_time: %v", sim.ErrConfig, i, err)
	}
	signal := start
	if def.SignalTime != "" {
		signal, err = parseTime(def.SignalTime)
		if err != nil {
			return nil, fmt.Errorf("%w: vehicle event %d signal_time: %v", sim.ErrConfig, i, err)
		}
	}
	var kind events.VehicleEventKind
	switch def.EventType {
	case "arrival":
		kind = events.Arrival
	case "departure":
		kind = events.Departure
	default:
		return nil, fmt.Errorf("%w: vehicle event %d has unknown type %q", sim.ErrConfig, i, def.EventType)
	}
	update := events.VehicleUpdate{
		DesiredSoC:       def.Update.DesiredSoC,
		ConnectedStation: def.Update.ConnectedStation,
	}
	if def.Update.EstimatedArrival != "" {
		t, err := parseTime(def.Update.EstimatedArrival)
		if err != nil {
			return nil, fmt.Errorf("%w: vehicle event %d arrival estimate: %v", sim.ErrConfig, i, err)
		}
		update.EstimatedArrival = &t
	}
	if def.Update.EstimatedDeparture != "" {
		t, err := parseTime(def.Update.EstimatedDeparture)
		if err != nil {
			return nil, fmt.Errorf("%w: vehicle event %d departure estimate: %v", sim.ErrConfig, i, err)
		}
		update.EstimatedDeparture = &t
	}
	return events.VehicleEvent{
		Base:      events.Base{Signal: signal, Start: start},
		VehicleID: def.VehicleID,
		Kind:      kind,
		Update:    update,
		SoCDelta:  def.Update.SoCDelta,
	}, nil
}
