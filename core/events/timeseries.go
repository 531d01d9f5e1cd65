package events

import (
	"time"

	"github.com/evgrid/fleetsim/core/components"
)

func fixedPrice(v float64) *components.PriceModel {
	return &components.PriceModel{FixedPerKWh: &v}
}

// Series is one named numeric column of a time-series table, one value per
// fixed-duration step.
type Series struct {
	Name            string
	GridConnectorID string
	Start           time.Time
	Step            time.Duration
	Values          []float64
}

// FixedLoadEvents converts the series into one FixedLoad event per step. The
// whole table is known once loaded, so every event's signal time is the
// series start.
func (s Series) FixedLoadEvents() []Event {
	out := make([]Event, len(s.Values))
	for i, v := range s.Values {
		out[i] = FixedLoad{
			Base:            Base{Signal: s.Start, Start: s.Start.Add(time.Duration(i) * s.Step)},
			Name:            s.Name,
			GridConnectorID: s.GridConnectorID,
			ValueKW:         v,
		}
	}
	return out
}

// LocalGenerationEvents converts the series into LocalGeneration events.
func (s Series) LocalGenerationEvents() []Event {
	out := make([]Event, len(s.Values))
	for i, v := range s.Values {
		out[i] = LocalGeneration{
			Base:            Base{Signal: s.Start, Start: s.Start.Add(time.Duration(i) * s.Step)},
			Name:            s.Name,
			GridConnectorID: s.GridConnectorID,
			ValueKW:         v,
		}
	}
	return out
}

// PriceEvents converts the series into operator signals carrying a fixed
// price per step. signalLead is how far in advance each price becomes known.
func (s Series) PriceEvents(signalLead time.Duration) []Event {
	out := make([]Event, len(s.Values))
	for i, v := range s.Values {
		price := v
		start := s.Start.Add(time.Duration(i) * s.Step)
		out[i] = GridOperatorSignal{
			Base:            Base{Signal: start.Add(-signalLead), Start: start},
			GridConnectorID: s.GridConnectorID,
			Cost:            fixedPrice(price),
		}
	}
	return out
}

// ScheduleEvents converts the series into operator signals carrying a power
// schedule target per step.
func (s Series) ScheduleEvents(signalLead time.Duration) []Event {
	out := make([]Event, len(s.Values))
	for i, v := range s.Values {
		target := v
		start := s.Start.Add(time.Duration(i) * s.Step)
		out[i] = GridOperatorSignal{
			Base:            Base{Signal: start.Add(-signalLead), Start: start},
			GridConnectorID: s.GridConnectorID,
			Target:          &target,
		}
	}
	return out
}
