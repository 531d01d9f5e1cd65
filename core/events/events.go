package events

import (
	"time"

	"github.com/evgrid/fleetsim/core/components"
)

// Event is a timestamped fact applied to the world state. SignalTime is when
// the fact becomes known, StartTime when it takes effect; the gap between
// the two is the forecast horizon available to strategies.
type Event interface {
	StartTime() time.Time
	SignalTime() time.Time
}

// Base carries the two timestamps shared by all events.
type Base struct {
	Signal time.Time `json:"signal_time"`
	Start  time.Time `json:"start_time"`
}

func (b Base) StartTime() time.Time  { return b.Start }
func (b Base) SignalTime() time.Time { return b.Signal }

// FixedLoad sets a named external consumption entry on a grid connector.
type FixedLoad struct {
	Base
	Name            string  `json:"name"`
	GridConnectorID string  `json:"grid_connector_id"`
	ValueKW         float64 `json:"value"`
}

// LocalGeneration sets a named feed-in entry on a grid connector. The value
// is positive in the event and stored as a negative load.
type LocalGeneration struct {
	Base
	Name            string  `json:"name"`
	GridConnectorID string  `json:"grid_connector_id"`
	ValueKW         float64 `json:"value"`
}

// GridOperatorSignal updates price, schedule and capacity information on a
// grid connector. Nil fields leave the current value untouched.
type GridOperatorSignal struct {
	Base
	GridConnectorID string                  `json:"grid_connector_id"`
	Cost            *components.PriceModel  `json:"cost"`
	Target          *float64                `json:"target"`
	Window          *bool                   `json:"window"`
	MaxPowerKW      *float64                `json:"max_power"`
	// CapacityKW is an older name for MaxPowerKW still emitted by some
	// operators.
	CapacityKW *float64 `json:"capacity"`
}

// VehicleEventKind distinguishes arrivals from departures.
type VehicleEventKind string

const (
	Arrival   VehicleEventKind = "arrival"
	Departure VehicleEventKind = "departure"
)

// VehicleUpdate holds the optional field updates carried by a vehicle event.
type VehicleUpdate struct {
	DesiredSoC         *float64   `json:"desired_soc"`
	ConnectedStation   *string    `json:"connected_charging_station"`
	EstimatedArrival   *time.Time `json:"estimated_time_of_arrival"`
	EstimatedDeparture *time.Time `json:"estimated_time_of_departure"`
}

// VehicleEvent is an arrival or departure of a fleet vehicle. SoCDelta is
// the (usually negative) soc change accumulated since the last departure.
type VehicleEvent struct {
	Base
	VehicleID string           `json:"vehicle_id"`
	Kind      VehicleEventKind `json:"event_type"`
	Update    VehicleUpdate    `json:"update"`
	SoCDelta  float64          `json:"soc_delta"`
}
