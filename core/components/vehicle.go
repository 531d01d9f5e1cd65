package components

import (
	"time"

	"github.com/evgrid/fleetsim/core/battery"
	"github.com/evgrid/fleetsim/core/curve"
)

// VehicleType is an immutable template shared by reference across many
// vehicles.
type VehicleType struct {
	Name            string
	CapacityKWh     float64
	ChargeCurve     *curve.Curve
	DischargeCurve  *curve.Curve
	MinPowerKW      float64
	Efficiency      float64
	V2G             bool
	DischargeFactor float64
	Loss            *battery.LossRate
}

// Vehicle is a fleet member with an owned battery. It is created at scenario
// load and only ever connected or disconnected afterwards.
type Vehicle struct {
	ID      string
	Type    *VehicleType
	Battery *battery.Battery
	// ConnectedStation is the id of the charging station the vehicle is
	// plugged into, empty when away.
	ConnectedStation   string
	DesiredSoC         float64
	EstimatedArrival   *time.Time
	EstimatedDeparture *time.Time
}

// Connected reports whether the vehicle is plugged in.
func (v *Vehicle) Connected() bool { return v.ConnectedStation != "" }

// EnergyDeficitKWh returns the energy still missing to reach the desired
// soc, never negative.
func (v *Vehicle) EnergyDeficitKWh() float64 {
	d := (v.DesiredSoC - v.Battery.SoC) * v.Battery.CapacityKWh
	if d < 0 {
		return 0
	}
	return d
}

// Clone returns a deep copy. The vehicle type stays shared.
func (v *Vehicle) Clone() *Vehicle {
	cp := *v
	cp.Battery = v.Battery.Clone()
	if v.EstimatedArrival != nil {
		t := *v.EstimatedArrival
		cp.EstimatedArrival = &t
	}
	if v.EstimatedDeparture != nil {
		t := *v.EstimatedDeparture
		cp.EstimatedDeparture = &t
	}
	return &cp
}
