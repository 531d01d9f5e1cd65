package components

import "github.com/evgrid/fleetsim/core/battery"

// StationaryBattery is a grid-attached buffer battery with no departure
// deadline.
type StationaryBattery struct {
	ID       string
	Battery  *battery.Battery
	ParentGC string
	// MinPowerKW is the smallest useful charge power; allocations below it
	// are rounded to zero.
	MinPowerKW float64
}

// Clone returns a deep copy.
func (sb *StationaryBattery) Clone() *StationaryBattery {
	cp := *sb
	cp.Battery = sb.Battery.Clone()
	return &cp
}

// Photovoltaic is a local generation unit feeding into a grid connector. It
// carries no state beyond its nameplate rating; generated power arrives as
// local-generation events.
type Photovoltaic struct {
	ID             string
	ParentGC       string
	NominalPowerKW float64
}

// Clone returns a copy.
func (pv *Photovoltaic) Clone() *Photovoltaic {
	cp := *pv
	return &cp
}
