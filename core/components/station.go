package components

import "time"

// ChargingStation connects one vehicle at a time to a grid connector.
// CurrentPowerKW is reset at the start of every step and rebuilt by the
// active strategy.
type ChargingStation struct {
	ID             string
	MaxPowerKW     float64
	MinPowerKW     float64
	ParentGC       string
	CurrentPowerKW float64
	// CachedPowerKW holds a balanced-style strategy's converged power for
	// reuse while the allocation stays valid. CachedTargetSoC and
	// CachedDeparture record the vehicle state it was converged against; a
	// mismatch invalidates the cache.
	CachedPowerKW   *float64
	CachedTargetSoC float64
	CachedDeparture *time.Time
}

// Clone returns a deep copy.
func (cs *ChargingStation) Clone() *ChargingStation {
	cp := *cs
	if cs.CachedPowerKW != nil {
		p := *cs.CachedPowerKW
		cp.CachedPowerKW = &p
	}
	if cs.CachedDeparture != nil {
		d := *cs.CachedDeparture
		cp.CachedDeparture = &d
	}
	return &cp
}
