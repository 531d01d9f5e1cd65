package strategy

import (
	"github.com/evgrid/fleetsim/core/components"
	"github.com/evgrid/fleetsim/core/logger"
	"github.com/evgrid/fleetsim/core/sim"
)

// Balanced charges each vehicle at the minimum constant power that still
// reaches its desired soc by the estimated departure, found by feasibility
// search on a cloned battery. The converged power is cached on the station
// and reused until the vehicle's target or deadline moves.
type Balanced struct {
	cfg sim.Config
	log logger.Logger
}

func (b *Balanced) Name() string { return "balanced" }

func (b *Balanced) Step(w *sim.Stepper) (map[string]float64, error) {
	cmds := make(map[string]float64)
	occupied := make(map[string]bool)
	for _, v := range connectedVehicles(w) {
		cs, gc, err := stationFor(w, v)
		if err != nil {
			return nil, err
		}
		occupied[cs.ID] = true
		avail := headroom(w, gc)
		if priceAt(gc) <= w.Cfg.PriceThreshold {
			cs.CachedPowerKW = nil
			p := chargeVehicle(w, v, cs, gc, avail, 1)
			cmds[cs.ID] += p
			continue
		}
		if v.Battery.SoC >= v.DesiredSoC-w.Cfg.EPS {
			cs.CachedPowerKW = nil
			continue
		}
		var power float64
		if cacheValid(cs, v) {
			power = *cs.CachedPowerKW
		} else {
			standing := standingTime(w, v)
			maxP := cs.MaxPowerKW
			if cm := v.Battery.ChargeCurve.MaxPower(); cm < maxP {
				maxP = cm
			}
			minP := cs.MinPowerKW
			if v.Type != nil && v.Type.MinPowerKW > minP {
				minP = v.Type.MinPowerKW
			}
			power = minimumViablePower(v.Battery, standing, minP, maxP, v.DesiredSoC, w.Cfg.EPS)
			cached := power
			cs.CachedPowerKW = &cached
			cs.CachedTargetSoC = v.DesiredSoC
			cs.CachedDeparture = v.EstimatedDeparture
		}
		// Clip to the instantaneous headroom; when the connector is tight
		// the vehicle simply charges slower this interval, no new search.
		if power > avail {
			power = avail
		}
		p := chargeVehicle(w, v, cs, gc, power, v.DesiredSoC)
		cmds[cs.ID] += p
	}
	// Idle stations drop their cached allocation so the next occupant
	// triggers a fresh search.
	for id, cs := range w.World.ChargingStations {
		if !occupied[id] {
			cs.CachedPowerKW = nil
		}
	}
	return cmds, nil
}

// cacheValid reports whether the station's cached power still matches the
// vehicle's target and deadline. An arrival update can move either while
// the vehicle stays connected.
func cacheValid(cs *components.ChargingStation, v *components.Vehicle) bool {
	if cs.CachedPowerKW == nil {
		return false
	}
	if cs.CachedTargetSoC != v.DesiredSoC {
		return false
	}
	switch {
	case cs.CachedDeparture == nil && v.EstimatedDeparture == nil:
		return true
	case cs.CachedDeparture == nil || v.EstimatedDeparture == nil:
		return false
	default:
		return cs.CachedDeparture.Equal(*v.EstimatedDeparture)
	}
}
