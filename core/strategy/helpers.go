package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/evgrid/fleetsim/core/battery"
	"github.com/evgrid/fleetsim/core/components"
	"github.com/evgrid/fleetsim/core/sim"
)

// minSearchIterations tightens the feasibility search bound even after a
// candidate already looks safe.
const minSearchIterations = 12

// maxSearchIterations bounds the search on infeasible input.
const maxSearchIterations = 60

// connectedVehicles returns the currently connected vehicles in the
// policy-selected order. The order decides who gets residual power near the
// connector limit, so it must be deterministic.
func connectedVehicles(w *sim.Stepper) []*components.Vehicle {
	var list []*components.Vehicle
	for _, v := range w.World.Vehicles {
		if v.Connected() {
			list = append(list, v)
		}
	}
	switch w.Cfg.VehicleOrder {
	case "departure":
		sort.SliceStable(list, func(i, j int) bool {
			di, dj := list[i].EstimatedDeparture, list[j].EstimatedDeparture
			switch {
			case di == nil && dj == nil:
				return list[i].ID < list[j].ID
			case di == nil:
				return false
			case dj == nil:
				return true
			case di.Equal(*dj):
				return list[i].ID < list[j].ID
			default:
				return di.Before(*dj)
			}
		})
	case "need":
		sort.SliceStable(list, func(i, j int) bool {
			ni, nj := list[i].EnergyDeficitKWh(), list[j].EnergyDeficitKWh()
			if ni == nj {
				return list[i].ID < list[j].ID
			}
			return ni > nj
		})
	default:
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return list
}

// stationFor resolves a connected vehicle's station and connector.
func stationFor(w *sim.Stepper, v *components.Vehicle) (*components.ChargingStation, *components.GridConnector, error) {
	cs, ok := w.World.ChargingStations[v.ConnectedStation]
	if !ok {
		return nil, nil, fmt.Errorf("%w: vehicle %s connected to unknown station %s", sim.ErrConfig, v.ID, v.ConnectedStation)
	}
	gc, ok := w.World.GridConnectors[cs.ParentGC]
	if !ok {
		return nil, nil, fmt.Errorf("%w: station %s has unknown parent connector %s", sim.ErrConfig, cs.ID, cs.ParentGC)
	}
	return cs, gc, nil
}

// headroom returns the remaining draw capacity on the connector, excluding
// local generation from the sum the same way the invariant check does.
func headroom(w *sim.Stepper, gc *components.GridConnector) float64 {
	h := gc.CurMaxPowerKW - gc.TotalLoad(w.GenerationKeys())
	if h < 0 {
		return 0
	}
	return h
}

// priceAt evaluates the connector's price model at its present draw.
func priceAt(gc *components.GridConnector) float64 {
	return gc.Price.PricePerKWh(gc.TotalLoad(nil))
}

// chargeVehicle charges the vehicle for one interval with the given grid
// power ceiling and records the drawn power on the station and connector.
// The ceiling is additionally clipped to the station maximum; powers below
// the station or vehicle minimum collapse to zero.
func chargeVehicle(w *sim.Stepper, v *components.Vehicle, cs *components.ChargingStation, gc *components.GridConnector, ceilingKW, targetSoC float64) float64 {
	if ceilingKW > cs.MaxPowerKW {
		ceilingKW = cs.MaxPowerKW
	}
	min := cs.MinPowerKW
	if v.Type != nil && v.Type.MinPowerKW > min {
		min = v.Type.MinPowerKW
	}
	if ceilingKW < min || ceilingKW <= 0 {
		return 0
	}
	avg, _ := v.Battery.Load(w.Cfg.Interval, ceilingKW, targetSoC)
	if avg <= 0 {
		return 0
	}
	cs.CurrentPowerKW += avg
	gc.CurrentLoads[cs.ID] += avg
	return avg
}

// dischargeVehicle feeds power from a V2G vehicle back through its station,
// recording the injection as negative load.
func dischargeVehicle(w *sim.Stepper, v *components.Vehicle, cs *components.ChargingStation, gc *components.GridConnector, ceilingKW, floorSoC float64) float64 {
	if ceilingKW > cs.MaxPowerKW {
		ceilingKW = cs.MaxPowerKW
	}
	if ceilingKW <= 0 {
		return 0
	}
	avg, _ := v.Battery.Unload(w.Cfg.Interval, ceilingKW, floorSoC)
	if avg <= 0 {
		return 0
	}
	cs.CurrentPowerKW -= avg
	gc.CurrentLoads[cs.ID] -= avg
	return avg
}

// minimumViablePower binary-searches the smallest constant grid power that
// charges the battery to targetSoC within standing. The probe runs on
// clones; the search converges from the safe side and keeps tightening for
// a minimum number of iterations even once a candidate looks safe. On
// infeasible input it returns maxPower after bounded iterations.
func minimumViablePower(b *battery.Battery, standing time.Duration, minPower, maxPower, targetSoC, eps float64) float64 {
	if maxPower <= 0 || standing <= 0 {
		return 0
	}
	if minPower < 0 {
		minPower = 0
	}
	reaches := func(p float64) bool {
		probe := b.Clone()
		probe.Load(standing, p, targetSoC)
		return probe.SoC >= targetSoC-eps
	}
	if reaches(minPower) {
		return minPower
	}
	lo, hi := minPower, maxPower
	for i := 0; i < maxSearchIterations; i++ {
		if hi-lo < eps && i >= minSearchIterations {
			break
		}
		mid := (lo + hi) / 2
		if reaches(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// batterySupport sums the power the connector's stationary batteries could
// deliver this interval. Each battery is probed with the discharge limit as
// the floor, so the estimate matches what dischargeBatteries can actually
// cover.
func batterySupport(w *sim.Stepper, gc *components.GridConnector) float64 {
	total := 0.0
	for _, sb := range w.World.Batteries {
		if sb.ParentGC != gc.ID {
			continue
		}
		total += sb.Battery.AvailablePower(w.Cfg.Interval, w.Cfg.DischargeLimit)
	}
	return total
}

// dischargeBatteries drains stationary batteries on the connector to cover
// neededKW, stopping at the configured discharge limit. Injections are
// recorded as negative loads under the battery ids.
func dischargeBatteries(w *sim.Stepper, gc *components.GridConnector, neededKW float64) float64 {
	covered := 0.0
	ids := batteryIDs(w, gc)
	for _, id := range ids {
		if neededKW-covered <= 0 {
			break
		}
		sb := w.World.Batteries[id]
		p, _ := sb.Battery.Unload(w.Cfg.Interval, neededKW-covered, w.Cfg.DischargeLimit)
		if p <= 0 {
			continue
		}
		gc.CurrentLoads[id] -= p
		covered += p
	}
	return covered
}

// chargeBatteries charges stationary batteries on the connector within the
// given headroom, cheapest-first by id for determinism.
func chargeBatteries(w *sim.Stepper, gc *components.GridConnector, availableKW float64) float64 {
	used := 0.0
	ids := batteryIDs(w, gc)
	for _, id := range ids {
		if availableKW-used <= 0 {
			break
		}
		sb := w.World.Batteries[id]
		ceiling := availableKW - used
		if ceiling < sb.MinPowerKW {
			continue
		}
		p, _ := sb.Battery.Load(w.Cfg.Interval, ceiling, 1)
		if p <= 0 {
			continue
		}
		gc.CurrentLoads[id] += p
		used += p
	}
	return used
}

func batteryIDs(w *sim.Stepper, gc *components.GridConnector) []string {
	var ids []string
	for id, sb := range w.World.Batteries {
		if sb.ParentGC == gc.ID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// standingTime returns the time left before the vehicle's estimated
// departure, falling back to the look-ahead horizon when unknown.
func standingTime(w *sim.Stepper, v *components.Vehicle) time.Duration {
	if v.EstimatedDeparture == nil {
		return w.Cfg.Horizon
	}
	d := v.EstimatedDeparture.Sub(w.CurrentTime)
	if d < 0 {
		return 0
	}
	return d
}
