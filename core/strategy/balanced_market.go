package strategy

import (
	"github.com/evgrid/fleetsim/core/battery"
	"github.com/evgrid/fleetsim/core/components"
	"github.com/evgrid/fleetsim/core/logger"
	"github.com/evgrid/fleetsim/core/sim"
)

// BalancedMarket allocates charging to the cheapest timesteps before each
// vehicle's departure, using a per-connector price/availability table built
// from already-signalled future events. V2G vehicles may discharge during
// the most expensive step if a forward re-simulation proves the energy can
// be bought back cheaper before departure; otherwise the discharge is
// rolled back.
type BalancedMarket struct {
	cfg sim.Config
	log logger.Logger
}

func (m *BalancedMarket) Name() string { return "balanced_market" }

func (m *BalancedMarket) Step(w *sim.Stepper) (map[string]float64, error) {
	cmds := make(map[string]float64)
	for _, v := range connectedVehicles(w) {
		cs, gc, err := stationFor(w, v)
		if err != nil {
			return nil, err
		}
		avail := headroom(w, gc)
		if priceAt(gc) <= w.Cfg.PriceThreshold {
			p := chargeVehicle(w, v, cs, gc, avail, 1)
			cmds[cs.ID] += p
			continue
		}
		slots := m.vehicleSlots(w, v, gc.ID)
		if v.Battery.SoC < v.DesiredSoC-w.Cfg.EPS && len(slots) > 0 {
			p := m.allocateCharge(w, v, cs, slots)
			if p > 0 {
				if p > avail {
					p = avail
				}
				p = chargeVehicle(w, v, cs, gc, p, v.DesiredSoC)
				cmds[cs.ID] += p
			}
		}
		if v.Type != nil && v.Type.V2G {
			p := m.tryV2G(w, v, cs, gc, slots)
			cmds[cs.ID] -= p
		}
	}
	return cmds, nil
}

// vehicleSlots restricts the connector horizon to the steps before the
// vehicle's estimated departure.
func (m *BalancedMarket) vehicleSlots(w *sim.Stepper, v *components.Vehicle, gcID string) []horizonSlot {
	slots := buildHorizon(w, gcID)
	if v.EstimatedDeparture == nil {
		return slots
	}
	cut := len(slots)
	for i, s := range slots {
		if !s.Time.Before(*v.EstimatedDeparture) {
			cut = i
			break
		}
	}
	return slots[:cut]
}

// allocateCharge picks the cheapest slots that can cover the vehicle's
// energy need and feasibility-searches the constant power to use across
// them. It returns the power to draw during the current step, zero when the
// current step is not among the chosen slots.
func (m *BalancedMarket) allocateCharge(w *sim.Stepper, v *components.Vehicle, cs *components.ChargingStation, slots []horizonSlot) float64 {
	maxP := cs.MaxPowerKW
	if cm := v.Battery.ChargeCurve.MaxPower(); cm < maxP {
		maxP = cm
	}
	if maxP <= 0 {
		return 0
	}
	order := byPriceAscending(slots)

	// Grow the cheap set until max power over it reaches the target.
	count := len(order)
	for c := 1; c <= len(order); c++ {
		if m.simulate(v.Battery, w, slots, order[:c], maxP) >= v.DesiredSoC-w.Cfg.EPS {
			count = c
			break
		}
	}
	chosen := order[:count]

	minP := cs.MinPowerKW
	if v.Type != nil && v.Type.MinPowerKW > minP {
		minP = v.Type.MinPowerKW
	}
	power := maxP
	if m.simulate(v.Battery, w, slots, chosen, minP) >= v.DesiredSoC-w.Cfg.EPS {
		power = minP
	} else {
		lo, hi := minP, maxP
		for i := 0; i < maxSearchIterations; i++ {
			if hi-lo < w.Cfg.EPS && i >= minSearchIterations {
				break
			}
			mid := (lo + hi) / 2
			if m.simulate(v.Battery, w, slots, chosen, mid) >= v.DesiredSoC-w.Cfg.EPS {
				hi = mid
			} else {
				lo = mid
			}
		}
		power = hi
	}
	for _, idx := range chosen {
		if slots[idx].Index == 0 {
			p := power
			if slots[idx].AvailKW < p {
				p = slots[idx].AvailKW
			}
			return p
		}
	}
	return 0
}

// simulate charges a cloned battery across the chosen slots at the given
// constant power, clipped per slot to the available capacity, and returns
// the final soc.
func (m *BalancedMarket) simulate(b *battery.Battery, w *sim.Stepper, slots []horizonSlot, chosen []int, powerKW float64) float64 {
	probe := b.Clone()
	for _, idx := range chosen {
		p := powerKW
		if slots[idx].AvailKW < p {
			p = slots[idx].AvailKW
		}
		probe.Load(w.Cfg.Interval, p, 1)
		if probe.SoC >= 1 {
			break
		}
	}
	return probe.SoC
}

// tryV2G discharges during the current step when it is the most expensive
// slot before departure, but only if re-simulating the remaining cheaper
// slots shows the energy can be fully recovered. It returns the injected
// power, zero when the discharge was rolled back.
func (m *BalancedMarket) tryV2G(w *sim.Stepper, v *components.Vehicle, cs *components.ChargingStation, gc *components.GridConnector, slots []horizonSlot) float64 {
	if len(slots) < 2 || v.Battery.SoC <= w.Cfg.DischargeLimit {
		return 0
	}
	cur := slots[0]
	if cur.Index != 0 {
		return 0
	}
	for _, s := range slots[1:] {
		if s.PriceKWh >= cur.PriceKWh {
			return 0
		}
	}
	// Probe the discharge on a clone, then verify the cheaper remainder of
	// the horizon can buy the energy back before departure.
	injectionLimit := gc.CurMaxPowerKW + gc.TotalLoad(w.GenerationKeys())
	if cs.MaxPowerKW < injectionLimit {
		injectionLimit = cs.MaxPowerKW
	}
	if injectionLimit <= 0 {
		return 0
	}
	probe := v.Battery.Clone()
	injected, _ := probe.Unload(w.Cfg.Interval, injectionLimit, w.Cfg.DischargeLimit)
	if injected <= 0 {
		return 0
	}
	maxP := cs.MaxPowerKW
	if cm := v.Battery.ChargeCurve.MaxPower(); cm < maxP {
		maxP = cm
	}
	rest := make([]int, 0, len(slots)-1)
	for i := 1; i < len(slots); i++ {
		rest = append(rest, i)
	}
	if m.simulate(probe, w, slots, rest, maxP) < v.DesiredSoC-w.Cfg.EPS {
		if m.log != nil {
			m.log.Debugw("v2g discharge rolled back", map[string]any{"vehicle": v.ID})
		}
		return 0
	}
	return dischargeVehicle(w, v, cs, gc, injectionLimit, w.Cfg.DischargeLimit)
}
