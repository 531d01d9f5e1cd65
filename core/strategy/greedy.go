package strategy

import (
	"github.com/evgrid/fleetsim/core/logger"
	"github.com/evgrid/fleetsim/core/sim"
)

// Greedy charges every connected vehicle as fast as the station, curve and
// connector allow, with no look-ahead. When energy is free it also fills
// stationary batteries; when it is not, batteries support vehicles whose
// need exceeds the grid headroom.
type Greedy struct {
	cfg sim.Config
	log logger.Logger
}

func (g *Greedy) Name() string { return "greedy" }

func (g *Greedy) Step(w *sim.Stepper) (map[string]float64, error) {
	cmds := make(map[string]float64)
	for _, v := range connectedVehicles(w) {
		cs, gc, err := stationFor(w, v)
		if err != nil {
			return nil, err
		}
		free := priceAt(gc) <= w.Cfg.PriceThreshold
		avail := headroom(w, gc)
		if free {
			// Free energy: no reason to hold back, fill to 1.
			p := chargeVehicle(w, v, cs, gc, avail, 1)
			cmds[cs.ID] += p
			continue
		}
		if v.Battery.SoC >= v.DesiredSoC {
			continue
		}
		support := batterySupport(w, gc)
		p := chargeVehicle(w, v, cs, gc, avail+support, v.DesiredSoC)
		cmds[cs.ID] += p
		if p > avail {
			covered := dischargeBatteries(w, gc, p-avail)
			if covered < p-avail-w.Cfg.EPS && g.log != nil {
				g.log.Debugw("battery support fell short", map[string]any{
					"connector": gc.ID, "needed": p - avail, "covered": covered,
				})
			}
		}
	}
	// Leftover free capacity goes into buffer storage.
	for _, gc := range w.World.GridConnectors {
		if priceAt(gc) > w.Cfg.PriceThreshold {
			continue
		}
		chargeBatteries(w, gc, headroom(w, gc))
	}
	return cmds, nil
}
