package strategy

import (
	"time"

	"github.com/evgrid/fleetsim/core/components"
	"github.com/evgrid/fleetsim/core/logger"
	"github.com/evgrid/fleetsim/core/sim"
)

// FlexWindow restricts charging to externally supplied time windows: the
// connector's operator-signalled window flag or its configured core
// standing times. Inside a window the balanced feasibility search spreads
// the load over the remaining window steps; outside, a vehicle only charges
// when waiting for the next window would make its deadline infeasible.
type FlexWindow struct {
	cfg sim.Config
	log logger.Logger
}

func (f *FlexWindow) Name() string { return "flex_window" }

func (f *FlexWindow) Step(w *sim.Stepper) (map[string]float64, error) {
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
		if v.Battery.SoC >= v.DesiredSoC-w.Cfg.EPS {
			continue
		}
		inside := windowOpen(gc, w.CurrentTime)
		standing := standingTime(w, v)
		usable := f.usableTime(w, gc, v, inside)
		maxP := cs.MaxPowerKW
		if cm := v.Battery.ChargeCurve.MaxPower(); cm < maxP {
			maxP = cm
		}
		minP := cs.MinPowerKW
		if v.Type != nil && v.Type.MinPowerKW > minP {
			minP = v.Type.MinPowerKW
		}
		if !inside {
			// Charge out of window only when the in-window time left
			// cannot carry the deficit even at full power.
			probe := v.Battery.Clone()
			probe.Load(usable, maxP, v.DesiredSoC)
			if probe.SoC >= v.DesiredSoC-w.Cfg.EPS {
				continue
			}
			p := chargeVehicle(w, v, cs, gc, avail, v.DesiredSoC)
			cmds[cs.ID] += p
			continue
		}
		span := usable
		if standing < span {
			span = standing
		}
		power := minimumViablePower(v.Battery, span, minP, maxP, v.DesiredSoC, w.Cfg.EPS)
		if power > avail {
			power = avail
		}
		p := chargeVehicle(w, v, cs, gc, power, v.DesiredSoC)
		cmds[cs.ID] += p
	}
	return cmds, nil
}

// windowOpen reports whether charging is currently favoured: an explicit
// operator window flag wins, otherwise the core standing times apply, and a
// connector with neither is always open.
func windowOpen(gc *components.GridConnector, t time.Time) bool {
	if gc.Window != nil {
		return *gc.Window
	}
	if len(gc.CoreStandingWindows) == 0 {
		return true
	}
	for _, win := range gc.CoreStandingWindows {
		if win.Contains(t) {
			return true
		}
	}
	return false
}

// usableTime sums the in-window time between now and the vehicle's
// departure, walking interval by interval. The operator window flag has no
// known future schedule, so it only counts while it stays in its current
// state; core standing windows are recurring and fully predictable.
func (f *FlexWindow) usableTime(w *sim.Stepper, gc *components.GridConnector, v *components.Vehicle, inside bool) time.Duration {
	standing := standingTime(w, v)
	if gc.Window != nil {
		if inside {
			return standing
		}
		return 0
	}
	if len(gc.CoreStandingWindows) == 0 {
		return standing
	}
	var usable time.Duration
	for t := w.CurrentTime; t.Sub(w.CurrentTime) < standing; t = t.Add(w.Cfg.Interval) {
		for _, win := range gc.CoreStandingWindows {
			if win.Contains(t) {
				usable += w.Cfg.Interval
				break
			}
		}
	}
	return usable
}
