package strategy

import (
	"github.com/evgrid/fleetsim/core/components"
	"github.com/evgrid/fleetsim/core/logger"
	"github.com/evgrid/fleetsim/core/sim"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// PeakShaving spreads every vehicle's minimum viable charging power across
// the connector without ever exceeding its current capacity, preferring
// urgent vehicles when the headroom cannot carry everyone. The allocation
// is a linear program; when the solver fails the strategy degrades to
// urgency-proportional shares.
type PeakShaving struct {
	cfg sim.Config
	log logger.Logger
}

func (p *PeakShaving) Name() string { return "peak_shaving" }

type shavingCandidate struct {
	v      *components.Vehicle
	cs     *components.ChargingStation
	wantKW float64
	weight float64
}

func (p *PeakShaving) Step(w *sim.Stepper) (map[string]float64, error) {
	cmds := make(map[string]float64)
	perGC := make(map[string][]shavingCandidate)
	for _, v := range connectedVehicles(w) {
		cs, gc, err := stationFor(w, v)
		if err != nil {
			return nil, err
		}
		if priceAt(gc) <= w.Cfg.PriceThreshold {
			pw := chargeVehicle(w, v, cs, gc, headroom(w, gc), 1)
			cmds[cs.ID] += pw
			continue
		}
		if v.Battery.SoC >= v.DesiredSoC-w.Cfg.EPS {
			continue
		}
		standing := standingTime(w, v)
		maxP := cs.MaxPowerKW
		if cm := v.Battery.ChargeCurve.MaxPower(); cm < maxP {
			maxP = cm
		}
		minP := cs.MinPowerKW
		if v.Type != nil && v.Type.MinPowerKW > minP {
			minP = v.Type.MinPowerKW
		}
		want := minimumViablePower(v.Battery, standing, minP, maxP, v.DesiredSoC, w.Cfg.EPS)
		if want <= 0 {
			continue
		}
		hours := standing.Hours()
		weight := v.EnergyDeficitKWh()
		if hours > 0 {
			weight = v.EnergyDeficitKWh() / hours
		}
		perGC[gc.ID] = append(perGC[gc.ID], shavingCandidate{v: v, cs: cs, wantKW: want, weight: weight})
	}

	for gcID, cands := range perGC {
		gc := w.World.GridConnectors[gcID]
		avail := headroom(w, gc)
		alloc := p.solve(cands, avail)
		for i, c := range cands {
			pw := chargeVehicle(w, c.v, c.cs, gc, alloc[i], c.v.DesiredSoC)
			cmds[c.cs.ID] += pw
		}
	}
	return cmds, nil
}

// solve maximises the urgency-weighted allocation subject to per-vehicle
// wants and the shared headroom.
func (p *PeakShaving) solve(cands []shavingCandidate, availKW float64) []float64 {
	n := len(cands)
	alloc := make([]float64, n)
	if n == 0 || availKW <= 0 {
		return alloc
	}
	total := 0.0
	for _, c := range cands {
		total += c.wantKW
	}
	if total <= availKW {
		for i, c := range cands {
			alloc[i] = c.wantKW
		}
		return alloc
	}

	c := make([]float64, n)
	for i, cand := range cands {
		c[i] = -cand.weight
	}
	g := mat.NewDense(n+1, n, nil)
	h := make([]float64, n+1)
	for i, cand := range cands {
		g.Set(i, i, 1)
		h[i] = cand.wantKW
	}
	for i := 0; i < n; i++ {
		g.Set(n, i, 1)
	}
	h[n] = availKW

	cStd, aStd, bStd := lp.Convert(c, g, h, nil, nil)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, 1e-7, nil)
	if err != nil || len(sol) < n {
		if p.log != nil {
			p.log.Warnf("peak shaving lp failed, using proportional shares: %v", err)
		}
		return p.proportional(cands, availKW)
	}
	used := 0.0
	for i := range cands {
		x := sol[i]
		if x < 0 {
			x = 0
		}
		if x > cands[i].wantKW {
			x = cands[i].wantKW
		}
		if used+x > availKW {
			x = availKW - used
		}
		alloc[i] = x
		used += x
	}
	return alloc
}

// proportional splits the headroom by urgency weight, clipped to each
// vehicle's want.
func (p *PeakShaving) proportional(cands []shavingCandidate, availKW float64) []float64 {
	alloc := make([]float64, len(cands))
	sum := 0.0
	for _, c := range cands {
		sum += c.weight
	}
	if sum <= 0 {
		share := availKW / float64(len(cands))
		for i, c := range cands {
			if share > c.wantKW {
				alloc[i] = c.wantKW
			} else {
				alloc[i] = share
			}
		}
		return alloc
	}
	remaining := availKW
	for i, c := range cands {
		x := availKW * c.weight / sum
		if x > c.wantKW {
			x = c.wantKW
		}
		if x > remaining {
			x = remaining
		}
		alloc[i] = x
		remaining -= x
	}
	return alloc
}
