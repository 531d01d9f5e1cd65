package strategy

import (
	"sort"
	"time"

	"github.com/evgrid/fleetsim/core/events"
	"github.com/evgrid/fleetsim/core/sim"
)

// forecastKey names the synthetic load entry fed from the connector's
// average-load forecast table. It covers future steps only until the first
// fixed-load event takes over, and never stacks on top of real loads.
const forecastKey = "_forecast"

// horizonSlot is one future timestep of a connector: what power is still
// available and at what price.
type horizonSlot struct {
	Index    int
	Time     time.Time
	PriceKWh float64
	AvailKW  float64
}

// buildHorizon replays the pending event queue against a cloned connector to
// tabulate (available power, price) per timestep up to the configured
// horizon. Only events already signalled are visible; the authoritative
// world state is never touched. Slot 0 is the current step and reflects
// loads already committed by earlier allocations this step; controlled
// loads are dropped from later slots since they are replanned every step.
func buildHorizon(w *sim.Stepper, gcID string) []horizonSlot {
	gc, ok := w.World.GridConnectors[gcID]
	if !ok {
		return nil
	}
	n := int(w.Cfg.Horizon / w.Cfg.Interval)
	if n < 1 {
		n = 1
	}
	clone := gc.Clone()
	genKeys := make(map[string]bool, len(w.GenerationKeys()))
	for k := range w.GenerationKeys() {
		genKeys[k] = true
	}
	pending := w.Queue.Snapshot()
	slots := make([]horizonSlot, 0, n)
	t := w.CurrentTime
	evIdx := 0
	loadCovered := false
	for i := 0; i < n; i++ {
		if i > 0 {
			t = t.Add(w.Cfg.Interval)
			delete(clone.CurrentLoads, forecastKey)
			for id := range w.World.ChargingStations {
				delete(clone.CurrentLoads, id)
			}
			for id := range w.World.Batteries {
				delete(clone.CurrentLoads, id)
			}
		}
		for ; evIdx < len(pending) && !pending[evIdx].StartTime().After(t); evIdx++ {
			ev := pending[evIdx]
			if ev.SignalTime().After(w.CurrentTime) {
				continue
			}
			switch e := ev.(type) {
			case events.FixedLoad:
				if e.GridConnectorID == gcID {
					clone.CurrentLoads[e.Name] = e.ValueKW
					loadCovered = true
				}
			case events.LocalGeneration:
				if e.GridConnectorID == gcID {
					clone.CurrentLoads[e.Name] = -e.ValueKW
					genKeys[e.Name] = true
				}
			case events.GridOperatorSignal:
				if e.GridConnectorID == gcID {
					sim.ApplyOperatorSignal(clone, e)
				}
			}
		}
		if i > 0 && !loadCovered && clone.Forecast != nil {
			clone.CurrentLoads[forecastKey] = clone.Forecast.At(t)
		}
		avail := clone.CurMaxPowerKW - clone.TotalLoad(genKeys)
		if avail < 0 {
			avail = 0
		}
		slots = append(slots, horizonSlot{
			Index:    i,
			Time:     t,
			PriceKWh: clone.Price.PricePerKWh(clone.TotalLoad(genKeys)),
			AvailKW:  avail,
		})
	}
	return slots
}

// byPriceAscending orders slot indices cheapest first, ties broken by
// chronological position for reproducibility.
func byPriceAscending(slots []horizonSlot) []int {
	order := make([]int, len(slots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return slots[order[a]].PriceKWh < slots[order[b]].PriceKWh
	})
	return order
}
