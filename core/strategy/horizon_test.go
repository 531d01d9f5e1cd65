package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evgrid/fleetsim/core/components"
	"github.com/evgrid/fleetsim/core/events"
	"github.com/evgrid/fleetsim/core/sim"
)

func TestBuildHorizonPricesAndAvailability(t *testing.T) {
	f := newFixture(t, 100)
	evs := []events.Event{
		// Known now, effective two slots ahead.
		events.GridOperatorSignal{
			Base:            events.Base{Signal: t0, Start: t0.Add(45 * time.Minute)},
			GridConnectorID: "gc1",
			Cost:            &components.PriceModel{FixedPerKWh: f64(0.40)},
		},
		events.FixedLoad{
			Base:            events.Base{Signal: t0, Start: t0.Add(30 * time.Minute)},
			Name:            "factory", GridConnectorID: "gc1", ValueKW: 60,
		},
	}
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute, Horizon: time.Hour}, evs)

	slots := buildHorizon(w, "gc1")
	require.Len(t, slots, 4)

	assert.Equal(t, t0.Add(15*time.Minute), slots[0].Time)
	assert.InDelta(t, 0.10, slots[0].PriceKWh, 1e-9)
	assert.InDelta(t, 100, slots[0].AvailKW, 1e-9)

	// Slot 1: the fixed load lands, price unchanged.
	assert.InDelta(t, 0.10, slots[1].PriceKWh, 1e-9)
	assert.InDelta(t, 40, slots[1].AvailKW, 1e-9)

	// Slot 2 onward: the operator price applies; the load entry persists.
	assert.InDelta(t, 0.40, slots[2].PriceKWh, 1e-9)
	assert.InDelta(t, 40, slots[2].AvailKW, 1e-9)
	assert.InDelta(t, 0.40, slots[3].PriceKWh, 1e-9)
}

func TestBuildHorizonIgnoresUnsignalledEvents(t *testing.T) {
	f := newFixture(t, 100)
	evs := []events.Event{
		events.GridOperatorSignal{
			// Becomes known only one hour from now.
			Base:            events.Base{Signal: t0.Add(time.Hour), Start: t0.Add(90 * time.Minute)},
			GridConnectorID: "gc1",
			Cost:            &components.PriceModel{FixedPerKWh: f64(0.01)},
		},
	}
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute, Horizon: 2 * time.Hour}, evs)

	for _, s := range buildHorizon(w, "gc1") {
		assert.InDelta(t, 0.10, s.PriceKWh, 1e-9, "slot %d", s.Index)
	}
}

func TestBuildHorizonForecastFallback(t *testing.T) {
	f := newFixture(t, 100)
	fc := &components.LoadForecast{SlotDuration: time.Hour}
	row := make([]float64, 24)
	for i := range row {
		row[i] = 25
	}
	fc.Values[t0.Weekday()] = row
	f.reg.GridConnectors["gc1"].Forecast = fc

	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute, Horizon: time.Hour}, nil)
	slots := buildHorizon(w, "gc1")
	require.Len(t, slots, 4)

	// The current slot reflects actual loads, future slots fall back to the
	// forecast table.
	assert.InDelta(t, 100, slots[0].AvailKW, 1e-9)
	for _, s := range slots[1:] {
		assert.InDelta(t, 75, s.AvailKW, 1e-9, "slot %d", s.Index)
	}
}

func TestBuildHorizonForecastYieldsToRealLoads(t *testing.T) {
	f := newFixture(t, 20)
	fc := &components.LoadForecast{SlotDuration: time.Hour}
	row := make([]float64, 24)
	for i := range row {
		row[i] = 5
	}
	fc.Values[t0.Weekday()] = row
	f.reg.GridConnectors["gc1"].Forecast = fc
	evs := []events.Event{
		events.FixedLoad{
			Base: events.Base{Signal: t0, Start: t0.Add(75 * time.Minute)},
			Name: "factory", GridConnectorID: "gc1", ValueKW: 2,
		},
	}
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute, Horizon: 2 * time.Hour}, evs)
	slots := buildHorizon(w, "gc1")
	require.Len(t, slots, 8)

	// Until the series starts, the forecast fills the gap.
	for _, s := range slots[1:4] {
		assert.InDelta(t, 15, s.AvailKW, 1e-9, "slot %d", s.Index)
	}
	// From the first real load on, the forecast entry is dropped instead of
	// stacking on top of the event value.
	for _, s := range slots[4:] {
		assert.InDelta(t, 18, s.AvailKW, 1e-9, "slot %d", s.Index)
	}
}

func TestBuildHorizonDropsCommittedControlledLoads(t *testing.T) {
	f := newFixture(t, 100)
	f.addVehicle(t, "a", 0.2, 0.8, nil, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute, Horizon: time.Hour}, nil)

	// An allocation already made this step occupies slot 0 only; later
	// slots are replanned from scratch.
	w.World.GridConnectors["gc1"].CurrentLoads["cs-a"] = 15
	slots := buildHorizon(w, "gc1")
	assert.InDelta(t, 85, slots[0].AvailKW, 1e-9)
	assert.InDelta(t, 100, slots[1].AvailKW, 1e-9)
}

func TestByPriceAscendingStable(t *testing.T) {
	slots := []horizonSlot{
		{Index: 0, PriceKWh: 0.30},
		{Index: 1, PriceKWh: 0.10},
		{Index: 2, PriceKWh: 0.10},
		{Index: 3, PriceKWh: 0.05},
	}
	assert.Equal(t, []int{3, 1, 2, 0}, byPriceAscending(slots))
}
