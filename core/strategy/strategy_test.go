package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evgrid/fleetsim/core/battery"
	"github.com/evgrid/fleetsim/core/components"
	"github.com/evgrid/fleetsim/core/curve"
	"github.com/evgrid/fleetsim/core/events"
	"github.com/evgrid/fleetsim/core/sim"
)

func TestGreedyChargesAtFullHeadroom(t *testing.T) {
	f := newFixture(t, 100)
	f.addVehicle(t, "a", 0.2, 0.8, nil, false)
	w := f.stepper(t, sim.Config{Interval: time.Hour}, nil)

	g := &Greedy{}
	cmds, err := g.Step(w)
	require.NoError(t, err)
	// Station limit binds before the connector does.
	assert.InDelta(t, 22, cmds["cs-a"], 1e-9)
	assert.NoError(t, w.FinishStep())
}

func TestGreedySkipsSatisfiedVehicles(t *testing.T) {
	f := newFixture(t, 100)
	f.addVehicle(t, "a", 0.85, 0.8, nil, false)
	w := f.stepper(t, sim.Config{Interval: time.Hour}, nil)

	cmds, err := (&Greedy{}).Step(w)
	require.NoError(t, err)
	assert.Zero(t, cmds["cs-a"])
	assert.InDelta(t, 0.85, w.World.Vehicles["a"].Battery.SoC, 1e-9)
}

func TestGreedyFreeEnergyFillsBeyondDesired(t *testing.T) {
	f := newFixture(t, 100)
	f.reg.GridConnectors["gc1"].Price = components.PriceModel{FixedPerKWh: f64(0)}
	f.addVehicle(t, "a", 0.85, 0.8, nil, false)
	w := f.stepper(t, sim.Config{Interval: time.Hour}, nil)

	cmds, err := (&Greedy{}).Step(w)
	require.NoError(t, err)
	assert.Greater(t, cmds["cs-a"], 0.0)
	assert.Greater(t, w.World.Vehicles["a"].Battery.SoC, 0.85)
}

func TestGreedyUsesBatterySupportBeyondHeadroom(t *testing.T) {
	f := newFixture(t, 20)
	f.addVehicle(t, "a", 0.2, 0.9, nil, false)
	f.reg.GridConnectors["gc1"].CurrentLoads["base"] = 10
	sb, err := battery.New(100, 0.8, curve.Constant(40), curve.Constant(40), 1, 1)
	require.NoError(t, err)
	f.reg.Batteries["sb1"] = &components.StationaryBattery{ID: "sb1", ParentGC: "gc1", Battery: sb}
	w := f.stepper(t, sim.Config{Interval: time.Hour, DischargeLimit: 0.2}, nil)

	cmds, err := (&Greedy{}).Step(w)
	require.NoError(t, err)
	// 10 kW of grid headroom plus battery support carries the vehicle past
	// the bare connector budget.
	assert.Greater(t, cmds["cs-a"], 10.0)
	gc := w.World.GridConnectors["gc1"]
	assert.Negative(t, gc.CurrentLoads["sb1"])
	assert.NoError(t, w.FinishStep())
}

func TestGreedyBatterySupportHonorsDischargeLimit(t *testing.T) {
	f := newFixture(t, 5)
	f.reg.GridConnectors["gc1"].CurrentLoads["base"] = 5
	f.addVehicle(t, "a", 0.2, 0.9, nil, false)
	// Just above the floor: only 0.01 soc of 100 kWh is actually usable.
	sb, err := battery.New(100, 0.10, curve.Constant(40), curve.Constant(40), 1, 1)
	require.NoError(t, err)
	f.reg.Batteries["sb1"] = &components.StationaryBattery{ID: "sb1", ParentGC: "gc1", Battery: sb}
	w := f.stepper(t, sim.Config{Interval: time.Hour, DischargeLimit: 0.09}, nil)

	cmds, err := (&Greedy{}).Step(w)
	require.NoError(t, err)
	// The vehicle gets exactly what the battery can cover above the floor,
	// not the full drain-to-empty estimate.
	assert.InDelta(t, 1, cmds["cs-a"], 1e-6)
	assert.InDelta(t, 0.09, w.World.Batteries["sb1"].Battery.SoC, 1e-6)
	assert.NoError(t, w.FinishStep())
}

func TestBalancedSpreadsLoadUntilDeparture(t *testing.T) {
	f := newFixture(t, 100)
	dep := t0.Add(4 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cmds, err := (&Balanced{}).Step(w)
	require.NoError(t, err)
	// 30 kWh over 3h45m of standing time is 8 kW, far below the station cap.
	assert.InDelta(t, 8, cmds["cs-a"], 0.1)

	cached := w.World.ChargingStations["cs-a"].CachedPowerKW
	require.NotNil(t, cached)
	assert.InDelta(t, 8, *cached, 0.1)
}

func TestBalancedReusesCachedPower(t *testing.T) {
	f := newFixture(t, 100)
	dep := t0.Add(4 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cached := 5.0
	cs := w.World.ChargingStations["cs-a"]
	cs.CachedPowerKW = &cached
	cs.CachedTargetSoC = 0.8
	cs.CachedDeparture = &dep
	cmds, err := (&Balanced{}).Step(w)
	require.NoError(t, err)
	assert.InDelta(t, 5, cmds["cs-a"], 1e-9)
}

func TestBalancedDropsCacheWhenTargetMoves(t *testing.T) {
	f := newFixture(t, 100)
	dep := t0.Add(4 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cached := 5.0
	cs := w.World.ChargingStations["cs-a"]
	cs.CachedPowerKW = &cached
	cs.CachedTargetSoC = 0.8
	cs.CachedDeparture = &dep

	// An arrival update raised the target while the vehicle stayed plugged
	// in; the converged power no longer reaches it.
	w.World.Vehicles["a"].DesiredSoC = 0.9
	cmds, err := (&Balanced{}).Step(w)
	require.NoError(t, err)
	// 35 kWh over 3h45m of standing time needs about 9.3 kW.
	assert.InDelta(t, 9.33, cmds["cs-a"], 0.1)
	assert.InDelta(t, 0.9, cs.CachedTargetSoC, 1e-9)
	require.NotNil(t, cs.CachedPowerKW)
	assert.InDelta(t, 9.33, *cs.CachedPowerKW, 0.1)
}

func TestBalancedDropsCacheWhenDeadlineMoves(t *testing.T) {
	f := newFixture(t, 100)
	dep := t0.Add(6 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cached := 5.0
	cs := w.World.ChargingStations["cs-a"]
	cs.CachedPowerKW = &cached
	cs.CachedTargetSoC = 0.8
	cs.CachedDeparture = &dep

	earlier := t0.Add(2 * time.Hour)
	w.World.Vehicles["a"].EstimatedDeparture = &earlier
	cmds, err := (&Balanced{}).Step(w)
	require.NoError(t, err)
	// 30 kWh over 1h45m of standing time needs about 17.1 kW, well above
	// the stale cached allocation.
	assert.Greater(t, cmds["cs-a"], 15.0)
	require.NotNil(t, cs.CachedDeparture)
	assert.True(t, cs.CachedDeparture.Equal(earlier))
}

func TestBalancedClipsToHeadroomWithoutNewSearch(t *testing.T) {
	f := newFixture(t, 100)
	dep := t0.Add(2 * time.Hour)
	f.addVehicle(t, "a", 0.1, 0.9, &dep, false)
	f.reg.GridConnectors["gc1"].CurrentLoads["base"] = 94
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cached := 20.0
	cs := w.World.ChargingStations["cs-a"]
	cs.CachedPowerKW = &cached
	cs.CachedTargetSoC = 0.9
	cs.CachedDeparture = &dep
	cmds, err := (&Balanced{}).Step(w)
	require.NoError(t, err)
	assert.InDelta(t, 6, cmds["cs-a"], 1e-9)
	// The cache keeps the converged value, not the clipped one.
	assert.InDelta(t, 20, *cs.CachedPowerKW, 1e-9)
	assert.NoError(t, w.FinishStep())
}

func TestBalancedClearsCacheWhenIdle(t *testing.T) {
	f := newFixture(t, 100)
	f.addVehicle(t, "a", 0.2, 0.8, nil, false)
	f.reg.Vehicles["a"].ConnectedStation = ""
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cached := 5.0
	w.World.ChargingStations["cs-a"].CachedPowerKW = &cached
	_, err := (&Balanced{}).Step(w)
	require.NoError(t, err)
	assert.Nil(t, w.World.ChargingStations["cs-a"].CachedPowerKW)
}

func TestBalancedMarketDefersToCheaperSlots(t *testing.T) {
	f := newFixture(t, 100)
	f.reg.GridConnectors["gc1"].Price = components.PriceModel{FixedPerKWh: f64(0.50)}
	dep := t0.Add(2 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.3, &dep, false)
	evs := []events.Event{
		events.GridOperatorSignal{
			Base:            events.Base{Signal: t0, Start: t0.Add(30 * time.Minute)},
			GridConnectorID: "gc1",
			Cost:            &components.PriceModel{FixedPerKWh: f64(0.10)},
		},
	}
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute, Horizon: 4 * time.Hour}, evs)

	cmds, err := (&BalancedMarket{}).Step(w)
	require.NoError(t, err)
	// The current step is the expensive one; the small deficit fits easily
	// into the cheap slots before departure.
	assert.Zero(t, cmds["cs-a"])
	assert.InDelta(t, 0.2, w.World.Vehicles["a"].Battery.SoC, 1e-9)

	// Once the cheap price is live the vehicle charges.
	require.NoError(t, w.Step(nil))
	cmds, err = (&BalancedMarket{}).Step(w)
	require.NoError(t, err)
	assert.Greater(t, cmds["cs-a"], 0.0)
}

func TestBalancedMarketChargesWhenCurrentSlotCheapest(t *testing.T) {
	f := newFixture(t, 100)
	dep := t0.Add(2 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	evs := []events.Event{
		events.GridOperatorSignal{
			Base:            events.Base{Signal: t0, Start: t0.Add(30 * time.Minute)},
			GridConnectorID: "gc1",
			Cost:            &components.PriceModel{FixedPerKWh: f64(0.80)},
		},
	}
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute, Horizon: 4 * time.Hour}, evs)

	cmds, err := (&BalancedMarket{}).Step(w)
	require.NoError(t, err)
	assert.Greater(t, cmds["cs-a"], 0.0)
}

func TestBalancedMarketV2GDischargesAtPeak(t *testing.T) {
	f := newFixture(t, 100)
	f.reg.GridConnectors["gc1"].Price = components.PriceModel{FixedPerKWh: f64(0.50)}
	dep := t0.Add(3 * time.Hour)
	f.addVehicle(t, "a", 0.9, 0.8, &dep, true)
	evs := []events.Event{
		events.GridOperatorSignal{
			Base:            events.Base{Signal: t0, Start: t0.Add(30 * time.Minute)},
			GridConnectorID: "gc1",
			Cost:            &components.PriceModel{FixedPerKWh: f64(0.10)},
		},
	}
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute, Horizon: 4 * time.Hour, DischargeLimit: 0.2}, evs)

	cmds, err := (&BalancedMarket{}).Step(w)
	require.NoError(t, err)
	assert.Negative(t, cmds["cs-a"])
	assert.Less(t, w.World.Vehicles["a"].Battery.SoC, 0.9)
	assert.Negative(t, w.World.GridConnectors["gc1"].CurrentLoads["cs-a"])
	assert.NoError(t, w.FinishStep())
}

func TestBalancedMarketV2GRollsBackWhenRebuyImpossible(t *testing.T) {
	f := newFixture(t, 100)
	f.reg.GridConnectors["gc1"].Price = components.PriceModel{FixedPerKWh: f64(0.50)}
	dep := t0.Add(3 * time.Hour)
	f.addVehicle(t, "a", 0.9, 0.8, &dep, true)
	evs := []events.Event{
		events.GridOperatorSignal{
			Base:            events.Base{Signal: t0, Start: t0.Add(2 * time.Hour)},
			GridConnectorID: "gc1",
			Cost:            &components.PriceModel{FixedPerKWh: f64(0.10)},
		},
		// The cheap remainder of the horizon has no usable capacity, so the
		// discharged energy could never be bought back before departure.
		events.FixedLoad{
			Base:            events.Base{Signal: t0, Start: t0.Add(2 * time.Hour)},
			Name:            "blackout", GridConnectorID: "gc1", ValueKW: 100,
		},
	}
	w := f.stepper(t, sim.Config{Interval: time.Hour, Horizon: 4 * time.Hour, DischargeLimit: 0.2}, evs)

	cmds, err := (&BalancedMarket{}).Step(w)
	require.NoError(t, err)
	assert.Zero(t, cmds["cs-a"])
	assert.InDelta(t, 0.9, w.World.Vehicles["a"].Battery.SoC, 1e-9)
	assert.Zero(t, w.World.GridConnectors["gc1"].CurrentLoads["cs-a"])
}

func TestBalancedMarketV2GSkipsWhenCurrentNotPeak(t *testing.T) {
	f := newFixture(t, 100)
	dep := t0.Add(3 * time.Hour)
	f.addVehicle(t, "a", 0.9, 0.8, &dep, true)
	// Flat prices: discharging now buys nothing.
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute, Horizon: 4 * time.Hour, DischargeLimit: 0.2}, nil)

	cmds, err := (&BalancedMarket{}).Step(w)
	require.NoError(t, err)
	assert.Zero(t, cmds["cs-a"])
	assert.InDelta(t, 0.9, w.World.Vehicles["a"].Battery.SoC, 1e-9)
}

func TestFlexWindowWaitsForStandingWindow(t *testing.T) {
	f := newFixture(t, 100)
	// Window opens at 12:00; the vehicle stands until 20:00.
	f.reg.GridConnectors["gc1"].CoreStandingWindows = []components.StandingWindow{{StartMinute: 12 * 60, EndMinute: 20 * 60}}
	dep := t0.Add(12 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cmds, err := (&FlexWindow{}).Step(w)
	require.NoError(t, err)
	assert.Zero(t, cmds["cs-a"])
	assert.InDelta(t, 0.2, w.World.Vehicles["a"].Battery.SoC, 1e-9)
}

func TestFlexWindowChargesWhenDeadlineForcesIt(t *testing.T) {
	f := newFixture(t, 100)
	f.reg.GridConnectors["gc1"].CoreStandingWindows = []components.StandingWindow{{StartMinute: 12 * 60, EndMinute: 20 * 60}}
	// Departs at 10:00, before the window ever opens.
	dep := t0.Add(2 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cmds, err := (&FlexWindow{}).Step(w)
	require.NoError(t, err)
	assert.Greater(t, cmds["cs-a"], 0.0)
}

func TestFlexWindowOperatorFlagWins(t *testing.T) {
	f := newFixture(t, 100)
	closed := false
	f.reg.GridConnectors["gc1"].Window = &closed
	f.reg.GridConnectors["gc1"].CoreStandingWindows = []components.StandingWindow{{StartMinute: 0, EndMinute: 24 * 60}}
	dep := t0.Add(time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	// Closed flag, no known reopening: the deadline check fires and the
	// vehicle charges despite the window.
	cmds, err := (&FlexWindow{}).Step(w)
	require.NoError(t, err)
	assert.Greater(t, cmds["cs-a"], 0.0)
}

func TestFlexWindowInsideWindowBalances(t *testing.T) {
	f := newFixture(t, 100)
	f.reg.GridConnectors["gc1"].CoreStandingWindows = []components.StandingWindow{{StartMinute: 0, EndMinute: 24 * 60}}
	dep := t0.Add(4 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cmds, err := (&FlexWindow{}).Step(w)
	require.NoError(t, err)
	assert.InDelta(t, 8, cmds["cs-a"], 0.1)
}

func TestPeakShavingGrantsWantsWhenTheyFit(t *testing.T) {
	f := newFixture(t, 100)
	dep := t0.Add(4 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	f.addVehicle(t, "b", 0.5, 0.8, &dep, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cmds, err := (&PeakShaving{}).Step(w)
	require.NoError(t, err)
	assert.InDelta(t, 8, cmds["cs-a"], 0.1)
	assert.InDelta(t, 4, cmds["cs-b"], 0.1)
	assert.NoError(t, w.FinishStep())
}

func TestPeakShavingPrefersUrgentUnderScarcity(t *testing.T) {
	f := newFixture(t, 20)
	f.reg.GridConnectors["gc1"].CurrentLoads["base"] = 10
	soon := t0.Add(2 * time.Hour)
	late := t0.Add(12 * time.Hour)
	f.addVehicle(t, "urgent", 0.1, 0.9, &soon, false)
	f.addVehicle(t, "relaxed", 0.5, 0.8, &late, false)
	w := f.stepper(t, sim.Config{Interval: 15 * time.Minute}, nil)

	cmds, err := (&PeakShaving{}).Step(w)
	require.NoError(t, err)
	assert.Greater(t, cmds["cs-urgent"], cmds["cs-relaxed"])
	gc := w.World.GridConnectors["gc1"]
	assert.LessOrEqual(t, gc.TotalLoad(nil), gc.CurMaxPowerKW+1e-5)
	assert.NoError(t, w.FinishStep())
}

func TestPeakShavingProportionalFallback(t *testing.T) {
	p := &PeakShaving{}
	cands := []shavingCandidate{
		{wantKW: 10, weight: 3},
		{wantKW: 10, weight: 1},
	}
	alloc := p.proportional(cands, 8)
	assert.InDelta(t, 6, alloc[0], 1e-9)
	assert.InDelta(t, 2, alloc[1], 1e-9)

	// Zero weights split evenly.
	cands[0].weight, cands[1].weight = 0, 0
	alloc = p.proportional(cands, 8)
	assert.InDelta(t, 4, alloc[0], 1e-9)
	assert.InDelta(t, 4, alloc[1], 1e-9)
}

func TestEveryStrategyRespectsConnectorLimit(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 35)
			f.reg.GridConnectors["gc1"].CurrentLoads["base"] = 10
			dep := t0.Add(4 * time.Hour)
			f.addVehicle(t, "a", 0.1, 0.9, &dep, false)
			f.addVehicle(t, "b", 0.3, 0.8, &dep, false)
			f.addVehicle(t, "c", 0.2, 0.9, &dep, true)

			cfg := sim.Config{Interval: 15 * time.Minute, Horizon: 6 * time.Hour, DischargeLimit: 0.1}
			s, err := sim.NewStepper(cfg, f.reg, t0, nil, nil)
			require.NoError(t, err)
			st, err := New(name, cfg, nil)
			require.NoError(t, err)

			res, err := sim.Run(context.Background(), s, st, 16, nil, nil)
			require.NoError(t, err)
			require.False(t, res.Aborted, "fault: %v", res.Fault)
			require.Len(t, res.Records, 16)
			for _, rec := range res.Records {
				conn := rec.Connectors["gc1"]
				assert.LessOrEqual(t, conn.LoadKW, conn.MaxPowerKW+1e-5, "step %d", rec.Step)
			}
		})
	}
}

func TestBalancedReachesTargetByDeparture(t *testing.T) {
	f := newFixture(t, 100)
	dep := t0.Add(4 * time.Hour)
	f.addVehicle(t, "a", 0.2, 0.8, &dep, false)
	evs := []events.Event{
		events.VehicleEvent{
			Base:      events.Base{Signal: t0, Start: dep},
			VehicleID: "a",
			Kind:      events.Departure,
		},
	}
	cfg := sim.Config{Interval: 15 * time.Minute}
	s, err := sim.NewStepper(cfg, f.reg, t0, evs, nil)
	require.NoError(t, err)
	st, err := New("balanced", cfg, nil)
	require.NoError(t, err)

	res, err := sim.Run(context.Background(), s, st, 16, nil, nil)
	require.NoError(t, err)
	require.False(t, res.Aborted, "fault: %v", res.Fault)
	assert.Empty(t, res.MissedTargets)
	assert.GreaterOrEqual(t, s.World.Vehicles["a"].Battery.SoC, 0.8-0.01)
	assert.False(t, s.World.Vehicles["a"].Connected())
}
