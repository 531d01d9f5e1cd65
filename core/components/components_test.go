package components

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evgrid/fleetsim/core/battery"
	"github.com/evgrid/fleetsim/core/curve"
)

func f64(v float64) *float64 { return &v }

func TestPriceModel(t *testing.T) {
	assert.True(t, PriceModel{}.Empty())

	fixed := PriceModel{FixedPerKWh: f64(0.25)}
	assert.False(t, fixed.Empty())
	assert.InDelta(t, 0.25, fixed.PricePerKWh(100), 1e-9)

	poly := PriceModel{Polynomial: []float64{0.1, 0.01, 0.001}}
	assert.False(t, poly.Empty())
	// 0.1 + 0.01*10 + 0.001*100
	assert.InDelta(t, 0.3, poly.PricePerKWh(10), 1e-9)
}

func TestLoadForecastAt(t *testing.T) {
	f := &LoadForecast{SlotDuration: time.Hour}
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	row := make([]float64, 24)
	row[0] = 5
	row[13] = 40
	f.Values[monday.Weekday()] = row

	assert.InDelta(t, 5, f.At(monday), 1e-9)
	assert.InDelta(t, 40, f.At(monday.Add(13*time.Hour+30*time.Minute)), 1e-9)
	// Tuesday has no row.
	assert.Zero(t, f.At(monday.Add(24*time.Hour)))
}

func TestStandingWindowContains(t *testing.T) {
	w := StandingWindow{StartMinute: 8 * 60, EndMinute: 16 * 60}
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	assert.False(t, w.Contains(day.Add(7*time.Hour+59*time.Minute)))
	assert.True(t, w.Contains(day.Add(8*time.Hour)))
	assert.True(t, w.Contains(day.Add(15*time.Hour+59*time.Minute)))
	assert.False(t, w.Contains(day.Add(16*time.Hour)))
}

func TestGridConnectorLoads(t *testing.T) {
	gc := &GridConnector{
		ID:            "gc1",
		MaxPowerKW:    100,
		CurMaxPowerKW: 100,
		CurrentLoads:  map[string]float64{"cs1": 40, "ext": 30, "pv1": -20},
	}

	assert.InDelta(t, 50, gc.TotalLoad(nil), 1e-9)
	assert.InDelta(t, 70, gc.TotalLoad(map[string]bool{"pv1": true}), 1e-9)
	assert.InDelta(t, 50, gc.Headroom(), 1e-9)
	assert.True(t, gc.WithinLimit(map[string]bool{"pv1": true}, 1e-5))

	gc.CurrentLoads["cs2"] = 35
	assert.False(t, gc.WithinLimit(map[string]bool{"pv1": true}, 1e-5))

	gc.CurrentLoads = map[string]float64{"ext": 200}
	assert.Zero(t, gc.Headroom())
}

func TestGridConnectorClone(t *testing.T) {
	gc := &GridConnector{
		ID:                  "gc1",
		MaxPowerKW:          100,
		CurMaxPowerKW:       80,
		CurrentLoads:        map[string]float64{"cs1": 10},
		Target:              f64(50),
		CoreStandingWindows: []StandingWindow{{StartMinute: 0, EndMinute: 60}},
	}

	cp := gc.Clone()
	cp.CurrentLoads["cs1"] = 99
	*cp.Target = 0
	cp.CoreStandingWindows[0].EndMinute = 120

	assert.InDelta(t, 10, gc.CurrentLoads["cs1"], 1e-9)
	assert.InDelta(t, 50, *gc.Target, 1e-9)
	assert.Equal(t, 60, gc.CoreStandingWindows[0].EndMinute)
}

func TestVehicleEnergyDeficit(t *testing.T) {
	b, err := battery.New(50, 0.2, curve.Constant(22), nil, 1, 0.5)
	require.NoError(t, err)
	v := &Vehicle{ID: "v1", Battery: b, DesiredSoC: 0.8}

	assert.InDelta(t, 30, v.EnergyDeficitKWh(), 1e-9)
	assert.False(t, v.Connected())

	v.ConnectedStation = "cs1"
	assert.True(t, v.Connected())

	b.SoC = 0.9
	assert.Zero(t, v.EnergyDeficitKWh())
}

func TestRegistryClone(t *testing.T) {
	b, err := battery.New(50, 0.3, curve.Constant(22), nil, 1, 0.5)
	require.NoError(t, err)

	reg := NewRegistry()
	reg.GridConnectors["gc1"] = &GridConnector{ID: "gc1", MaxPowerKW: 100, CurMaxPowerKW: 100, CurrentLoads: map[string]float64{}}
	reg.ChargingStations["cs1"] = &ChargingStation{ID: "cs1", MaxPowerKW: 22, ParentGC: "gc1"}
	vt := &VehicleType{Name: "compact", CapacityKWh: 50}
	reg.VehicleTypes["compact"] = vt
	reg.Vehicles["v1"] = &Vehicle{ID: "v1", Type: vt, Battery: b, ConnectedStation: "cs1", DesiredSoC: 0.8}
	reg.Photovoltaics["pv1"] = &Photovoltaic{ID: "pv1", ParentGC: "gc1", NominalPowerKW: 30}

	cp := reg.Clone()
	cp.Vehicles["v1"].Battery.SoC = 0.99
	cp.GridConnectors["gc1"].CurrentLoads["cs1"] = 15

	assert.InDelta(t, 0.3, reg.Vehicles["v1"].Battery.SoC, 1e-9)
	assert.Empty(t, reg.GridConnectors["gc1"].CurrentLoads)
	// Types are shared by design.
	assert.Same(t, vt, cp.VehicleTypes["compact"])

	keys := reg.GenerationKeys()
	assert.True(t, keys["pv1"])
	assert.Len(t, keys, 1)
}
