package battery

import (
	"fmt"
	"math"
	"time"

	"github.com/evgrid/fleetsim/core/curve"
)

// UnboundedCapacityKWh marks a battery whose capacity is effectively
// unlimited, used by some stationary buffer batteries. The value is large
// enough that the soc never moves measurably during a run.
const UnboundedCapacityKWh = 1e12

// LossRate describes passive energy loss applied once per completed
// simulation step.
type LossRate struct {
	// RelativePct shrinks the current soc by this percentage.
	RelativePct float64 `json:"relative"`
	// FixedRelativePct removes this percentage of full capacity.
	FixedRelativePct float64 `json:"fixed_relative"`
	// FixedAbsoluteKWh removes this many kWh.
	FixedAbsoluteKWh float64 `json:"fixed_absolute"`
}

// Battery models a chargeable store with nonlinear power limits. Charging
// follows the charge curve, discharging the discharge curve; both are
// capped externally by station and connector limits.
type Battery struct {
	CapacityKWh    float64
	SoC            float64
	ChargeCurve    *curve.Curve
	DischargeCurve *curve.Curve
	// Efficiency is the round-trip efficiency in (0,1]. Charging delivers
	// power*efficiency to the cells, discharging drains power/efficiency
	// from them.
	Efficiency float64
	Loss       *LossRate
}

// New validates the parameters and builds a battery. A nil discharge curve
// defaults to the charge curve scaled by dischargeFactor (the V2G mirror).
func New(capacityKWh, soc float64, charge *curve.Curve, discharge *curve.Curve, efficiency, dischargeFactor float64) (*Battery, error) {
	if capacityKWh <= 0 {
		return nil, fmt.Errorf("battery capacity must be positive, got %g", capacityKWh)
	}
	if efficiency <= 0 || efficiency > 1 {
		return nil, fmt.Errorf("battery efficiency must be in (0,1], got %g", efficiency)
	}
	if charge == nil {
		return nil, fmt.Errorf("battery needs a charge curve")
	}
	if discharge == nil {
		discharge = charge.Scaled(dischargeFactor)
	}
	return &Battery{
		CapacityKWh:    capacityKWh,
		SoC:            soc,
		ChargeCurve:    charge,
		DischargeCurve: discharge,
		Efficiency:     efficiency,
	}, nil
}

// Clone returns an independent copy. Curves are immutable and shared.
func (b *Battery) Clone() *Battery {
	cp := *b
	if b.Loss != nil {
		loss := *b.Loss
		cp.Loss = &loss
	}
	return &cp
}

// Load charges the battery for up to duration, drawing at most ceilingKW
// from the grid and stopping once targetSoC is reached. It returns the
// average grid-side power over the full requested duration and the realized
// soc delta.
func (b *Battery) Load(duration time.Duration, ceilingKW, targetSoC float64) (avgPowerKW, deltaSoC float64) {
	hours := duration.Hours()
	if hours <= 0 || ceilingKW <= 0 || b.SoC >= targetSoC {
		return 0, 0
	}
	if targetSoC > 1 {
		targetSoC = 1
	}
	// Grid power above the ceiling is unreachable; the cells only see the
	// efficiency-scaled share of what is drawn.
	cc := b.ChargeCurve.Clamped(ceilingKW).Scaled(b.Efficiency)
	start := b.SoC
	end := integrate(cc, b.CapacityKWh, b.SoC, targetSoC, hours, false)
	b.SoC = end
	deltaSoC = end - start
	avgPowerKW = deltaSoC * b.CapacityKWh / b.Efficiency / hours
	return avgPowerKW, deltaSoC
}

// Unload discharges for up to duration, delivering at most ceilingKW to the
// consumer and stopping once soc drops to targetSoC. It returns the average
// delivered power and the realized soc delta (negative).
func (b *Battery) Unload(duration time.Duration, ceilingKW, targetSoC float64) (avgPowerKW, deltaSoC float64) {
	hours := duration.Hours()
	if hours <= 0 || ceilingKW <= 0 || b.SoC <= targetSoC {
		return 0, 0
	}
	if targetSoC < 0 {
		targetSoC = 0
	}
	// Losses make more energy leave the cells than reaches the consumer.
	dc := b.DischargeCurve.Clamped(ceilingKW).Scaled(1 / b.Efficiency)
	start := b.SoC
	end := integrate(dc, b.CapacityKWh, b.SoC, targetSoC, hours, true)
	b.SoC = end
	deltaSoC = end - start
	avgPowerKW = -deltaSoC * b.CapacityKWh * b.Efficiency / hours
	return avgPowerKW, deltaSoC
}

// AvailablePower probes the average power obtainable when discharging for
// duration without dropping below floorSoC. The probe runs on a clone so
// the battery itself is untouched.
func (b *Battery) AvailablePower(duration time.Duration, floorSoC float64) float64 {
	probe := b.Clone()
	p, _ := probe.Unload(duration, b.DischargeCurve.MaxPower(), floorSoC)
	return p
}

// ApplyLosses applies the passive loss descriptor for one completed step.
// The soc never drops below zero.
func (b *Battery) ApplyLosses() {
	if b.Loss == nil {
		return
	}
	b.SoC *= 1 - b.Loss.RelativePct/100
	b.SoC -= b.Loss.FixedRelativePct / 100
	b.SoC -= b.Loss.FixedAbsoluteKWh / b.CapacityKWh
	if b.SoC < 0 {
		b.SoC = 0
	}
}

// integrate walks the curve's linear segments from soc toward target and
// solves d(soc)/dt = power(soc)/capacity in closed form on each. discharge
// flips the sign of the soc movement. It returns the reached soc.
func integrate(c *curve.Curve, capacityKWh, soc, target, hours float64, discharge bool) float64 {
	remaining := hours
	points := c.Points()
	for remaining > 1e-12 {
		seg, ok := segmentAt(points, soc, discharge)
		if !ok {
			break
		}
		// Segment boundary in the direction of travel, capped by target.
		bound := seg.hi
		if discharge {
			bound = seg.lo
			if target > bound {
				bound = target
			}
		} else if target < bound {
			bound = target
		}
		m, n := seg.m, seg.n
		power := m*soc + n
		if power <= 1e-12 {
			break
		}
		sign := 1.0
		if discharge {
			sign = -1
		}
		var reached float64
		var dt float64
		if math.Abs(m) < 1e-12 {
			// Constant power: soc moves linearly.
			dt = math.Abs(bound-soc) * capacityKWh / n
			if dt > remaining {
				reached = soc + sign*n/capacityKWh*remaining
				dt = remaining
			} else {
				reached = bound
			}
		} else {
			// soc(t) = -n/m + (soc + n/m) * e^(sign*m/capacity*t)
			base := soc + n/m
			ratio := (bound + n/m) / base
			if ratio <= 0 {
				// The boundary sits on or past the zero-power asymptote
				// and is never reached in finite time.
				dt = math.Inf(1)
			} else {
				dt = capacityKWh / (sign * m) * math.Log(ratio)
			}
			if dt < 0 || dt > remaining {
				reached = -n/m + base*math.Exp(sign*m/capacityKWh*remaining)
				dt = remaining
			} else {
				reached = bound
			}
		}
		if discharge {
			if reached < target {
				reached = target
			}
			if reached >= soc {
				break
			}
		} else {
			if reached > target {
				reached = target
			}
			if reached <= soc {
				break
			}
		}
		soc = reached
		remaining -= dt
		if !discharge && soc >= target {
			break
		}
		if discharge && soc <= target {
			break
		}
	}
	return soc
}

type segment struct {
	lo, hi float64
	m, n   float64
}

// segmentAt finds the linear segment containing soc, biased toward the
// direction of travel when soc sits exactly on a breakpoint.
func segmentAt(points []curve.Point, soc float64, discharge bool) (segment, bool) {
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		inside := soc >= a.SoC && soc < b.SoC
		if discharge {
			inside = soc > a.SoC && soc <= b.SoC
		}
		if !inside {
			continue
		}
		m := (b.PowerKW - a.PowerKW) / (b.SoC - a.SoC)
		n := a.PowerKW - m*a.SoC
		return segment{lo: a.SoC, hi: b.SoC, m: m, n: n}, true
	}
	// soc exactly at the terminal breakpoint of the travel direction.
	if !discharge && soc >= points[len(points)-1].SoC {
		return segment{}, false
	}
	if discharge && soc <= points[0].SoC {
		return segment{}, false
	}
	// Off-curve soc (e.g. transiently negative): no power available.
	return segment{}, false
}
