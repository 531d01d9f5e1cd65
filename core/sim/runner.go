package sim

import (
	"context"
	"errors"
	"time"

	"github.com/evgrid/fleetsim/core/logger"
	"github.com/evgrid/fleetsim/internal/eventbus"
)

// Policy is the strategy contract as seen by the run loop: one allocation
// per interval, run strictly after event application.
type Policy interface {
	Name() string
	Step(*Stepper) (map[string]float64, error)
}

// ConnectorRecord is a per-connector snapshot of one completed interval.
type ConnectorRecord struct {
	LoadKW     float64 `json:"load_kw"`
	MaxPowerKW float64 `json:"max_power_kw"`
	PriceKWh   float64 `json:"price_kwh"`
	// EnergyCost is the cost of the energy drawn this interval.
	EnergyCost float64 `json:"energy_cost"`
}

// StepRecord captures one completed interval for reporting.
type StepRecord struct {
	Step       int                        `json:"step"`
	Time       time.Time                  `json:"time"`
	Commands   map[string]float64         `json:"commands"`
	VehicleSoC map[string]float64         `json:"vehicle_soc"`
	Connectors map[string]ConnectorRecord `json:"connectors"`
}

// StepEvent is published on the bus after every completed interval.
type StepEvent struct {
	Strategy string
	Record   StepRecord
}

// FaultEvent is published when the run aborts.
type FaultEvent struct {
	Err error
}

// RunResult is everything a run produces. When Fault is set the run aborted
// at the failing step and Records holds only the completed intervals.
type RunResult struct {
	Strategy      string
	Records       []StepRecord
	NegativeSoC   []Occurrence
	MissedTargets []Occurrence
	Aborted       bool
	Fault         error
}

// Run executes the full simulation. Configuration faults return an error;
// feasibility violations and physically impossible states abort the run but
// keep the results computed so far.
func Run(ctx context.Context, s *Stepper, p Policy, nIntervals int, bus eventbus.EventBus, log logger.Logger) (*RunResult, error) {
	res := &RunResult{Strategy: p.Name()}
	abort := func(err error) {
		res.Aborted = true
		res.Fault = err
		if log != nil {
			log.Errorf("run aborted at step %d: %v", s.StepIndex, err)
		}
		if bus != nil {
			bus.Publish(FaultEvent{Err: err})
		}
	}
	for i := 0; i < nIntervals; i++ {
		if err := ctx.Err(); err != nil {
			abort(err)
			break
		}
		if err := s.Step(nil); err != nil {
			if errors.Is(err, ErrConfig) {
				return nil, err
			}
			abort(err)
			break
		}
		cmds, err := p.Step(s)
		if err != nil {
			if errors.Is(err, ErrConfig) {
				return nil, err
			}
			abort(err)
			break
		}
		if err := s.FinishStep(); err != nil {
			abort(err)
			break
		}
		rec := snapshot(s, cmds)
		res.Records = append(res.Records, rec)
		if bus != nil {
			bus.Publish(StepEvent{Strategy: p.Name(), Record: rec})
		}
	}
	res.NegativeSoC = s.NegativeSoC
	res.MissedTargets = s.MissedTargets
	return res, nil
}

func snapshot(s *Stepper, cmds map[string]float64) StepRecord {
	rec := StepRecord{
		Step:       s.StepIndex,
		Time:       s.CurrentTime,
		Commands:   cmds,
		VehicleSoC: make(map[string]float64, len(s.World.Vehicles)),
		Connectors: make(map[string]ConnectorRecord, len(s.World.GridConnectors)),
	}
	for id, v := range s.World.Vehicles {
		rec.VehicleSoC[id] = v.Battery.SoC
	}
	hours := s.Cfg.Interval.Hours()
	for id, gc := range s.World.GridConnectors {
		load := gc.TotalLoad(s.generationKeys)
		price := gc.Price.PricePerKWh(load)
		cost := 0.0
		if load > 0 {
			cost = load * hours * price
		}
		rec.Connectors[id] = ConnectorRecord{
			LoadKW:     load,
			MaxPowerKW: gc.CurMaxPowerKW,
			PriceKWh:   price,
			EnergyCost: cost,
		}
	}
	return rec
}
