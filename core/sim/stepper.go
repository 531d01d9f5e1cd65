package sim

import (
	"fmt"
	"time"

	"github.com/evgrid/fleetsim/core/components"
	"github.com/evgrid/fleetsim/core/events"
	"github.com/evgrid/fleetsim/core/logger"
)

// Config carries the per-run tolerances and switches shared by the stepper
// and the strategies.
type Config struct {
	Interval time.Duration
	// EPS is the numeric tolerance for power bounds and soc comparisons.
	EPS float64
	// PriceThreshold marks energy at or below this price as free.
	PriceThreshold float64
	// Margin widens the missed-target check: a departure counts as missed
	// when soc < (1-Margin)*desired.
	Margin float64
	// DischargeLimit is the soc floor for V2G discharge.
	DischargeLimit float64
	// Horizon bounds strategy look-ahead.
	Horizon time.Duration
	// AllowNegativeSoC downgrades a negative arrival soc from fatal to a
	// recorded warning; ClampNegativeSoC additionally resets the soc to 0.
	AllowNegativeSoC bool
	ClampNegativeSoC bool
	// VehicleOrder selects the iteration order over connected vehicles:
	// "id", "departure" or "need".
	VehicleOrder string
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.EPS == 0 {
		c.EPS = 1e-5
	}
	if c.Margin == 0 {
		c.Margin = 0.05
	}
	if c.Horizon == 0 {
		c.Horizon = 24 * time.Hour
	}
	if c.VehicleOrder == "" {
		c.VehicleOrder = "id"
	}
}

// Validate checks the switches.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrConfig)
	}
	switch c.VehicleOrder {
	case "id", "departure", "need":
	default:
		return fmt.Errorf("%w: unknown vehicle order %q", ErrConfig, c.VehicleOrder)
	}
	return nil
}

// Stepper owns the mutable world state and advances it one interval at a
// time. Events mutate the component registry; the active strategy then
// writes fresh load entries which FinishStep verifies.
type Stepper struct {
	Cfg         Config
	World       *components.Registry
	Queue       *events.Queue
	CurrentTime time.Time
	StepIndex   int

	// NegativeSoC and MissedTargets collect recovered incidents.
	NegativeSoC   []Occurrence
	MissedTargets []Occurrence

	generationKeys map[string]bool
	log            logger.Logger
}

// NewStepper deep-clones the registry into an owned world state and loads
// the initial event queue.
func NewStepper(cfg Config, reg *components.Registry, start time.Time, evs []events.Event, log logger.Logger) (*Stepper, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Stepper{
		Cfg:            cfg,
		World:          reg.Clone(),
		Queue:          events.NewQueue(evs...),
		CurrentTime:    start,
		generationKeys: reg.GenerationKeys(),
		log:            log,
	}
	return s, nil
}

// GenerationKeys returns the load-map keys excluded from the connector
// capacity check.
func (s *Stepper) GenerationKeys() map[string]bool { return s.generationKeys }

// Step advances time by one interval, applies due events and clears the
// station and battery load entries so the strategy can rebuild them.
func (s *Stepper) Step(newEvents []events.Event) error {
	s.CurrentTime = s.CurrentTime.Add(s.Cfg.Interval)
	s.StepIndex++
	if len(newEvents) > 0 {
		s.Queue.Push(newEvents...)
	}
	for _, ev := range s.Queue.PopDue(s.CurrentTime) {
		if err := s.apply(ev); err != nil {
			return err
		}
	}
	s.clearControlledLoads()
	for id, gc := range s.World.GridConnectors {
		if gc.Price.Empty() && gc.Target == nil {
			return fmt.Errorf("%w: connector %s has neither cost model nor schedule target at step %d", ErrConfig, id, s.StepIndex)
		}
	}
	return nil
}

// FinishStep runs the post-strategy invariant checks and applies passive
// battery losses for the completed interval.
func (s *Stepper) FinishStep() error {
	for id, cs := range s.World.ChargingStations {
		if cs.CurrentPowerKW > cs.MaxPowerKW+s.Cfg.EPS {
			return &FeasibilityError{
				ConnectorID: cs.ParentGC, StationID: id,
				Step: s.StepIndex, Time: s.CurrentTime,
				LoadKW: cs.CurrentPowerKW, LimitKW: cs.MaxPowerKW,
			}
		}
	}
	for id, gc := range s.World.GridConnectors {
		if !gc.WithinLimit(s.generationKeys, s.Cfg.EPS) {
			return &FeasibilityError{
				ConnectorID: id,
				Step:        s.StepIndex, Time: s.CurrentTime,
				LoadKW: gc.TotalLoad(s.generationKeys), LimitKW: gc.CurMaxPowerKW,
			}
		}
	}
	for _, v := range s.World.Vehicles {
		v.Battery.ApplyLosses()
	}
	for _, sb := range s.World.Batteries {
		sb.Battery.ApplyLosses()
	}
	return nil
}

func (s *Stepper) apply(ev events.Event) error {
	switch e := ev.(type) {
	case events.FixedLoad:
		gc, ok := s.World.GridConnectors[e.GridConnectorID]
		if !ok {
			return fmt.Errorf("%w: fixed load %q references unknown connector %s", ErrConfig, e.Name, e.GridConnectorID)
		}
		gc.CurrentLoads[e.Name] = e.ValueKW
	case events.LocalGeneration:
		gc, ok := s.World.GridConnectors[e.GridConnectorID]
		if !ok {
			return fmt.Errorf("%w: local generation %q references unknown connector %s", ErrConfig, e.Name, e.GridConnectorID)
		}
		gc.CurrentLoads[e.Name] = -e.ValueKW
		s.generationKeys[e.Name] = true
	case events.GridOperatorSignal:
		gc, ok := s.World.GridConnectors[e.GridConnectorID]
		if !ok {
			return fmt.Errorf("%w: operator signal references unknown connector %s", ErrConfig, e.GridConnectorID)
		}
		ApplyOperatorSignal(gc, e)
	case events.VehicleEvent:
		return s.applyVehicleEvent(e)
	default:
		return fmt.Errorf("%w: unknown event type %T", ErrConfig, ev)
	}
	return nil
}

// ApplyOperatorSignal updates a connector from an operator signal. It is
// shared with the strategies' horizon replay so look-ahead and live stepping
// agree on the semantics.
func ApplyOperatorSignal(gc *components.GridConnector, e events.GridOperatorSignal) {
	if e.Cost != nil {
		gc.Price = *e.Cost
	}
	if e.Target != nil {
		t := *e.Target
		gc.Target = &t
	}
	if e.Window != nil {
		w := *e.Window
		gc.Window = &w
	}
	limit := e.MaxPowerKW
	if limit == nil {
		limit = e.CapacityKW
	}
	if limit != nil {
		p := *limit
		if gc.MaxPowerKW > 0 && p > gc.MaxPowerKW {
			p = gc.MaxPowerKW
		}
		gc.CurMaxPowerKW = p
	}
}

func (s *Stepper) applyVehicleEvent(e events.VehicleEvent) error {
	v, ok := s.World.Vehicles[e.VehicleID]
	if !ok {
		return fmt.Errorf("%w: event for unknown vehicle %s", ErrConfig, e.VehicleID)
	}
	switch e.Kind {
	case events.Arrival:
		if u := e.Update.DesiredSoC; u != nil {
			v.DesiredSoC = *u
		}
		if u := e.Update.ConnectedStation; u != nil {
			v.ConnectedStation = *u
		}
		if u := e.Update.EstimatedArrival; u != nil {
			t := *u
			v.EstimatedArrival = &t
		}
		if u := e.Update.EstimatedDeparture; u != nil {
			t := *u
			v.EstimatedDeparture = &t
		}
		v.Battery.SoC += e.SoCDelta
		if v.Battery.SoC < -s.Cfg.EPS {
			occ := Occurrence{Time: s.CurrentTime, VehicleID: e.VehicleID, SoC: v.Battery.SoC}
			if !s.Cfg.AllowNegativeSoC {
				s.NegativeSoC = append(s.NegativeSoC, occ)
				return fmt.Errorf("vehicle %s arrives with negative soc %.4f at step %d", e.VehicleID, v.Battery.SoC, s.StepIndex)
			}
			s.NegativeSoC = append(s.NegativeSoC, occ)
			if s.log != nil {
				s.log.Warnf("vehicle %s arrives with negative soc %.4f", e.VehicleID, v.Battery.SoC)
			}
			if s.Cfg.ClampNegativeSoC {
				v.Battery.SoC = 0
			}
		}
	case events.Departure:
		v.ConnectedStation = ""
		if v.Battery.SoC < (1-s.Cfg.Margin)*v.DesiredSoC {
			occ := Occurrence{Time: s.CurrentTime, VehicleID: e.VehicleID, SoC: v.Battery.SoC, DesiredSoC: v.DesiredSoC}
			s.MissedTargets = append(s.MissedTargets, occ)
			if s.log != nil {
				s.log.Warnf("vehicle %s departs at soc %.3f below desired %.3f", e.VehicleID, v.Battery.SoC, v.DesiredSoC)
			}
		}
	default:
		return fmt.Errorf("%w: unknown vehicle event kind %q", ErrConfig, e.Kind)
	}
	return nil
}

// clearControlledLoads removes station and stationary battery entries from
// every connector; the strategy rebuilds them during its own step.
func (s *Stepper) clearControlledLoads() {
	for _, gc := range s.World.GridConnectors {
		for id := range s.World.ChargingStations {
			delete(gc.CurrentLoads, id)
		}
		for id := range s.World.Batteries {
			delete(gc.CurrentLoads, id)
		}
	}
	for _, cs := range s.World.ChargingStations {
		cs.CurrentPowerKW = 0
	}
}
