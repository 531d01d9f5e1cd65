package strategy

import (
	"fmt"

	"github.com/evgrid/fleetsim/core/logger"
	"github.com/evgrid/fleetsim/core/sim"
)

// Strategy decides, once per interval, how much power every charging station
// draws. Step runs strictly after the stepper has applied due events and
// returns the per-station command map it wrote into the world state.
type Strategy interface {
	Name() string
	Step(w *sim.Stepper) (map[string]float64, error)
}

// New builds the named strategy. The set of strategies is a closed
// enumeration; unknown names are a configuration fault.
func New(name string, cfg sim.Config, log logger.Logger) (Strategy, error) {
	switch name {
	case "greedy":
		return &Greedy{cfg: cfg, log: log}, nil
	case "balanced":
		return &Balanced{cfg: cfg, log: log}, nil
	case "balanced_market":
		return &BalancedMarket{cfg: cfg, log: log}, nil
	case "flex_window":
		return &FlexWindow{cfg: cfg, log: log}, nil
	case "peak_shaving":
		return &PeakShaving{cfg: cfg, log: log}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", sim.ErrConfig, name)
	}
}

// Names lists the registered strategy names.
func Names() []string {
	return []string{"greedy", "balanced", "balanced_market", "flex_window", "peak_shaving"}
}
