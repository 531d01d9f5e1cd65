package metrics

import "github.com/evgrid/fleetsim/core/sim"

// Sink records simulation progress for observability backends.
type Sink interface {
	RecordStep(ev sim.StepEvent) error
	RecordFault(err error) error
	Close() error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordStep(sim.StepEvent) error { return nil }
func (NopSink) RecordFault(error) error        { return nil }
func (NopSink) Close() error                   { return nil }
