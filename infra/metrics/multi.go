package metrics

import (
	"errors"

	coremetrics "github.com/evgrid/fleetsim/core/metrics"
	"github.com/evgrid/fleetsim/core/sim"
)

// MultiSink fans records out to several sinks, collecting all errors.
type MultiSink struct {
	sinks []coremetrics.Sink
}

// NewMultiSink combines the given sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordStep(ev sim.StepEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordStep(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordFault(err error) error {
	var errs []error
	for _, s := range m.sinks {
		if e := s.RecordFault(err); e != nil {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
