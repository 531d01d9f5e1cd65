package app

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/evgrid/fleetsim/config"
	coremetrics "github.com/evgrid/fleetsim/core/metrics"
	"github.com/evgrid/fleetsim/core/report"
	"github.com/evgrid/fleetsim/core/scenario"
	"github.com/evgrid/fleetsim/core/sim"
	"github.com/evgrid/fleetsim/core/strategy"
	"github.com/evgrid/fleetsim/infra/logger"
	"github.com/evgrid/fleetsim/infra/metrics"
	"github.com/evgrid/fleetsim/infra/publish"
	"github.com/evgrid/fleetsim/internal/eventbus"
	"github.com/evgrid/fleetsim/pkg/export"
)

// Service wires a scenario, a strategy and the observability backends into
// one runnable simulation.
type Service struct {
	cfg    *config.Config
	scn    *scenario.Scenario
	simCfg sim.Config
	strat  strategy.Strategy
	sink   coremetrics.Sink
	bus    *eventbus.Bus
	pub    *publish.MQTTPublisher
	log    logger.Logger

	sub  <-chan eventbus.Event
	done chan struct{}
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	scn, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	simCfg := cfg.Strategy.SimConfig(scn.Interval)
	if cfg.Strategy.DischargeLimit == 0 {
		simCfg.DischargeLimit = scn.DischargeLimit
	}
	strat, err := strategy.New(cfg.Strategy.Name, simCfg, logg)
	if err != nil {
		return nil, err
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	var pub *publish.MQTTPublisher
	if cfg.Publish.Enabled {
		pub, err = publish.NewMQTTPublisher(cfg.Publish)
		if err != nil {
			return nil, fmt.Errorf("results publisher: %w", err)
		}
	}

	s := &Service{
		cfg:    cfg,
		scn:    scn,
		simCfg: simCfg,
		strat:  strat,
		sink:   sink,
		bus:    eventbus.New(),
		pub:    pub,
		log:    logg,
		done:   make(chan struct{}),
	}
	s.sub = s.bus.Subscribe()
	go s.record()
	return s, nil
}

// record forwards bus events to the metric sinks and the live publisher.
func (s *Service) record() {
	defer close(s.done)
	for e := range s.sub {
		switch ev := e.(type) {
		case sim.StepEvent:
			if err := s.sink.RecordStep(ev); err != nil {
				s.log.Warnf("record step: %v", err)
			}
			if s.pub != nil {
				if err := s.pub.PublishStep(ev); err != nil {
					s.log.Warnf("publish step: %v", err)
				}
			}
		case sim.FaultEvent:
			if err := s.sink.RecordFault(ev.Err); err != nil {
				s.log.Warnf("record fault: %v", err)
			}
		}
	}
}

// Run executes the simulation and writes the configured reports. A run that
// aborts on a feasibility fault still writes its partial results and then
// returns the fault.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	stepper, err := sim.NewStepper(s.simCfg, s.scn.Registry, s.scn.Start, s.scn.Events, s.log)
	if err != nil {
		return err
	}
	s.log.Infof("running %s over %d intervals of %s", s.strat.Name(), s.scn.NIntervals, s.scn.Interval)
	res, err := sim.Run(ctx, stepper, s.strat, s.scn.NIntervals, s.bus, s.log)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	summary := report.Build(runID, s.scn.Start, s.scn.Interval, res)
	if err := s.writeReports(summary, res); err != nil {
		return err
	}
	s.log.Infof("run %s finished: %d intervals, %d missed targets, %d negative-soc warnings",
		runID, len(res.Records), len(res.MissedTargets), len(res.NegativeSoC))
	if res.Fault != nil {
		return res.Fault
	}
	return nil
}

func (s *Service) writeReports(summary *report.Summary, res *sim.RunResult) error {
	out := s.cfg.Output
	if out.SummaryPath != "" {
		f, err := os.Create(out.SummaryPath)
		if err != nil {
			return fmt.Errorf("create summary: %w", err)
		}
		defer f.Close()
		if err := export.WriteSummaryJSON(f, summary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if out.TimeseriesPath != "" {
		f, err := os.Create(out.TimeseriesPath)
		if err != nil {
			return fmt.Errorf("create timeseries: %w", err)
		}
		defer f.Close()
		if err := export.WriteTimeseriesCSV(f, res.Records); err != nil {
			return fmt.Errorf("write timeseries: %w", err)
		}
	}
	if out.SchedulePath != "" {
		f, err := os.Create(out.SchedulePath)
		if err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}
		defer f.Close()
		if err := export.WriteScheduleCSV(f, res.Records); err != nil {
			return fmt.Errorf("write schedule: %w", err)
		}
	}
	return nil
}

// Close releases the bus, sinks and publisher.
func (s *Service) Close() error {
	s.bus.Close()
	<-s.done
	if s.pub != nil {
		s.pub.Close()
	}
	return s.sink.Close()
}
