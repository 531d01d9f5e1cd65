package metrics

import (
	"net/http"

	coremetrics "github.com/evgrid/fleetsim/core/metrics"
	"github.com/evgrid/fleetsim/core/sim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromSink exposes per-step simulation state as Prometheus metrics.
type PromSink struct {
	connectorLoad *prometheus.GaugeVec
	connectorMax  *prometheus.GaugeVec
	stationPower  *prometheus.GaugeVec
	vehicleSoC    *prometheus.GaugeVec
	steps         prometheus.Counter
	faults        prometheus.Counter
}

// NewPromSink registers the simulation metrics on the default registerer.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer. A
// nil registerer defaults to the global one.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		connectorLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sim_connector_load_kw",
			Help: "Aggregate load per grid connector",
		}, []string{"connector"}),
		connectorMax: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sim_connector_max_power_kw",
			Help: "Current capacity per grid connector",
		}, []string{"connector"}),
		stationPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sim_station_power_kw",
			Help: "Commanded power per charging station",
		}, []string{"station"}),
		vehicleSoC: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sim_vehicle_soc",
			Help: "State of charge per vehicle",
		}, []string{"vehicle"}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_steps_total",
			Help: "Completed simulation intervals",
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_faults_total",
			Help: "Simulation-ending faults",
		}),
	}
	for _, c := range []prometheus.Collector{s.connectorLoad, s.connectorMax, s.stationPower, s.vehicleSoC, s.steps, s.faults} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return s, nil
}

// RecordStep updates the gauges from a completed interval.
func (s *PromSink) RecordStep(ev sim.StepEvent) error {
	for id, cr := range ev.Record.Connectors {
		s.connectorLoad.WithLabelValues(id).Set(cr.LoadKW)
		s.connectorMax.WithLabelValues(id).Set(cr.MaxPowerKW)
	}
	for id, p := range ev.Record.Commands {
		s.stationPower.WithLabelValues(id).Set(p)
	}
	for id, soc := range ev.Record.VehicleSoC {
		s.vehicleSoC.WithLabelValues(id).Set(soc)
	}
	s.steps.Inc()
	return nil
}

// RecordFault counts a simulation-ending fault.
func (s *PromSink) RecordFault(error) error {
	s.faults.Inc()
	return nil
}

// Close implements the Sink interface.
func (s *PromSink) Close() error { return nil }

// StartPromServer serves the default registry on the given port. It blocks.
func StartPromServer(port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(":"+port, mux)
}
