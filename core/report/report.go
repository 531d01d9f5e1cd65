package report

import (
	"time"

	"github.com/evgrid/fleetsim/core/sim"
)

// ConnectorSummary aggregates one connector over the whole run.
type ConnectorSummary struct {
	EnergyDrawnKWh float64 `json:"energy_drawn_kwh"`
	EnergyFedKWh   float64 `json:"energy_fed_kwh"`
	PeakLoadKW     float64 `json:"peak_load_kw"`
	AvgLoadKW      float64 `json:"avg_load_kw"`
	TotalCost      float64 `json:"total_cost"`
}

// Summary is the run-level JSON document handed to reporting consumers.
type Summary struct {
	RunID         string                      `json:"run_id"`
	Strategy      string                      `json:"strategy"`
	Start         time.Time                   `json:"start"`
	End           time.Time                   `json:"end"`
	Intervals     int                         `json:"intervals"`
	Aborted       bool                        `json:"aborted"`
	Fault         string                      `json:"fault,omitempty"`
	Connectors    map[string]ConnectorSummary `json:"connectors"`
	NegativeSoC   []sim.Occurrence            `json:"negative_soc"`
	MissedTargets []sim.Occurrence            `json:"missed_targets"`
	FinalSoC      map[string]float64          `json:"final_soc"`
}

// Build aggregates a run result into a summary document.
func Build(runID string, start time.Time, interval time.Duration, res *sim.RunResult) *Summary {
	s := &Summary{
		RunID:         runID,
		Strategy:      res.Strategy,
		Start:         start,
		Intervals:     len(res.Records),
		Aborted:       res.Aborted,
		Connectors:    make(map[string]ConnectorSummary),
		NegativeSoC:   res.NegativeSoC,
		MissedTargets: res.MissedTargets,
		FinalSoC:      make(map[string]float64),
	}
	if res.Fault != nil {
		s.Fault = res.Fault.Error()
	}
	s.End = start.Add(time.Duration(len(res.Records)) * interval)

	hours := interval.Hours()
	counts := make(map[string]int)
	for _, rec := range res.Records {
		for id, cr := range rec.Connectors {
			cs := s.Connectors[id]
			if cr.LoadKW > 0 {
				cs.EnergyDrawnKWh += cr.LoadKW * hours
			} else {
				cs.EnergyFedKWh += -cr.LoadKW * hours
			}
			if cr.LoadKW > cs.PeakLoadKW {
				cs.PeakLoadKW = cr.LoadKW
			}
			cs.AvgLoadKW += cr.LoadKW
			cs.TotalCost += cr.EnergyCost
			s.Connectors[id] = cs
			counts[id]++
		}
		for id, soc := range rec.VehicleSoC {
			s.FinalSoC[id] = soc
		}
	}
	for id, n := range counts {
		if n > 0 {
			cs := s.Connectors[id]
			cs.AvgLoadKW /= float64(n)
			s.Connectors[id] = cs
		}
	}
	return s
}
