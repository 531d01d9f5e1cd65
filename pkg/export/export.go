package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/evgrid/fleetsim/core/report"
	"github.com/evgrid/fleetsim/core/sim"
)

// WriteSummaryJSON writes the run summary document to w.
func WriteSummaryJSON(w io.Writer, s *report.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteTimeseriesCSV writes the per-connector timeseries, one row per
// connector per interval.
func WriteTimeseriesCSV(w io.Writer, records []sim.StepRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"step", "time", "connector", "load_kw", "max_power_kw", "price_kwh", "energy_cost"}); err != nil {
		return err
	}
	for _, rec := range records {
		for _, id := range sortedKeys(rec.Connectors) {
			cr := rec.Connectors[id]
			row := []string{
				strconv.Itoa(rec.Step),
				rec.Time.Format(time.RFC3339),
				id,
				fmtFloat(cr.LoadKW),
				fmtFloat(cr.MaxPowerKW),
				fmtFloat(cr.PriceKWh),
				fmtFloat(cr.EnergyCost),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteScheduleCSV writes the computed station schedule, one row per
// station command per interval.
func WriteScheduleCSV(w io.Writer, records []sim.StepRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"step", "time", "station", "power_kw"}); err != nil {
		return err
	}
	for _, rec := range records {
		for _, id := range sortedKeys(rec.Commands) {
			row := []string{
				strconv.Itoa(rec.Step),
				rec.Time.Format(time.RFC3339),
				id,
				fmtFloat(rec.Commands[id]),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
