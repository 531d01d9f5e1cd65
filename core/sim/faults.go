package sim

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfig marks faults detected before or while wiring the simulation:
// unknown references, malformed curves, connectors with neither cost nor
// schedule. Config faults abort the run before any interval executes.
var ErrConfig = errors.New("configuration fault")

// FeasibilityError reports a violated power bound. The run is marked aborted
// at the failing step; results up to that point stay available.
type FeasibilityError struct {
	ConnectorID string
	StationID   string
	Step        int
	Time        time.Time
	LoadKW      float64
	LimitKW     float64
}

func (e *FeasibilityError) Error() string {
	where := "connector " + e.ConnectorID
	if e.StationID != "" {
		where = "station " + e.StationID
	}
	return fmt.Sprintf("%s exceeds limit at step %d (%s): %.3f kW > %.3f kW",
		where, e.Step, e.Time.Format(time.RFC3339), e.LoadKW, e.LimitKW)
}

// Occurrence is a recovered per-vehicle incident kept for post-run
// inspection.
type Occurrence struct {
	Time      time.Time `json:"time"`
	VehicleID string    `json:"vehicle_id"`
	SoC       float64   `json:"soc"`
	// DesiredSoC is set for missed-target occurrences.
	DesiredSoC float64 `json:"desired_soc,omitempty"`
}
