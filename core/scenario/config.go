package scenario

// Raw document structs mirroring the scenario file layout. Times are kept as
// strings here and parsed during build so that JSON and YAML behave the
// same. Legacy field names are accepted as aliases next to the current ones.

// Document is the top-level scenario file.
type Document struct {
	Scenario   ScenarioSection   `json:"scenario"`
	Components *ComponentSection `json:"components"`
	// Constants is the older name for Components.
	Constants *ComponentSection `json:"constants"`
	Events    EventSection      `json:"events"`
}

// ScenarioSection carries timing and run-wide switches.
type ScenarioSection struct {
	StartTime       string  `json:"start_time"`
	IntervalMinutes int     `json:"interval"`
	NIntervals      *int    `json:"n_intervals"`
	StopTime        string  `json:"stop_time"`
	DischargeLimit  float64 `json:"discharge_limit"`
	// CoreStandingTimes are recurring daily windows in "HH:MM-HH:MM" form.
	CoreStandingTimes []string `json:"core_standing_times"`
}

// ComponentSection holds the component maps, keyed by id.
type ComponentSection struct {
	GridConnectors   map[string]GridConnectorDef   `json:"grid_connectors"`
	ChargingStations map[string]ChargingStationDef `json:"charging_stations"`
	VehicleTypes     map[string]VehicleTypeDef     `json:"vehicle_types"`
	Vehicles         map[string]VehicleDef         `json:"vehicles"`
	Batteries        map[string]BatteryDef         `json:"batteries"`
	Photovoltaics    map[string]PhotovoltaicDef    `json:"photovoltaics"`
}

// CostDef is a price model definition: fixed value or polynomial
// coefficients.
type CostDef struct {
	Type  string    `json:"type"`
	Value float64   `json:"value"`
	Coeff []float64 `json:"coefficients"`
}

// ForecastDef is the optional per-weekday average fixed-load table.
type ForecastDef struct {
	SlotDurationMinutes int `json:"slot_duration_minutes"`
	// Values holds seven rows, Sunday first, one average load per slot.
	Values [][]float64 `json:"values"`
}

// GridConnectorDef defines one grid connection point.
type GridConnectorDef struct {
	MaxPowerKW    float64      `json:"max_power"`
	CurMaxPowerKW *float64     `json:"cur_max_power"`
	Cost          *CostDef     `json:"cost"`
	Target        *float64     `json:"target"`
	Window        *bool        `json:"window"`
	Forecast      *ForecastDef `json:"forecast"`
	VoltageLevel  string       `json:"voltage_level"`
	GridOperator  string       `json:"grid_operator"`
}

// ChargingStationDef defines one charging point.
type ChargingStationDef struct {
	MaxPowerKW float64 `json:"max_power"`
	MinPowerKW float64 `json:"min_power"`
	Parent     string  `json:"parent"`
}

// LossRateDef mirrors battery.LossRate.
type LossRateDef struct {
	RelativePct      float64 `json:"relative"`
	FixedRelativePct float64 `json:"fixed_relative"`
	FixedAbsoluteKWh float64 `json:"fixed_absolute"`
}

// VehicleTypeDef is an immutable vehicle template.
type VehicleTypeDef struct {
	Name             string       `json:"name"`
	CapacityKWh      float64      `json:"capacity"`
	ChargingCurve    [][]float64  `json:"charging_curve"`
	DischargingCurve [][]float64  `json:"discharging_curve"`
	MinPowerKW       float64      `json:"min_charging_power"`
	Efficiency       float64      `json:"efficiency"`
	V2G              bool         `json:"v2g"`
	V2GPowerFactor   float64      `json:"v2g_power_factor"`
	LossRate         *LossRateDef `json:"loss_rate"`
}

// VehicleDef is one fleet member.
type VehicleDef struct {
	VehicleType        string  `json:"vehicle_type"`
	SoC                float64 `json:"soc"`
	DesiredSoC         float64 `json:"desired_soc"`
	ConnectedStation   string  `json:"connected_charging_station"`
	EstimatedArrival   string  `json:"estimated_time_of_arrival"`
	EstimatedDeparture string  `json:"estimated_time_of_departure"`
}

// BatteryDef is a stationary battery. A capacity at or below zero means
// effectively unbounded.
type BatteryDef struct {
	CapacityKWh      float64      `json:"capacity"`
	SoC              float64      `json:"soc"`
	ChargingCurve    [][]float64  `json:"charging_curve"`
	DischargingCurve [][]float64  `json:"discharging_curve"`
	MinPowerKW       float64      `json:"min_charging_power"`
	Efficiency       float64      `json:"efficiency"`
	Parent           string       `json:"parent"`
	LossRate         *LossRateDef `json:"loss_rate"`
}

// PhotovoltaicDef is a local generation unit.
type PhotovoltaicDef struct {
	Parent         string  `json:"parent"`
	NominalPowerKW float64 `json:"nominal_power"`
}

// EventSection references the event inputs.
type EventSection struct {
	FixedLoad map[string]SeriesRef `json:"fixed_load"`
	// ExternalLoad is the older name for FixedLoad.
	ExternalLoad    map[string]SeriesRef `json:"external_load"`
	LocalGeneration map[string]SeriesRef `json:"local_generation"`
	// EnergyFeedIn is the older name for LocalGeneration.
	EnergyFeedIn        map[string]SeriesRef `json:"energy_feed_in"`
	GridOperatorSignals []OperatorSignalDef  `json:"grid_operator_signals"`
	VehicleEvents       []VehicleEventDef    `json:"vehicle_events"`
}

// SeriesRef points at one column of a time-series CSV file.
type SeriesRef struct {
	CSVFile         string `json:"csv_file"`
	StartTime       string `json:"start_time"`
	StepDurationS   int    `json:"step_duration_s"`
	GridConnectorID string `json:"grid_connector_id"`
	Column          string `json:"column"`
}

// OperatorSignalDef is either a literal signal or a CSV price/schedule
// series.
type OperatorSignalDef struct {
	// Literal fields.
	SignalTime      string   `json:"signal_time"`
	StartTime       string   `json:"start_time"`
	GridConnectorID string   `json:"grid_connector_id"`
	Cost            *CostDef `json:"cost"`
	Target          *float64 `json:"target"`
	Window          *bool    `json:"window"`
	MaxPowerKW      *float64 `json:"max_power"`

	// CSV fields; Kind selects "price" or "schedule".
	CSVFile       string  `json:"csv_file"`
	StepDurationS int     `json:"step_duration_s"`
	Column        string  `json:"column"`
	Kind          string  `json:"kind"`
	SignalLeadH   float64 `json:"signal_lead_hours"`
}

// VehicleEventDef is a literal arrival or departure record.
type VehicleEventDef struct {
	SignalTime string           `json:"signal_time"`
	StartTime  string           `json:"start_time"`
	VehicleID  string           `json:"vehicle_id"`
	EventType  string           `json:"event_type"`
	Update     VehicleUpdateDef `json:"update"`
}

// VehicleUpdateDef carries the optional vehicle field updates.
type VehicleUpdateDef struct {
	DesiredSoC         *float64 `json:"desired_soc"`
	ConnectedStation   *string  `json:"connected_charging_station"`
	EstimatedArrival   string   `json:"estimated_time_of_arrival"`
	EstimatedDeparture string   `json:"estimated_time_of_departure"`
	SoCDelta           float64  `json:"soc_delta"`
}
