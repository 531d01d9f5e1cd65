package components

// Registry owns all simulated components, keyed by id. Relationships between
// components are id references into these maps, never shared pointers.
type Registry struct {
	GridConnectors   map[string]*GridConnector
	ChargingStations map[string]*ChargingStation
	VehicleTypes     map[string]*VehicleType
	Vehicles         map[string]*Vehicle
	Batteries        map[string]*StationaryBattery
	Photovoltaics    map[string]*Photovoltaic
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		GridConnectors:   make(map[string]*GridConnector),
		ChargingStations: make(map[string]*ChargingStation),
		VehicleTypes:     make(map[string]*VehicleType),
		Vehicles:         make(map[string]*Vehicle),
		Batteries:        make(map[string]*StationaryBattery),
		Photovoltaics:    make(map[string]*Photovoltaic),
	}
}

// Clone returns a deep copy of the registry. Vehicle types are immutable and
// shared between the copies.
func (r *Registry) Clone() *Registry {
	cp := NewRegistry()
	for id, gc := range r.GridConnectors {
		cp.GridConnectors[id] = gc.Clone()
	}
	for id, cs := range r.ChargingStations {
		cp.ChargingStations[id] = cs.Clone()
	}
	for id, vt := range r.VehicleTypes {
		cp.VehicleTypes[id] = vt
	}
	for id, v := range r.Vehicles {
		cp.Vehicles[id] = v.Clone()
	}
	for id, sb := range r.Batteries {
		cp.Batteries[id] = sb.Clone()
	}
	for id, pv := range r.Photovoltaics {
		cp.Photovoltaics[id] = pv.Clone()
	}
	return cp
}

// GenerationKeys returns the load-map keys of all local generation sources,
// which are excluded from the connector capacity check.
func (r *Registry) GenerationKeys() map[string]bool {
	keys := make(map[string]bool, len(r.Photovoltaics))
	for id := range r.Photovoltaics {
		keys[id] = true
	}
	return keys
}
