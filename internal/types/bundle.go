package types

// Bundle is the canonical in-memory shape of a decoded configuration
// payload: flat per-kind collections, child kinds keyed by the technical
// name of their owning host or template. The adapter package produces it;
// the importer and comparator consume it.
type Bundle struct {
	Groups         []Group
	Templates      []Template
	Hosts          []Host
	ValueMaps      map[string][]ValueMap
	Items          map[string][]Item
	DiscoveryRules map[string][]DiscoveryRule
	Triggers       []Trigger
	Graphs         []Graph
	HTTPTests      map[string][]HTTPTest
	Maps           []Map
	Dashboards     map[string][]Dashboard
	MediaTypes     []MediaType
	Images         []Image
}

// NewBundle returns an empty bundle with all keyed collections allocated.
func NewBundle() *Bundle {
	return &Bundle{
		ValueMaps:      map[string][]ValueMap{},
		Items:          map[string][]Item{},
		DiscoveryRules: map[string][]DiscoveryRule{},
		HTTPTests:      map[string][]HTTPTest{},
		Dashboards:     map[string][]Dashboard{},
	}
}
