// Package types defines the entity records that make up a configuration
// bundle: the decoded payload exported from one monitoring instance and
// imported into another.
//
// Records are produced once by the adapter package and are read-only
// afterwards, except for reference fields the importer fills in while
// resolving natural keys to store ids.
package types

// ItemType classifies how an item collects its value. Only a subset of
// types changes importer behavior: dependent items form master chains and
// HTTP agent items get their header lists folded by the adapter.
type ItemType string

const (
	ItemTypeAgent      ItemType = "agent"
	ItemTypeTrapper    ItemType = "trapper"
	ItemTypeSimple     ItemType = "simple"
	ItemTypeInternal   ItemType = "internal"
	ItemTypeExternal   ItemType = "external"
	ItemTypeCalculated ItemType = "calculated"
	ItemTypeSNMP       ItemType = "snmp"
	ItemTypeHTTPAgent  ItemType = "http_agent"
	ItemTypeDependent  ItemType = "dependent"
	ItemTypeScript     ItemType = "script"
)

// Identity is how a bundle record is matched against store rows: by a
// stable UUID when the record carries one, otherwise by its natural key.
// UUID identity is authoritative when present.
type Identity struct {
	UUID string
	Key  string
}

// ByUUID returns a UUID identity.
func ByUUID(uuid string) Identity { return Identity{UUID: uuid} }

// ByNaturalKey returns a natural-key identity.
func ByNaturalKey(key string) Identity { return Identity{Key: key} }

// HasUUID reports whether the identity carries a UUID.
func (id Identity) HasUUID() bool { return id.UUID != "" }

// Macro is a user macro attached to a template, host or host prototype.
type Macro struct {
	Macro       string `yaml:"macro"`
	Value       string `yaml:"value,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Group is a host group.
type Group struct {
	UUID string `yaml:"uuid,omitempty"`
	Name string `yaml:"name"`
}

// Template is a container for template-owned objects. Host is the technical
// name used as the container namespace key; Name is the visible name.
type Template struct {
	UUID   string            `yaml:"uuid,omitempty"`
	Host   string            `yaml:"template"`
	Name   string            `yaml:"name,omitempty"`
	Groups []string          `yaml:"groups,omitempty"`
	Linked []string          `yaml:"templates,omitempty"`
	Macros []Macro           `yaml:"macros,omitempty"`
	Extra  map[string]string `yaml:"-"`
}

// Host is a monitored host. Hosts have no durable UUID across instances;
// they are always matched by technical name.
type Host struct {
	Host   string            `yaml:"host"`
	Name   string            `yaml:"name,omitempty"`
	Groups []string          `yaml:"groups,omitempty"`
	Linked []string          `yaml:"templates,omitempty"`
	Macros []Macro           `yaml:"macros,omitempty"`
	Proxy  string            `yaml:"proxy,omitempty"`
	Extra  map[string]string `yaml:"-"`
}

// ItemRef names an item by its owner and key.
type ItemRef struct {
	Host string `yaml:"host"`
	Key  string `yaml:"key"`
}

// Item is a data collection point owned by exactly one host or template.
// The same shape is used for item prototypes under a discovery rule.
type Item struct {
	UUID      string            `yaml:"uuid,omitempty"`
	Key       string            `yaml:"key"`
	Name      string            `yaml:"name,omitempty"`
	Type      ItemType          `yaml:"type,omitempty"`
	ValueMap  string            `yaml:"valuemap,omitempty"`
	MasterKey string            `yaml:"master_item,omitempty"`
	Interface string            `yaml:"interface_ref,omitempty"`
	Extra     map[string]string `yaml:"-"`
}

// TriggerRef is the composite natural key of a trigger.
type TriggerRef struct {
	Name               string `yaml:"name"`
	Expression         string `yaml:"expression"`
	RecoveryExpression string `yaml:"recovery_expression,omitempty"`
}

// Trigger is a problem condition over item values. Triggers referencing
// items on several hosts are owned by all of them.
type Trigger struct {
	UUID               string            `yaml:"uuid,omitempty"`
	Name               string            `yaml:"name"`
	Expression         string            `yaml:"expression"`
	RecoveryExpression string            `yaml:"recovery_expression,omitempty"`
	Dependencies       []TriggerRef      `yaml:"dependencies,omitempty"`
	Extra              map[string]string `yaml:"-"`
}

// Ref returns the trigger's composite natural key.
func (t Trigger) Ref() TriggerRef {
	return TriggerRef{Name: t.Name, Expression: t.Expression, RecoveryExpression: t.RecoveryExpression}
}

// GraphItem is one plotted line of a graph.
type GraphItem struct {
	Item      ItemRef `yaml:"item"`
	Color     string  `yaml:"color,omitempty"`
	SortOrder int     `yaml:"sortorder,omitempty"`
}

// Graph plots one or more items, possibly across hosts.
type Graph struct {
	UUID     string            `yaml:"uuid,omitempty"`
	Name     string            `yaml:"name"`
	YMinItem *ItemRef          `yaml:"ymin_item,omitempty"`
	YMaxItem *ItemRef          `yaml:"ymax_item,omitempty"`
	Items    []GraphItem       `yaml:"graph_items,omitempty"`
	Extra    map[string]string `yaml:"-"`
}

// Hosts returns the technical names of every host the graph references
// through its items and axis bounds, deduplicated in reference order.
func (g Graph) Hosts() []string {
	seen := map[string]struct{}{}
	var hosts []string
	put := func(h string) {
		if h == "" {
			return
		}
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			hosts = append(hosts, h)
		}
	}
	for _, gi := range g.Items {
		put(gi.Item.Host)
	}
	if g.YMinItem != nil {
		put(g.YMinItem.Host)
	}
	if g.YMaxItem != nil {
		put(g.YMaxItem.Host)
	}
	return hosts
}

// HostPrototype is instantiated into concrete hosts by discovery.
type HostPrototype struct {
	UUID            string   `yaml:"uuid,omitempty"`
	Host            string   `yaml:"host"`
	Name            string   `yaml:"name,omitempty"`
	GroupLinks      []string `yaml:"group_links,omitempty"`
	GroupPrototypes []string `yaml:"group_prototypes,omitempty"`
	Templates       []string `yaml:"templates,omitempty"`
	Macros          []Macro  `yaml:"macros,omitempty"`
}

// DiscoveryRule discovers entities and owns the prototypes instantiated
// for each of them. A rule shares the item key namespace of its host.
type DiscoveryRule struct {
	UUID              string            `yaml:"uuid,omitempty"`
	Key               string            `yaml:"key"`
	Name              string            `yaml:"name,omitempty"`
	Type              ItemType          `yaml:"type,omitempty"`
	MasterKey         string            `yaml:"master_item,omitempty"`
	Interface         string            `yaml:"interface_ref,omitempty"`
	ItemPrototypes    []Item            `yaml:"item_prototypes,omitempty"`
	TriggerPrototypes []Trigger         `yaml:"trigger_prototypes,omitempty"`
	GraphPrototypes   []Graph           `yaml:"graph_prototypes,omitempty"`
	HostPrototypes    []HostPrototype   `yaml:"host_prototypes,omitempty"`
	OverrideTemplates []string          `yaml:"override_templates,omitempty"`
	Extra             map[string]string `yaml:"-"`
}

// ValueMapping is one mapping row of a value map.
type ValueMapping struct {
	Type     string `yaml:"type,omitempty"`
	Value    string `yaml:"value"`
	NewValue string `yaml:"newvalue"`
}

// ValueMap translates raw item values for display. Value maps are owned by
// one host or template and addressed by name within it.
type ValueMap struct {
	UUID     string         `yaml:"uuid,omitempty"`
	Name     string         `yaml:"name"`
	Mappings []ValueMapping `yaml:"mappings,omitempty"`
}

// HTTPStep is one step of a web scenario. Attempts is normalized from the
// older "retries" field name by the adapter.
type HTTPStep struct {
	Name     string            `yaml:"name"`
	URL      string            `yaml:"url,omitempty"`
	Attempts int               `yaml:"attempts,omitempty"`
	Extra    map[string]string `yaml:"-"`
}

// HTTPTest is a web scenario owned by one host or template.
type HTTPTest struct {
	UUID  string            `yaml:"uuid,omitempty"`
	Name  string            `yaml:"name"`
	Steps []HTTPStep        `yaml:"steps,omitempty"`
	Extra map[string]string `yaml:"-"`
}

// MapElementType discriminates what a map element points at.
type MapElementType string

const (
	MapElementHost    MapElementType = "host"
	MapElementGroup   MapElementType = "group"
	MapElementMap     MapElementType = "map"
	MapElementTrigger MapElementType = "trigger"
	MapElementImage   MapElementType = "image"
)

// MapElement is one selectable element on a map. Which reference field is
// meaningful depends on Type.
type MapElement struct {
	Type     MapElementType `yaml:"type"`
	Host     string         `yaml:"host,omitempty"`
	Group    string         `yaml:"group,omitempty"`
	Map      string         `yaml:"map,omitempty"`
	Triggers []TriggerRef   `yaml:"triggers,omitempty"`
}

// MapLink connects two map elements and may be bound to triggers.
type MapLink struct {
	Triggers []TriggerRef `yaml:"triggers,omitempty"`
}

// Map is a network map. Maps have no UUID; they are matched by name.
type Map struct {
	Name       string            `yaml:"name"`
	Background string            `yaml:"background,omitempty"`
	IconMap    string            `yaml:"iconmap,omitempty"`
	Elements   []MapElement      `yaml:"elements,omitempty"`
	Links      []MapLink         `yaml:"links,omitempty"`
	Extra      map[string]string `yaml:"-"`
}

// WidgetFieldType discriminates what a dashboard widget field references.
type WidgetFieldType string

const (
	WidgetFieldItem           WidgetFieldType = "item"
	WidgetFieldItemPrototype  WidgetFieldType = "item_prototype"
	WidgetFieldGraph          WidgetFieldType = "graph"
	WidgetFieldGraphPrototype WidgetFieldType = "graph_prototype"
)

// WidgetField references an item (Host+Key) or a graph (Host+Name).
type WidgetField struct {
	Type WidgetFieldType `yaml:"type"`
	Host string          `yaml:"host,omitempty"`
	Key  string          `yaml:"key,omitempty"`
	Name string          `yaml:"name,omitempty"`
}

// Widget is one dashboard widget.
type Widget struct {
	Type   string        `yaml:"type"`
	Fields []WidgetField `yaml:"fields,omitempty"`
}

// DashboardPage is one page of widgets.
type DashboardPage struct {
	Name    string   `yaml:"name,omitempty"`
	Widgets []Widget `yaml:"widgets,omitempty"`
}

// Dashboard is a template dashboard, addressed by UUID only.
type Dashboard struct {
	UUID  string          `yaml:"uuid"`
	Name  string          `yaml:"name"`
	Pages []DashboardPage `yaml:"pages,omitempty"`
}

// MediaType is a notification channel definition, matched by name.
type MediaType struct {
	Name  string            `yaml:"name"`
	Type  string            `yaml:"type,omitempty"`
	Extra map[string]string `yaml:"-"`
}

// Image is a map background or icon, matched by name.
type Image struct {
	Name string `yaml:"name"`
	Type string `yaml:"imagetype,omitempty"`
	Data string `yaml:"encoded_image,omitempty"`
}
