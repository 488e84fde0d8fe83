package store

import "github.com/opsforge/confsync/internal/types"

// MacroRecord is a stored user macro row.
type MacroRecord struct {
	ID    string `yaml:"id"`
	Macro string `yaml:"macro"`
	Value string `yaml:"value,omitempty"`
}

// GroupRecord is a stored host group.
type GroupRecord struct {
	ID   string `yaml:"id"`
	UUID string `yaml:"uuid,omitempty"`
	Name string `yaml:"name"`
}

// TemplateRecord is a stored template. TemplateIDs lists linked templates.
type TemplateRecord struct {
	ID          string            `yaml:"id"`
	UUID        string            `yaml:"uuid,omitempty"`
	Host        string            `yaml:"host"`
	Name        string            `yaml:"name,omitempty"`
	GroupIDs    []string          `yaml:"group_ids,omitempty"`
	TemplateIDs []string          `yaml:"template_ids,omitempty"`
	Macros      []MacroRecord     `yaml:"macros,omitempty"`
	Fields      map[string]string `yaml:"fields,omitempty"`
}

// HostRecord is a stored host.
type HostRecord struct {
	ID          string            `yaml:"id"`
	Host        string            `yaml:"host"`
	Name        string            `yaml:"name,omitempty"`
	GroupIDs    []string          `yaml:"group_ids,omitempty"`
	TemplateIDs []string          `yaml:"template_ids,omitempty"`
	Macros      []MacroRecord     `yaml:"macros,omitempty"`
	ProxyID     string            `yaml:"proxy_id,omitempty"`
	Fields      map[string]string `yaml:"fields,omitempty"`
}

// ItemRecord is a stored item, discovery rule or item prototype. The
// natural key is (HostID, Key). RuleID is set on prototypes only.
type ItemRecord struct {
	ID           string            `yaml:"id"`
	UUID         string            `yaml:"uuid,omitempty"`
	HostID       string            `yaml:"host_id"`
	Key          string            `yaml:"key"`
	Name         string            `yaml:"name,omitempty"`
	Type         types.ItemType    `yaml:"type,omitempty"`
	MasterItemID string            `yaml:"master_item_id,omitempty"`
	ValueMapID   string            `yaml:"value_map_id,omitempty"`
	RuleID       string            `yaml:"rule_id,omitempty"`
	Inherited    bool              `yaml:"inherited,omitempty"`
	Fields       map[string]string `yaml:"fields,omitempty"`
}

// TriggerRecord is a stored trigger or trigger prototype. HostIDs lists
// every host owning the trigger through its expression.
type TriggerRecord struct {
	ID                 string            `yaml:"id"`
	UUID               string            `yaml:"uuid,omitempty"`
	Name               string            `yaml:"name"`
	Expression         string            `yaml:"expression"`
	RecoveryExpression string            `yaml:"recovery_expression,omitempty"`
	HostIDs            []string          `yaml:"host_ids,omitempty"`
	DependsOn          []string          `yaml:"depends_on,omitempty"`
	RuleID             string            `yaml:"rule_id,omitempty"`
	Inherited          bool              `yaml:"inherited,omitempty"`
	Fields             map[string]string `yaml:"fields,omitempty"`
}

// Ref returns the trigger's composite natural key.
func (r TriggerRecord) Ref() types.TriggerRef {
	return types.TriggerRef{Name: r.Name, Expression: r.Expression, RecoveryExpression: r.RecoveryExpression}
}

// GraphItemRecord is one plotted line of a stored graph.
type GraphItemRecord struct {
	ItemID    string `yaml:"item_id"`
	Color     string `yaml:"color,omitempty"`
	SortOrder int    `yaml:"sortorder,omitempty"`
}

// GraphRecord is a stored graph or graph prototype. HostIDs lists every
// host owning the graph through its items.
type GraphRecord struct {
	ID         string            `yaml:"id"`
	UUID       string            `yaml:"uuid,omitempty"`
	Name       string            `yaml:"name"`
	HostIDs    []string          `yaml:"host_ids,omitempty"`
	YMinItemID string            `yaml:"ymin_item_id,omitempty"`
	YMaxItemID string            `yaml:"ymax_item_id,omitempty"`
	Items      []GraphItemRecord `yaml:"items,omitempty"`
	RuleID     string            `yaml:"rule_id,omitempty"`
	Inherited  bool              `yaml:"inherited,omitempty"`
	Fields     map[string]string `yaml:"fields,omitempty"`
}

// HostPrototypeRecord is a stored host prototype. The natural key is
// (HostID, RuleID, Host).
type HostPrototypeRecord struct {
	ID              string        `yaml:"id"`
	UUID            string        `yaml:"uuid,omitempty"`
	HostID          string        `yaml:"host_id"`
	RuleID          string        `yaml:"rule_id"`
	Host            string        `yaml:"host"`
	Name            string        `yaml:"name,omitempty"`
	GroupIDs        []string      `yaml:"group_ids,omitempty"`
	GroupPrototypes []string      `yaml:"group_prototypes,omitempty"`
	TemplateIDs     []string      `yaml:"template_ids,omitempty"`
	Macros          []MacroRecord `yaml:"macros,omitempty"`
}

// ValueMapRecord is a stored value map, owned by one host or template.
type ValueMapRecord struct {
	ID       string               `yaml:"id"`
	UUID     string               `yaml:"uuid,omitempty"`
	HostID   string               `yaml:"host_id"`
	Name     string               `yaml:"name"`
	Mappings []types.ValueMapping `yaml:"mappings,omitempty"`
}

// HTTPStepRecord is one stored step of a web scenario.
type HTTPStepRecord struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	URL      string            `yaml:"url,omitempty"`
	Attempts int               `yaml:"attempts,omitempty"`
	Fields   map[string]string `yaml:"fields,omitempty"`
}

// HTTPTestRecord is a stored web scenario with its steps inline.
type HTTPTestRecord struct {
	ID        string            `yaml:"id"`
	UUID      string            `yaml:"uuid,omitempty"`
	HostID    string            `yaml:"host_id"`
	Name      string            `yaml:"name"`
	Steps     []HTTPStepRecord  `yaml:"steps,omitempty"`
	Inherited bool              `yaml:"inherited,omitempty"`
	Fields    map[string]string `yaml:"fields,omitempty"`
}

// MapElementRecord is one element of a stored map, with references already
// resolved to ids.
type MapElementRecord struct {
	Type       types.MapElementType `yaml:"type"`
	RefID      string               `yaml:"ref_id,omitempty"`
	TriggerIDs []string             `yaml:"trigger_ids,omitempty"`
}

// MapLinkRecord connects two map elements, with any bound triggers
// resolved to ids.
type MapLinkRecord struct {
	TriggerIDs []string `yaml:"trigger_ids,omitempty"`
}

// MapRecord is a stored network map.
type MapRecord struct {
	ID           string             `yaml:"id"`
	Name         string             `yaml:"name"`
	BackgroundID string             `yaml:"background_id,omitempty"`
	IconMapID    string             `yaml:"icon_map_id,omitempty"`
	Elements     []MapElementRecord `yaml:"elements,omitempty"`
	Links        []MapLinkRecord    `yaml:"links,omitempty"`
	Fields       map[string]string  `yaml:"fields,omitempty"`
}

// WidgetRecord is one widget of a stored dashboard, with item and graph
// references resolved to ids.
type WidgetRecord struct {
	Type     string   `yaml:"type"`
	ItemIDs  []string `yaml:"item_ids,omitempty"`
	GraphIDs []string `yaml:"graph_ids,omitempty"`
}

// DashboardPageRecord is one page of a stored dashboard.
type DashboardPageRecord struct {
	Name    string         `yaml:"name,omitempty"`
	Widgets []WidgetRecord `yaml:"widgets,omitempty"`
}

// DashboardRecord is a stored template dashboard.
type DashboardRecord struct {
	ID         string                `yaml:"id"`
	UUID       string                `yaml:"uuid"`
	TemplateID string                `yaml:"template_id"`
	Name       string                `yaml:"name"`
	Pages      []DashboardPageRecord `yaml:"pages,omitempty"`
}

// MediaTypeRecord is a stored media type.
type MediaTypeRecord struct {
	ID     string            `yaml:"id"`
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type,omitempty"`
	Fields map[string]string `yaml:"fields,omitempty"`
}

// ImageRecord is a stored image.
type ImageRecord struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"imagetype,omitempty"`
	Data string `yaml:"data,omitempty"`
}

// ProxyRecord is a stored proxy. Proxies are never written by the
// importer, only resolved.
type ProxyRecord struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}
