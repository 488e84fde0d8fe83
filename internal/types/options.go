package types

// CreateUpdate holds the policy flags for kinds that are never deleted by
// an import (groups, containers, maps, images, media types).
type CreateUpdate struct {
	CreateMissing  bool `yaml:"create_missing" mapstructure:"create_missing"`
	UpdateExisting bool `yaml:"update_existing" mapstructure:"update_existing"`
}

// CreateUpdateDelete holds the policy flags for kinds owned exclusively by
// the processed host/template set, where delete-missing is meaningful.
type CreateUpdateDelete struct {
	CreateMissing  bool `yaml:"create_missing" mapstructure:"create_missing"`
	UpdateExisting bool `yaml:"update_existing" mapstructure:"update_existing"`
	DeleteMissing  bool `yaml:"delete_missing" mapstructure:"delete_missing"`
}

// Linkage holds the flags controlling which template links are added to or
// removed from a host or template, independent of the owner's own update
// flag.
type Linkage struct {
	CreateMissing bool `yaml:"create_missing" mapstructure:"create_missing"`
	DeleteMissing bool `yaml:"delete_missing" mapstructure:"delete_missing"`
}

// Options carries one policy per entity kind. Each kind only exposes the
// flags that apply to it, so an impossible combination (say, deleting
// missing host groups) cannot be expressed at all.
//
// Delete-missing semantics are only defined for whole-bundle single-call
// imports: splitting one logical bundle across several Import calls can
// mis-retain or mis-delete rows shared between hosts processed in
// different calls.
type Options struct {
	Groups          CreateUpdate       `yaml:"groups" mapstructure:"groups"`
	Templates       CreateUpdate       `yaml:"templates" mapstructure:"templates"`
	Hosts           CreateUpdate       `yaml:"hosts" mapstructure:"hosts"`
	TemplateLinkage Linkage            `yaml:"template_linkage" mapstructure:"template_linkage"`
	ValueMaps       CreateUpdateDelete `yaml:"value_maps" mapstructure:"value_maps"`
	Items           CreateUpdateDelete `yaml:"items" mapstructure:"items"`
	DiscoveryRules  CreateUpdateDelete `yaml:"discovery_rules" mapstructure:"discovery_rules"`
	Triggers        CreateUpdateDelete `yaml:"triggers" mapstructure:"triggers"`
	Graphs          CreateUpdateDelete `yaml:"graphs" mapstructure:"graphs"`
	HTTPTests       CreateUpdateDelete `yaml:"http_tests" mapstructure:"http_tests"`
	Dashboards      CreateUpdateDelete `yaml:"dashboards" mapstructure:"dashboards"`
	Maps            CreateUpdate       `yaml:"maps" mapstructure:"maps"`
	Images          CreateUpdate       `yaml:"images" mapstructure:"images"`
	MediaTypes      CreateUpdate       `yaml:"media_types" mapstructure:"media_types"`
}

// FullOptions returns options with every create/update/delete flag set,
// including template linkage.
func FullOptions() Options {
	cu := CreateUpdate{CreateMissing: true, UpdateExisting: true}
	cud := CreateUpdateDelete{CreateMissing: true, UpdateExisting: true, DeleteMissing: true}
	return Options{
		Groups:          cu,
		Templates:       cu,
		Hosts:           cu,
		TemplateLinkage: Linkage{CreateMissing: true, DeleteMissing: true},
		ValueMaps:       cud,
		Items:           cud,
		DiscoveryRules:  cud,
		Triggers:        cud,
		Graphs:          cud,
		HTTPTests:       cud,
		Dashboards:      cud,
		Maps:            cu,
		Images:          cu,
		MediaTypes:      cu,
	}
}

// CreateUpdateOptions returns options with create and update set for every
// kind and no deletions anywhere.
func CreateUpdateOptions() Options {
	o := FullOptions()
	o.TemplateLinkage.DeleteMissing = false
	o.ValueMaps.DeleteMissing = false
	o.Items.DeleteMissing = false
	o.DiscoveryRules.DeleteMissing = false
	o.Triggers.DeleteMissing = false
	o.Graphs.DeleteMissing = false
	o.HTTPTests.DeleteMissing = false
	o.Dashboards.DeleteMissing = false
	return o
}
