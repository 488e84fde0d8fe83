// Package adapter turns a decoded export tree (nested maps, as produced
// by a YAML or JSON decoder) into a typed Bundle. All field-name
// normalization happens here, once, at the boundary: the rest of the
// module never sees "key_" or "retries" again.
package adapter

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/opsforge/confsync/internal/types"
)

// FromMap decodes raw into a Bundle. The tree may be the export body
// itself or wrapped in a single "export" section. Decoding is strict
// about identity: a malformed UUID anywhere fails the whole bundle.
func FromMap(raw map[string]any) (*types.Bundle, error) {
	if inner, ok := asMap(raw["export"]); ok {
		raw = inner
	}

	b := types.NewBundle()

	for i, m := range mapList(raw["groups"]) {
		g, err := decodeGroup(m)
		if err != nil {
			return nil, fmt.Errorf("groups[%d]: %w", i, err)
		}
		b.Groups = append(b.Groups, g)
	}
	for i, m := range mapList(raw["templates"]) {
		if err := decodeTemplate(b, m); err != nil {
			return nil, fmt.Errorf("templates[%d]: %w", i, err)
		}
	}
	for i, m := range mapList(raw["hosts"]) {
		if err := decodeHost(b, m); err != nil {
			return nil, fmt.Errorf("hosts[%d]: %w", i, err)
		}
	}
	for i, m := range mapList(raw["triggers"]) {
		t, err := decodeTrigger(m)
		if err != nil {
			return nil, fmt.Errorf("triggers[%d]: %w", i, err)
		}
		b.Triggers = append(b.Triggers, t)
	}
	for i, m := range mapList(raw["graphs"]) {
		g, err := decodeGraph(m)
		if err != nil {
			return nil, fmt.Errorf("graphs[%d]: %w", i, err)
		}
		b.Graphs = append(b.Graphs, g)
	}
	for i, m := range mapList(raw["maps"]) {
		mp, err := decodeMap(m)
		if err != nil {
			return nil, fmt.Errorf("maps[%d]: %w", i, err)
		}
		b.Maps = append(b.Maps, mp)
	}
	for i, m := range mapList(raw["images"]) {
		img, err := decodeImage(m)
		if err != nil {
			return nil, fmt.Errorf("images[%d]: %w", i, err)
		}
		b.Images = append(b.Images, img)
	}
	for i, m := range mapList(raw["media_types"]) {
		mt, err := decodeMediaType(m)
		if err != nil {
			return nil, fmt.Errorf("media_types[%d]: %w", i, err)
		}
		b.MediaTypes = append(b.MediaTypes, mt)
	}

	return b, nil
}

func decodeGroup(m map[string]any) (types.Group, error) {
	g := types.Group{UUID: str(m, "uuid"), Name: str(m, "name")}
	if g.Name == "" {
		return g, fmt.Errorf("group without a name")
	}
	return g, checkUUID(g.UUID)
}

var templateKnown = known("uuid", "template", "name", "groups", "templates",
	"macros", "items", "discovery_rules", "valuemaps", "httptests", "dashboards")

func decodeTemplate(b *types.Bundle, m map[string]any) error {
	t := types.Template{
		UUID:   str(m, "uuid"),
		Host:   str(m, "template"),
		Name:   str(m, "name"),
		Groups: nameList(m["groups"]),
		Linked: nameList(m["templates"]),
		Macros: decodeMacros(m["macros"]),
		Extra:  extraOf(m, templateKnown),
	}
	if t.Host == "" {
		return fmt.Errorf("template without a technical name")
	}
	if err := checkUUID(t.UUID); err != nil {
		return err
	}
	b.Templates = append(b.Templates, t)
	if err := decodeOwned(b, t.Host, m); err != nil {
		return fmt.Errorf("%q: %w", t.Host, err)
	}
	for i, dm := range mapList(m["dashboards"]) {
		d, err := decodeDashboard(dm)
		if err != nil {
			return fmt.Errorf("%q: dashboards[%d]: %w", t.Host, i, err)
		}
		b.Dashboards[t.Host] = append(b.Dashboards[t.Host], d)
	}
	return nil
}

var hostKnown = known("host", "name", "groups", "templates", "macros",
	"proxy", "items", "discovery_rules", "valuemaps", "httptests")

func decodeHost(b *types.Bundle, m map[string]any) error {
	h := types.Host{
		Host:   str(m, "host"),
		Name:   str(m, "name"),
		Groups: nameList(m["groups"]),
		Linked: nameList(m["templates"]),
		Macros: decodeMacros(m["macros"]),
		Proxy:  nameOrString(m["proxy"]),
		Extra:  extraOf(m, hostKnown),
	}
	if h.Host == "" {
		return fmt.Errorf("host without a technical name")
	}
	b.Hosts = append(b.Hosts, h)
	if err := decodeOwned(b, h.Host, m); err != nil {
		return fmt.Errorf("%q: %w", h.Host, err)
	}
	return nil
}

// decodeOwned handles the child kinds templates and hosts share.
func decodeOwned(b *types.Bundle, owner string, m map[string]any) error {
	for i, vm := range mapList(m["valuemaps"]) {
		v, err := decodeValueMap(vm)
		if err != nil {
			return fmt.Errorf("valuemaps[%d]: %w", i, err)
		}
		b.ValueMaps[owner] = append(b.ValueMaps[owner], v)
	}
	for i, im := range mapList(m["items"]) {
		item, err := decodeItem(im)
		if err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		b.Items[owner] = append(b.Items[owner], item)
	}
	for i, rm := range mapList(m["discovery_rules"]) {
		rule, err := decodeDiscoveryRule(rm)
		if err != nil {
			return fmt.Errorf("discovery_rules[%d]: %w", i, err)
		}
		b.DiscoveryRules[owner] = append(b.DiscoveryRules[owner], rule)
	}
	for i, hm := range mapList(m["httptests"]) {
		ht, err := decodeHTTPTest(hm)
		if err != nil {
			return fmt.Errorf("httptests[%d]: %w", i, err)
		}
		b.HTTPTests[owner] = append(b.HTTPTests[owner], ht)
	}
	return nil
}

var itemKnown = known("uuid", "key", "key_", "name", "type", "valuemap",
	"master_item", "interface_ref", "headers")

func decodeItem(m map[string]any) (types.Item, error) {
	it := types.Item{
		UUID:      str(m, "uuid"),
		Key:       str(m, "key", "key_"),
		Name:      str(m, "name"),
		Type:      types.ItemType(str(m, "type")),
		ValueMap:  nameOrString(m["valuemap"]),
		MasterKey: keyOrString(m["master_item"]),
		Interface: str(m, "interface_ref"),
		Extra:     extraOf(m, itemKnown),
	}
	if it.Key == "" {
		return it, fmt.Errorf("item without a key")
	}
	if err := checkUUID(it.UUID); err != nil {
		return it, fmt.Errorf("item %q: %w", it.Key, err)
	}
	if it.Type == types.ItemTypeHTTPAgent {
		if h := foldHeaders(m["headers"]); h != "" {
			if it.Extra == nil {
				it.Extra = map[string]string{}
			}
			it.Extra["headers"] = h
		}
	}
	return it, nil
}

// foldHeaders flattens an HTTP agent header list into one "Name: value"
// per line, the form the store keeps.
func foldHeaders(raw any) string {
	var out string
	for _, hm := range mapList(raw) {
		name := str(hm, "name")
		if name == "" {
			continue
		}
		out += name + ": " + str(hm, "value") + "\n"
	}
	return out
}

var triggerKnown = known("uuid", "name", "expression", "recovery_expression", "dependencies")

func decodeTrigger(m map[string]any) (types.Trigger, error) {
	t := types.Trigger{
		UUID:               str(m, "uuid"),
		Name:               str(m, "name"),
		Expression:         str(m, "expression"),
		RecoveryExpression: str(m, "recovery_expression"),
		Extra:              extraOf(m, triggerKnown),
	}
	if t.Name == "" || t.Expression == "" {
		return t, fmt.Errorf("trigger without a name and expression")
	}
	if err := checkUUID(t.UUID); err != nil {
		return t, fmt.Errorf("trigger %q: %w", t.Name, err)
	}
	for _, dm := range mapList(m["dependencies"]) {
		t.Dependencies = append(t.Dependencies, types.TriggerRef{
			Name:               str(dm, "name"),
			Expression:         str(dm, "expression"),
			RecoveryExpression: str(dm, "recovery_expression"),
		})
	}
	return t, nil
}

var graphKnown = known("uuid", "name", "ymin_item_1", "ymax_item_1", "graph_items")

func decodeGraph(m map[string]any) (types.Graph, error) {
	g := types.Graph{
		UUID:     str(m, "uuid"),
		Name:     str(m, "name"),
		YMinItem: itemRef(m["ymin_item_1"]),
		YMaxItem: itemRef(m["ymax_item_1"]),
		Extra:    extraOf(m, graphKnown),
	}
	if g.Name == "" {
		return g, fmt.Errorf("graph without a name")
	}
	if err := checkUUID(g.UUID); err != nil {
		return g, fmt.Errorf("graph %q: %w", g.Name, err)
	}
	for i, gm := range mapList(m["graph_items"]) {
		ref := itemRef(gm["item"])
		if ref == nil {
			return g, fmt.Errorf("graph %q: graph_items[%d] without an item reference", g.Name, i)
		}
		g.Items = append(g.Items, types.GraphItem{
			Item:      *ref,
			Color:     str(gm, "color"),
			SortOrder: intOf(gm, "sortorder"),
		})
	}
	return g, nil
}

var ruleKnown = known("uuid", "key", "key_", "name", "type", "master_item",
	"interface_ref", "item_prototypes", "trigger_prototypes", "graph_prototypes",
	"host_prototypes", "overrides", "override_templates")

func decodeDiscoveryRule(m map[string]any) (types.DiscoveryRule, error) {
	r := types.DiscoveryRule{
		UUID:              str(m, "uuid"),
		Key:               str(m, "key", "key_"),
		Name:              str(m, "name"),
		Type:              types.ItemType(str(m, "type")),
		MasterKey:         keyOrString(m["master_item"]),
		Interface:         str(m, "interface_ref"),
		OverrideTemplates: nameList(m["override_templates"]),
		Extra:             extraOf(m, ruleKnown),
	}
	if r.Key == "" {
		return r, fmt.Errorf("discovery rule without a key")
	}
	if err := checkUUID(r.UUID); err != nil {
		return r, fmt.Errorf("rule %q: %w", r.Key, err)
	}
	// Overrides only matter to the importer through the templates their
	// operations link; everything else rides along in Extra untouched.
	for _, om := range mapList(m["overrides"]) {
		for _, opm := range mapList(om["operations"]) {
			r.OverrideTemplates = append(r.OverrideTemplates, nameList(opm["templates"])...)
		}
	}
	for i, im := range mapList(m["item_prototypes"]) {
		p, err := decodeItem(im)
		if err != nil {
			return r, fmt.Errorf("rule %q: item_prototypes[%d]: %w", r.Key, i, err)
		}
		r.ItemPrototypes = append(r.ItemPrototypes, p)
	}
	for i, tm := range mapList(m["trigger_prototypes"]) {
		p, err := decodeTrigger(tm)
		if err != nil {
			return r, fmt.Errorf("rule %q: trigger_prototypes[%d]: %w", r.Key, i, err)
		}
		r.TriggerPrototypes = append(r.TriggerPrototypes, p)
	}
	for i, gm := range mapList(m["graph_prototypes"]) {
		p, err := decodeGraph(gm)
		if err != nil {
			return r, fmt.Errorf("rule %q: graph_prototypes[%d]: %w", r.Key, i, err)
		}
		r.GraphPrototypes = append(r.GraphPrototypes, p)
	}
	for i, hm := range mapList(m["host_prototypes"]) {
		p, err := decodeHostPrototype(hm)
		if err != nil {
			return r, fmt.Errorf("rule %q: host_prototypes[%d]: %w", r.Key, i, err)
		}
		r.HostPrototypes = append(r.HostPrototypes, p)
	}
	return r, nil
}

func decodeHostPrototype(m map[string]any) (types.HostPrototype, error) {
	p := types.HostPrototype{
		UUID:            str(m, "uuid"),
		Host:            str(m, "host"),
		Name:            str(m, "name"),
		GroupPrototypes: nameList(m["group_prototypes"]),
		Templates:       nameList(m["templates"]),
		Macros:          decodeMacros(m["macros"]),
	}
	if p.Host == "" {
		return p, fmt.Errorf("host prototype without a technical name")
	}
	if err := checkUUID(p.UUID); err != nil {
		return p, fmt.Errorf("host prototype %q: %w", p.Host, err)
	}
	for _, gm := range mapList(m["group_links"]) {
		if g := nameOrString(gm["group"]); g != "" {
			p.GroupLinks = append(p.GroupLinks, g)
		} else if g := str(gm, "name"); g != "" {
			p.GroupLinks = append(p.GroupLinks, g)
		}
	}
	return p, nil
}

func decodeValueMap(m map[string]any) (types.ValueMap, error) {
	v := types.ValueMap{UUID: str(m, "uuid"), Name: str(m, "name")}
	if v.Name == "" {
		return v, fmt.Errorf("value map without a name")
	}
	if err := checkUUID(v.UUID); err != nil {
		return v, fmt.Errorf("value map %q: %w", v.Name, err)
	}
	for _, mm := range mapList(m["mappings"]) {
		v.Mappings = append(v.Mappings, types.ValueMapping{
			Type:     str(mm, "type"),
			Value:    str(mm, "value"),
			NewValue: str(mm, "newvalue"),
		})
	}
	return v, nil
}

var httpTestKnown = known("uuid", "name", "steps")
var httpStepKnown = known("name", "url", "attempts", "retries")

func decodeHTTPTest(m map[string]any) (types.HTTPTest, error) {
	t := types.HTTPTest{
		UUID:  str(m, "uuid"),
		Name:  str(m, "name"),
		Extra: extraOf(m, httpTestKnown),
	}
	if t.Name == "" {
		return t, fmt.Errorf("web scenario without a name")
	}
	if err := checkUUID(t.UUID); err != nil {
		return t, fmt.Errorf("web scenario %q: %w", t.Name, err)
	}
	for _, sm := range mapList(m["steps"]) {
		t.Steps = append(t.Steps, types.HTTPStep{
			Name:     str(sm, "name"),
			URL:      str(sm, "url"),
			Attempts: intOf(sm, "attempts", "retries"),
			Extra:    extraOf(sm, httpStepKnown),
		})
	}
	return t, nil
}

var mapKnown = known("name", "background", "iconmap", "elements", "selements", "links")

func decodeMap(m map[string]any) (types.Map, error) {
	mp := types.Map{
		Name:       str(m, "name"),
		Background: nameOrString(m["background"]),
		IconMap:    nameOrString(m["iconmap"]),
		Extra:      extraOf(m, mapKnown),
	}
	if mp.Name == "" {
		return mp, fmt.Errorf("map without a name")
	}
	elements := m["elements"]
	if elements == nil {
		elements = m["selements"]
	}
	for i, em := range mapList(elements) {
		el := types.MapElement{
			Type:  types.MapElementType(str(em, "type")),
			Host:  nameOrString(em["host"]),
			Group: nameOrString(em["group"]),
			Map:   nameOrString(em["map"]),
		}
		for _, tm := range mapList(em["triggers"]) {
			el.Triggers = append(el.Triggers, types.TriggerRef{
				Name:               str(tm, "name"),
				Expression:         str(tm, "expression"),
				RecoveryExpression: str(tm, "recovery_expression"),
			})
		}
		if el.Type == "" {
			return mp, fmt.Errorf("map %q: elements[%d] without a type", mp.Name, i)
		}
		mp.Elements = append(mp.Elements, el)
	}
	for _, lm := range mapList(m["links"]) {
		link := types.MapLink{}
		for _, tm := range mapList(lm["triggers"]) {
			link.Triggers = append(link.Triggers, types.TriggerRef{
				Name:               str(tm, "name"),
				Expression:         str(tm, "expression"),
				RecoveryExpression: str(tm, "recovery_expression"),
			})
		}
		mp.Links = append(mp.Links, link)
	}
	return mp, nil
}

func decodeDashboard(m map[string]any) (types.Dashboard, error) {
	d := types.Dashboard{UUID: str(m, "uuid"), Name: str(m, "name")}
	if d.UUID == "" {
		return d, fmt.Errorf("dashboard %q without a uuid", d.Name)
	}
	if err := checkUUID(d.UUID); err != nil {
		return d, fmt.Errorf("dashboard %q: %w", d.Name, err)
	}
	for _, pm := range mapList(m["pages"]) {
		page := types.DashboardPage{Name: str(pm, "name")}
		for _, wm := range mapList(pm["widgets"]) {
			w := types.Widget{Type: str(wm, "type")}
			for _, fm := range mapList(wm["fields"]) {
				f := types.WidgetField{Type: types.WidgetFieldType(str(fm, "type"))}
				value, _ := asMap(fm["value"])
				if value == nil {
					value = fm
				}
				f.Host = str(value, "host")
				f.Key = str(value, "key", "key_")
				f.Name = str(value, "name")
				w.Fields = append(w.Fields, f)
			}
			page.Widgets = append(page.Widgets, w)
		}
		d.Pages = append(d.Pages, page)
	}
	return d, nil
}

var mediaTypeKnown = known("name", "type")

func decodeMediaType(m map[string]any) (types.MediaType, error) {
	mt := types.MediaType{
		Name:  str(m, "name"),
		Type:  str(m, "type"),
		Extra: extraOf(m, mediaTypeKnown),
	}
	if mt.Name == "" {
		return mt, fmt.Errorf("media type without a name")
	}
	return mt, nil
}

func decodeImage(m map[string]any) (types.Image, error) {
	img := types.Image{
		Name: str(m, "name"),
		Type: str(m, "imagetype"),
		Data: str(m, "encoded_image"),
	}
	if img.Name == "" {
		return img, fmt.Errorf("image without a name")
	}
	return img, nil
}

func decodeMacros(raw any) []types.Macro {
	var out []types.Macro
	for _, mm := range mapList(raw) {
		out = append(out, types.Macro{
			Macro:       str(mm, "macro"),
			Value:       str(mm, "value"),
			Description: str(mm, "description"),
		})
	}
	return out
}

func checkUUID(u string) error {
	if u == "" {
		return nil
	}
	if _, err := uuid.Parse(u); err != nil {
		return fmt.Errorf("invalid uuid %q", u)
	}
	return nil
}
