package importer

import (
	"context"

	"github.com/opsforge/confsync/internal/types"
)

// gatherReferences registers every natural-key reference in the bundle
// with the registry in one pass, so later phases resolve ids from at most
// one batched store query per entity kind instead of re-scanning the
// bundle.
func (im *Importer) gatherReferences(_ context.Context, b *types.Bundle) error {
	im.ref.AddGroups(b.Groups)
	im.ref.AddTemplates(b.Templates)
	im.ref.AddHosts(b.Hosts)

	for _, t := range b.Templates {
		for _, name := range t.Groups {
			im.ref.AddGroupByName(name)
		}
	}
	for _, h := range b.Hosts {
		for _, name := range h.Groups {
			im.ref.AddGroupByName(name)
		}
		for _, linked := range h.Linked {
			im.ref.AddTemplateByHost(linked)
		}
		im.ref.AddProxyByName(h.Proxy)
	}

	for host, vms := range b.ValueMaps {
		for _, vm := range vms {
			im.ref.AddValueMap(host, vm)
		}
	}

	for host, items := range b.Items {
		for _, it := range items {
			im.ref.AddItem(host, it)
			if it.ValueMap != "" {
				im.ref.AddValueMapByName(host, it.ValueMap)
			}
		}
	}

	for _, t := range b.Triggers {
		im.ref.AddTrigger(t)
		for _, dep := range t.Dependencies {
			im.ref.AddTriggerRef(dep)
		}
		for _, host := range expressionHosts(t.Expression, t.RecoveryExpression) {
			im.ref.AddTemplateByHost(host)
			im.ref.AddHostByHost(host)
		}
	}

	for host, rules := range b.DiscoveryRules {
		for _, rule := range rules {
			im.ref.AddDiscoveryRule(host, rule)
			for _, it := range rule.ItemPrototypes {
				im.ref.AddItemPrototype(host, it)
				if it.ValueMap != "" {
					im.ref.AddValueMapByName(host, it.ValueMap)
				}
			}
			for _, t := range rule.TriggerPrototypes {
				im.ref.AddTriggerPrototype(t)
				for _, dep := range t.Dependencies {
					im.ref.AddTriggerPrototypeRef(dep)
					im.ref.AddTriggerRef(dep)
				}
			}
			for _, g := range rule.GraphPrototypes {
				im.ref.AddGraphPrototype(g)
				gatherGraphItems(im, g)
			}
			for _, p := range rule.HostPrototypes {
				for _, name := range p.GroupLinks {
					im.ref.AddGroupByName(name)
				}
				for _, linked := range p.Templates {
					im.ref.AddTemplateByHost(linked)
				}
			}
			for _, linked := range rule.OverrideTemplates {
				im.ref.AddTemplateByHost(linked)
			}
		}
	}

	for _, g := range b.Graphs {
		im.ref.AddGraph(g)
		gatherGraphItems(im, g)
	}

	for host, tests := range b.HTTPTests {
		for _, t := range tests {
			im.ref.AddHTTPTest(host, t)
		}
	}

	for _, m := range b.Maps {
		im.ref.AddMapByName(m.Name)
		im.ref.AddImageByName(m.Background)
		im.ref.AddImageByName(m.IconMap)
		for _, el := range m.Elements {
			switch el.Type {
			case types.MapElementHost:
				im.ref.AddHostByHost(el.Host)
			case types.MapElementGroup:
				im.ref.AddGroupByName(el.Group)
			case types.MapElementMap:
				im.ref.AddMapByName(el.Map)
			case types.MapElementTrigger:
				for _, ref := range el.Triggers {
					im.ref.AddTriggerRef(ref)
				}
			}
		}
		for _, link := range m.Links {
			for _, ref := range link.Triggers {
				im.ref.AddTriggerRef(ref)
			}
		}
	}

	for host, dashboards := range b.Dashboards {
		im.ref.AddTemplateByHost(host)
		for _, d := range dashboards {
			im.ref.AddDashboard(d)
			for _, page := range d.Pages {
				for _, w := range page.Widgets {
					for _, f := range w.Fields {
						switch f.Type {
						case types.WidgetFieldItem, types.WidgetFieldItemPrototype:
							im.ref.AddItemRef(f.Host, f.Key)
						case types.WidgetFieldGraph:
							im.ref.AddGraphByName(f.Host, f.Name)
						case types.WidgetFieldGraphPrototype:
							im.ref.AddGraphPrototypeByName(f.Host, f.Name)
						}
					}
				}
			}
		}
	}

	for _, mt := range b.MediaTypes {
		im.ref.AddMediaTypeByName(mt.Name)
	}
	for _, img := range b.Images {
		im.ref.AddImageByName(img.Name)
	}
	return nil
}

func gatherGraphItems(im *Importer, g types.Graph) {
	for _, gi := range g.Items {
		im.ref.AddItemRef(gi.Item.Host, gi.Item.Key)
	}
	if g.YMinItem != nil {
		im.ref.AddItemRef(g.YMinItem.Host, g.YMinItem.Key)
	}
	if g.YMaxItem != nil {
		im.ref.AddItemRef(g.YMaxItem.Host, g.YMaxItem.Key)
	}
}
