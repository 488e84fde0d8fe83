package memory

import (
	"slices"
	"strconv"

	"github.com/opsforge/confsync/internal/store"
)

// State is the serializable content of a Store. The CLI round-trips it
// through a YAML state file so successive imports see each other's rows.
type State struct {
	Groups            []store.GroupRecord         `yaml:"groups,omitempty"`
	Templates         []store.TemplateRecord      `yaml:"templates,omitempty"`
	Hosts             []store.HostRecord          `yaml:"hosts,omitempty"`
	Items             []store.ItemRecord          `yaml:"items,omitempty"`
	ItemPrototypes    []store.ItemRecord          `yaml:"item_prototypes,omitempty"`
	DiscoveryRules    []store.ItemRecord          `yaml:"discovery_rules,omitempty"`
	Triggers          []store.TriggerRecord       `yaml:"triggers,omitempty"`
	TriggerPrototypes []store.TriggerRecord       `yaml:"trigger_prototypes,omitempty"`
	Graphs            []store.GraphRecord         `yaml:"graphs,omitempty"`
	GraphPrototypes   []store.GraphRecord         `yaml:"graph_prototypes,omitempty"`
	HostPrototypes    []store.HostPrototypeRecord `yaml:"host_prototypes,omitempty"`
	ValueMaps         []store.ValueMapRecord      `yaml:"value_maps,omitempty"`
	HTTPTests         []store.HTTPTestRecord      `yaml:"http_tests,omitempty"`
	Maps              []store.MapRecord           `yaml:"maps,omitempty"`
	Dashboards        []store.DashboardRecord     `yaml:"dashboards,omitempty"`
	MediaTypes        []store.MediaTypeRecord     `yaml:"media_types,omitempty"`
	Images            []store.ImageRecord         `yaml:"images,omitempty"`
	Proxies           []store.ProxyRecord         `yaml:"proxies,omitempty"`
}

// Snapshot returns the store's current rows, each kind sorted by id.
func (s *Store) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &State{
		Groups:            rowsOf(s.groups),
		Templates:         rowsOf(s.templates),
		Hosts:             rowsOf(s.hosts),
		Items:             rowsOf(s.items),
		ItemPrototypes:    rowsOf(s.itemPrototypes),
		DiscoveryRules:    rowsOf(s.discoveryRules),
		Triggers:          rowsOf(s.triggers),
		TriggerPrototypes: rowsOf(s.triggerPrototypes),
		Graphs:            rowsOf(s.graphs),
		GraphPrototypes:   rowsOf(s.graphPrototypes),
		HostPrototypes:    rowsOf(s.hostPrototypes),
		ValueMaps:         rowsOf(s.valueMaps),
		HTTPTests:         rowsOf(s.httpTests),
		Maps:              rowsOf(s.maps),
		Dashboards:        rowsOf(s.dashboards),
		MediaTypes:        rowsOf(s.mediaTypes),
		Images:            rowsOf(s.images),
		Proxies:           rowsOf(s.proxies),
	}
}

// FromState builds a store seeded with the given rows. The id sequence is
// advanced past the highest numeric id present.
func FromState(st *State) *Store {
	s := New()
	seed(s, s.groups, st.Groups)
	seed(s, s.templates, st.Templates)
	seed(s, s.hosts, st.Hosts)
	seed(s, s.items, st.Items)
	seed(s, s.itemPrototypes, st.ItemPrototypes)
	seed(s, s.discoveryRules, st.DiscoveryRules)
	seed(s, s.triggers, st.Triggers)
	seed(s, s.triggerPrototypes, st.TriggerPrototypes)
	seed(s, s.graphs, st.Graphs)
	seed(s, s.graphPrototypes, st.GraphPrototypes)
	seed(s, s.hostPrototypes, st.HostPrototypes)
	seed(s, s.valueMaps, st.ValueMaps)
	seed(s, s.httpTests, st.HTTPTests)
	seed(s, s.maps, st.Maps)
	seed(s, s.dashboards, st.Dashboards)
	seed(s, s.mediaTypes, st.MediaTypes)
	seed(s, s.images, st.Images)
	seed(s, s.proxies, st.Proxies)
	return s
}

func rowsOf[R any](t *table[R]) []R {
	if len(t.rows) == 0 {
		return nil
	}
	ids := make([]int, 0, len(t.rows))
	byNum := make(map[int]R, len(t.rows))
	for id, r := range t.rows {
		n, _ := strconv.Atoi(id)
		ids = append(ids, n)
		byNum[n] = r
	}
	slices.Sort(ids)
	out := make([]R, 0, len(ids))
	for _, n := range ids {
		out = append(out, byNum[n])
	}
	return out
}

func seed[R any](s *Store, t *table[R], rows []R) {
	for _, r := range rows {
		id := *t.idOf(&r)
		t.rows[id] = r
		if n, err := strconv.Atoi(id); err == nil && n > s.seq {
			s.seq = n
		}
	}
}
