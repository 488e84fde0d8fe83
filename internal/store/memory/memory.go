// Package memory provides the in-memory reference implementation of
// store.EntityStore. It backs the test suite and the confsync CLI, which
// persists a Store as a YAML state file between runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/opsforge/confsync/internal/store"
)

// Store is an in-memory entity store. It is safe for concurrent use; the
// importer itself is single-threaded, but the store owns concurrency
// control per the collaborator contract.
type Store struct {
	mu  sync.Mutex
	seq int

	groups            *table[store.GroupRecord]
	templates         *table[store.TemplateRecord]
	hosts             *table[store.HostRecord]
	items             *table[store.ItemRecord]
	itemPrototypes    *table[store.ItemRecord]
	discoveryRules    *table[store.ItemRecord]
	triggers          *table[store.TriggerRecord]
	triggerPrototypes *table[store.TriggerRecord]
	graphs            *table[store.GraphRecord]
	graphPrototypes   *table[store.GraphRecord]
	hostPrototypes    *table[store.HostPrototypeRecord]
	valueMaps         *table[store.ValueMapRecord]
	httpTests         *table[store.HTTPTestRecord]
	maps              *table[store.MapRecord]
	dashboards        *table[store.DashboardRecord]
	mediaTypes        *table[store.MediaTypeRecord]
	images            *table[store.ImageRecord]
	proxies           *table[store.ProxyRecord]
}

// New returns an empty store. Assigned ids are decimal strings counting up
// from 10000.
func New() *Store {
	s := &Store{seq: 10000}

	s.groups = newTable(s, "host group",
		func(r *store.GroupRecord) *string { return &r.ID },
		func(r store.GroupRecord) fields {
			return fields{id: r.ID, uuid: r.UUID, name: r.Name}
		},
		func(old, rec store.GroupRecord) store.GroupRecord {
			if rec.UUID == "" {
				rec.UUID = old.UUID
			}
			return rec
		})

	s.templates = newTable(s, "template",
		func(r *store.TemplateRecord) *string { return &r.ID },
		func(r store.TemplateRecord) fields {
			return fields{id: r.ID, uuid: r.UUID, name: r.Host}
		},
		func(old, rec store.TemplateRecord) store.TemplateRecord {
			if rec.UUID == "" {
				rec.UUID = old.UUID
			}
			// nil means the caller did not touch the field; a non-nil
			// empty slice clears it.
			if rec.GroupIDs == nil {
				rec.GroupIDs = old.GroupIDs
			}
			if rec.TemplateIDs == nil {
				rec.TemplateIDs = old.TemplateIDs
			}
			if rec.Macros == nil {
				rec.Macros = old.Macros
			}
			if rec.Fields == nil {
				rec.Fields = old.Fields
			}
			return rec
		})

	s.hosts = newTable(s, "host",
		func(r *store.HostRecord) *string { return &r.ID },
		func(r store.HostRecord) fields {
			return fields{id: r.ID, name: r.Host}
		},
		func(old, rec store.HostRecord) store.HostRecord {
			if rec.GroupIDs == nil {
				rec.GroupIDs = old.GroupIDs
			}
			if rec.TemplateIDs == nil {
				rec.TemplateIDs = old.TemplateIDs
			}
			if rec.Macros == nil {
				rec.Macros = old.Macros
			}
			if rec.Fields == nil {
				rec.Fields = old.Fields
			}
			return rec
		})

	itemFields := func(r store.ItemRecord) fields {
		return fields{
			id: r.ID, uuid: r.UUID, name: r.Key,
			hostIDs: []string{r.HostID}, ruleID: r.RuleID, inherited: r.Inherited,
		}
	}
	itemMerge := func(old, rec store.ItemRecord) store.ItemRecord {
		if rec.UUID == "" {
			rec.UUID = old.UUID
		}
		return rec
	}
	s.items = newTable(s, "item", func(r *store.ItemRecord) *string { return &r.ID }, itemFields, itemMerge)
	s.itemPrototypes = newTable(s, "item prototype", func(r *store.ItemRecord) *string { return &r.ID }, itemFields, itemMerge)
	s.discoveryRules = newTable(s, "discovery rule", func(r *store.ItemRecord) *string { return &r.ID }, itemFields, itemMerge)

	triggerFields := func(r store.TriggerRecord) fields {
		return fields{
			id: r.ID, uuid: r.UUID, name: r.Name,
			hostIDs: r.HostIDs, ruleID: r.RuleID, inherited: r.Inherited,
		}
	}
	triggerMerge := func(old, rec store.TriggerRecord) store.TriggerRecord {
		if rec.UUID == "" {
			rec.UUID = old.UUID
		}
		if rec.HostIDs == nil {
			rec.HostIDs = old.HostIDs
		}
		return rec
	}
	s.triggers = newTable(s, "trigger", func(r *store.TriggerRecord) *string { return &r.ID }, triggerFields, triggerMerge)
	s.triggerPrototypes = newTable(s, "trigger prototype", func(r *store.TriggerRecord) *string { return &r.ID }, triggerFields, triggerMerge)

	graphFields := func(r store.GraphRecord) fields {
		return fields{
			id: r.ID, uuid: r.UUID, name: r.Name,
			hostIDs: r.HostIDs, ruleID: r.RuleID, inherited: r.Inherited,
		}
	}
	graphMerge := func(old, rec store.GraphRecord) store.GraphRecord {
		if rec.UUID == "" {
			rec.UUID = old.UUID
		}
		if rec.HostIDs == nil {
			rec.HostIDs = old.HostIDs
		}
		return rec
	}
	s.graphs = newTable(s, "graph", func(r *store.GraphRecord) *string { return &r.ID }, graphFields, graphMerge)
	s.graphPrototypes = newTable(s, "graph prototype", func(r *store.GraphRecord) *string { return &r.ID }, graphFields, graphMerge)

	s.hostPrototypes = newTable(s, "host prototype",
		func(r *store.HostPrototypeRecord) *string { return &r.ID },
		func(r store.HostPrototypeRecord) fields {
			return fields{
				id: r.ID, uuid: r.UUID, name: r.Host,
				hostIDs: []string{r.HostID}, ruleID: r.RuleID,
			}
		},
		func(old, rec store.HostPrototypeRecord) store.HostPrototypeRecord {
			if rec.UUID == "" {
				rec.UUID = old.UUID
			}
			return rec
		})

	s.valueMaps = newTable(s, "value map",
		func(r *store.ValueMapRecord) *string { return &r.ID },
		func(r store.ValueMapRecord) fields {
			return fields{id: r.ID, uuid: r.UUID, name: r.Name, hostIDs: []string{r.HostID}}
		},
		func(old, rec store.ValueMapRecord) store.ValueMapRecord {
			if rec.UUID == "" {
				rec.UUID = old.UUID
			}
			return rec
		})

	s.httpTests = newTable(s, "web scenario",
		func(r *store.HTTPTestRecord) *string { return &r.ID },
		func(r store.HTTPTestRecord) fields {
			return fields{
				id: r.ID, uuid: r.UUID, name: r.Name,
				hostIDs: []string{r.HostID}, inherited: r.Inherited,
			}
		},
		func(old, rec store.HTTPTestRecord) store.HTTPTestRecord {
			if rec.UUID == "" {
				rec.UUID = old.UUID
			}
			for i, step := range rec.Steps {
				if step.ID == "" {
					rec.Steps[i].ID = old.ID + "." + strconv.Itoa(i+1)
				}
			}
			return rec
		})

	s.maps = newTable(s, "map",
		func(r *store.MapRecord) *string { return &r.ID },
		func(r store.MapRecord) fields {
			return fields{id: r.ID, name: r.Name}
		}, nil)

	s.dashboards = newTable(s, "dashboard",
		func(r *store.DashboardRecord) *string { return &r.ID },
		func(r store.DashboardRecord) fields {
			return fields{id: r.ID, uuid: r.UUID, name: r.Name, hostIDs: []string{r.TemplateID}}
		},
		func(old, rec store.DashboardRecord) store.DashboardRecord {
			if rec.UUID == "" {
				rec.UUID = old.UUID
			}
			if rec.TemplateID == "" {
				rec.TemplateID = old.TemplateID
			}
			return rec
		})

	s.mediaTypes = newTable(s, "media type",
		func(r *store.MediaTypeRecord) *string { return &r.ID },
		func(r store.MediaTypeRecord) fields {
			return fields{id: r.ID, name: r.Name}
		}, nil)

	s.images = newTable(s, "image",
		func(r *store.ImageRecord) *string { return &r.ID },
		func(r store.ImageRecord) fields {
			return fields{id: r.ID, name: r.Name}
		}, nil)

	s.proxies = newTable(s, "proxy",
		func(r *store.ProxyRecord) *string { return &r.ID },
		func(r store.ProxyRecord) fields {
			return fields{id: r.ID, name: r.Name}
		}, nil)

	return s
}

func (s *Store) nextID() string {
	s.seq++
	return strconv.Itoa(s.seq)
}

func (s *Store) Groups() store.Service[store.GroupRecord]                 { return s.groups }
func (s *Store) Templates() store.Service[store.TemplateRecord]           { return s.templates }
func (s *Store) Hosts() store.Service[store.HostRecord]                   { return s.hosts }
func (s *Store) Items() store.Service[store.ItemRecord]                   { return s.items }
func (s *Store) ItemPrototypes() store.Service[store.ItemRecord]          { return s.itemPrototypes }
func (s *Store) DiscoveryRules() store.Service[store.ItemRecord]          { return s.discoveryRules }
func (s *Store) Triggers() store.Service[store.TriggerRecord]             { return s.triggers }
func (s *Store) TriggerPrototypes() store.Service[store.TriggerRecord]    { return s.triggerPrototypes }
func (s *Store) Graphs() store.Service[store.GraphRecord]                 { return s.graphs }
func (s *Store) GraphPrototypes() store.Service[store.GraphRecord]        { return s.graphPrototypes }
func (s *Store) HostPrototypes() store.Service[store.HostPrototypeRecord] { return s.hostPrototypes }
func (s *Store) ValueMaps() store.Service[store.ValueMapRecord]           { return s.valueMaps }
func (s *Store) HTTPTests() store.Service[store.HTTPTestRecord]           { return s.httpTests }
func (s *Store) Maps() store.Service[store.MapRecord]                     { return s.maps }
func (s *Store) Dashboards() store.Service[store.DashboardRecord]         { return s.dashboards }
func (s *Store) MediaTypes() store.Service[store.MediaTypeRecord]         { return s.mediaTypes }
func (s *Store) Images() store.Service[store.ImageRecord]                 { return s.images }
func (s *Store) Proxies() store.Service[store.ProxyRecord]                { return s.proxies }

// fields exposes the per-kind filterable fields to the shared matcher.
type fields struct {
	id        string
	uuid      string
	name      string
	hostIDs   []string
	ruleID    string
	inherited bool
}

// matchQuery applies a query to one row's fields.
//
// Without SearchByAny every populated filter must match. With SearchByAny
// the UUID filter becomes an alternative identity: a row matches when its
// UUID is listed, or when the remaining populated filters all match. IDs
// and Inherited always constrain both branches.
func matchQuery(q store.Query, f fields) bool {
	if len(q.IDs) > 0 && !slices.Contains(q.IDs, f.id) {
		return false
	}
	if q.Inherited != nil && *q.Inherited != f.inherited {
		return false
	}

	uuidOK := f.uuid != "" && slices.Contains(q.UUIDs, f.uuid)

	restApplied := false
	restOK := true
	if len(q.Names) > 0 {
		restApplied = true
		restOK = restOK && slices.Contains(q.Names, f.name)
	}
	if len(q.HostIDs) > 0 {
		restApplied = true
		restOK = restOK && intersects(f.hostIDs, q.HostIDs)
	}
	if len(q.RuleIDs) > 0 {
		restApplied = true
		restOK = restOK && slices.Contains(q.RuleIDs, f.ruleID)
	}

	if q.SearchByAny && len(q.UUIDs) > 0 {
		return uuidOK || (restApplied && restOK)
	}
	if len(q.UUIDs) > 0 && !uuidOK {
		return false
	}
	return restOK
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if slices.Contains(b, v) {
			return true
		}
	}
	return false
}

// table is one entity kind's row set.
type table[R any] struct {
	store  *Store
	kind   string
	rows   map[string]R
	idOf   func(*R) *string
	fields func(R) fields
	merge  func(old, incoming R) R
}

func newTable[R any](s *Store, kind string, idOf func(*R) *string, fieldsOf func(R) fields, merge func(old, incoming R) R) *table[R] {
	return &table[R]{
		store:  s,
		kind:   kind,
		rows:   map[string]R{},
		idOf:   idOf,
		fields: fieldsOf,
		merge:  merge,
	}
}

func (t *table[R]) Get(_ context.Context, q store.Query) ([]R, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	var out []R
	for _, r := range t.rows {
		if matchQuery(q, t.fields(r)) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b R) int {
		na, _ := strconv.Atoi(t.fields(a).id)
		nb, _ := strconv.Atoi(t.fields(b).id)
		return na - nb
	})
	return out, nil
}

func (t *table[R]) Create(_ context.Context, records []R) ([]string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	ids := make([]string, 0, len(records))
	for _, r := range records {
		id := t.store.nextID()
		*t.idOf(&r) = id
		t.rows[id] = r
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *table[R]) Update(_ context.Context, records []R) ([]string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	ids := make([]string, 0, len(records))
	for _, r := range records {
		id := *t.idOf(&r)
		old, ok := t.rows[id]
		if !ok {
			return nil, fmt.Errorf("%s %q: %w", t.kind, id, store.ErrNotFound)
		}
		if t.merge != nil {
			r = t.merge(old, r)
		}
		t.rows[id] = r
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *table[R]) Delete(_ context.Context, ids []string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, id := range ids {
		if _, ok := t.rows[id]; !ok {
			return fmt.Errorf("%s %q: %w", t.kind, id, store.ErrNotFound)
		}
		delete(t.rows, id)
	}
	return nil
}
