// Package referencer resolves natural keys and UUIDs from a configuration
// bundle to store ids.
//
// The importer registers every reference it encounters while gathering a
// bundle, then looks ids up on demand. Each entity kind is fetched from
// the store in one batched query the first time a lookup touches it; rows
// written during the import are pushed into the caches with the SetDb
// methods, and Refresh methods drop a kind's rows so the next lookup
// reloads them.
//
// Lookups return the empty string, not an error, when a registered
// reference has no store row. Callers decide whether a miss is fatal.
package referencer

import (
	"context"
	"fmt"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

// itemKey addresses an item, discovery rule or item prototype by owner
// technical name and key.
type itemKey struct {
	Host string
	Key  string
}

// nameKey addresses a host-scoped entity by owner technical name and name.
type nameKey struct {
	Host string
	Name string
}

// protoKey addresses a host prototype within its discovery rule.
type protoKey struct {
	RuleID string
	Host   string
}

// Registry is the reference resolver for one import run.
type Registry struct {
	store store.EntityStore

	groups    *cache[string]
	templates *cache[string]
	hosts     *cache[string]
	proxies   *cache[string]

	items          *cache[itemKey]
	discoveryRules *cache[itemKey]
	itemPrototypes *cache[itemKey]

	valueMaps *cache[nameKey]
	httpTests *cache[nameKey]

	triggers          *cache[types.TriggerRef]
	triggerPrototypes *cache[types.TriggerRef]

	graphs          *cache[nameKey]
	graphPrototypes *cache[nameKey]

	hostPrototypes *cache[protoKey]

	maps       *cache[string]
	images     *cache[string]
	mediaTypes *cache[string]
	dashboards *cache[string]
}

// New returns an empty registry backed by the given store.
func New(s store.EntityStore) *Registry {
	return &Registry{
		store:             s,
		groups:            newCache[string](),
		templates:         newCache[string](),
		hosts:             newCache[string](),
		proxies:           newCache[string](),
		items:             newCache[itemKey](),
		discoveryRules:    newCache[itemKey](),
		itemPrototypes:    newCache[itemKey](),
		valueMaps:         newCache[nameKey](),
		httpTests:         newCache[nameKey](),
		triggers:          newCache[types.TriggerRef](),
		triggerPrototypes: newCache[types.TriggerRef](),
		graphs:            newCache[nameKey](),
		graphPrototypes:   newCache[nameKey](),
		hostPrototypes:    newCache[protoKey](),
		maps:              newCache[string](),
		images:            newCache[string](),
		mediaTypes:        newCache[string](),
		dashboards:        newCache[string](),
	}
}

// ---- registration ----

// AddGroups registers host groups by name and UUID.
func (r *Registry) AddGroups(groups []types.Group) {
	for _, g := range groups {
		r.groups.add(g.Name)
		r.groups.addUUID(g.UUID)
	}
}

// AddGroupByName registers a host group referenced by name only.
func (r *Registry) AddGroupByName(name string) {
	r.groups.add(name)
}

// AddTemplates registers templates by technical name and UUID, plus the
// templates they link to by name.
func (r *Registry) AddTemplates(templates []types.Template) {
	for _, t := range templates {
		r.templates.add(t.Host)
		r.templates.addUUID(t.UUID)
		for _, linked := range t.Linked {
			r.templates.add(linked)
		}
	}
}

// AddTemplateByHost registers a template referenced by technical name.
func (r *Registry) AddTemplateByHost(host string) {
	r.templates.add(host)
}

// AddHosts registers hosts by technical name.
func (r *Registry) AddHosts(hosts []types.Host) {
	for _, h := range hosts {
		r.hosts.add(h.Host)
	}
}

// AddHostByHost registers a host referenced by technical name.
func (r *Registry) AddHostByHost(host string) {
	r.hosts.add(host)
}

// AddProxyByName registers a proxy referenced by name.
func (r *Registry) AddProxyByName(name string) {
	if name != "" {
		r.proxies.add(name)
	}
}

func (r *Registry) addOwner(host string) {
	r.templates.add(host)
	r.hosts.add(host)
}

// AddItem registers an item under its owning host or template.
func (r *Registry) AddItem(host string, it types.Item) {
	r.addOwner(host)
	r.items.add(itemKey{host, it.Key})
	r.items.addUUID(it.UUID)
	if it.MasterKey != "" {
		r.items.add(itemKey{host, it.MasterKey})
	}
}

// AddItemRef registers an item reference whose kind is unknown, so the
// key is indexed for items, discovery rules and item prototypes alike.
func (r *Registry) AddItemRef(host, key string) {
	r.addOwner(host)
	k := itemKey{host, key}
	r.items.add(k)
	r.discoveryRules.add(k)
	r.itemPrototypes.add(k)
}

// AddDiscoveryRule registers a discovery rule under its owner.
func (r *Registry) AddDiscoveryRule(host string, rule types.DiscoveryRule) {
	r.addOwner(host)
	r.discoveryRules.add(itemKey{host, rule.Key})
	r.discoveryRules.addUUID(rule.UUID)
	if rule.MasterKey != "" {
		r.items.add(itemKey{host, rule.MasterKey})
	}
}

// AddItemPrototype registers an item prototype under its owner.
func (r *Registry) AddItemPrototype(host string, it types.Item) {
	r.addOwner(host)
	r.itemPrototypes.add(itemKey{host, it.Key})
	r.itemPrototypes.addUUID(it.UUID)
	if it.MasterKey != "" {
		r.itemPrototypes.add(itemKey{host, it.MasterKey})
	}
}

// AddValueMap registers a value map under its owner.
func (r *Registry) AddValueMap(host string, vm types.ValueMap) {
	r.addOwner(host)
	r.valueMaps.add(nameKey{host, vm.Name})
	r.valueMaps.addUUID(vm.UUID)
}

// AddValueMapByName registers a value map referenced by name only, as
// items do.
func (r *Registry) AddValueMapByName(host, name string) {
	r.addOwner(host)
	r.valueMaps.add(nameKey{host, name})
}

// AddTrigger registers a trigger by composite key and UUID.
func (r *Registry) AddTrigger(t types.Trigger) {
	r.triggers.add(t.Ref())
	r.triggers.addUUID(t.UUID)
}

// AddTriggerRef registers a trigger referenced by composite key only, as
// dependencies and map links do.
func (r *Registry) AddTriggerRef(ref types.TriggerRef) {
	r.triggers.add(ref)
}

// AddTriggerPrototype registers a trigger prototype.
func (r *Registry) AddTriggerPrototype(t types.Trigger) {
	r.triggerPrototypes.add(t.Ref())
	r.triggerPrototypes.addUUID(t.UUID)
}

// AddTriggerPrototypeRef registers a trigger prototype referenced by
// composite key only.
func (r *Registry) AddTriggerPrototypeRef(ref types.TriggerRef) {
	r.triggerPrototypes.add(ref)
}

// AddGraph registers a graph under every host its items reference.
func (r *Registry) AddGraph(g types.Graph) {
	r.addGraph(r.graphs, g)
}

// AddGraphPrototype registers a graph prototype.
func (r *Registry) AddGraphPrototype(g types.Graph) {
	r.addGraph(r.graphPrototypes, g)
}

func (r *Registry) addGraph(c *cache[nameKey], g types.Graph) {
	c.addUUID(g.UUID)
	for _, host := range g.Hosts() {
		r.addOwner(host)
		c.add(nameKey{host, g.Name})
	}
}

// AddGraphByName registers a graph referenced by owner and name, as
// dashboard widgets do.
func (r *Registry) AddGraphByName(host, name string) {
	r.addOwner(host)
	r.graphs.add(nameKey{host, name})
}

// AddGraphPrototypeByName registers a graph prototype referenced by owner
// and name.
func (r *Registry) AddGraphPrototypeByName(host, name string) {
	r.addOwner(host)
	r.graphPrototypes.add(nameKey{host, name})
}

// AddHostPrototype registers a host prototype under its resolved rule id.
// Unlike the other kinds this happens at processing time, once discovery
// rule ids are known.
func (r *Registry) AddHostPrototype(ruleID string, p types.HostPrototype) {
	r.hostPrototypes.add(protoKey{ruleID, p.Host})
	r.hostPrototypes.addUUID(p.UUID)
}

// AddHTTPTest registers a web scenario under its owner.
func (r *Registry) AddHTTPTest(host string, t types.HTTPTest) {
	r.addOwner(host)
	r.httpTests.add(nameKey{host, t.Name})
	r.httpTests.addUUID(t.UUID)
}

// AddMapByName registers a map referenced by name.
func (r *Registry) AddMapByName(name string) {
	r.maps.add(name)
}

// AddImageByName registers an image referenced by name.
func (r *Registry) AddImageByName(name string) {
	if name != "" {
		r.images.add(name)
	}
}

// AddMediaTypeByName registers a media type referenced by name.
func (r *Registry) AddMediaTypeByName(name string) {
	r.mediaTypes.add(name)
}

// AddDashboard registers a dashboard by UUID.
func (r *Registry) AddDashboard(d types.Dashboard) {
	r.dashboards.addUUID(d.UUID)
}

// ---- lookups ----

func (r *Registry) FindGroupIDByName(ctx context.Context, name string) (string, error) {
	if err := r.ensureGroups(ctx); err != nil {
		return "", err
	}
	return r.groups.ids[name], nil
}

func (r *Registry) FindGroupIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureGroups(ctx); err != nil {
		return "", err
	}
	return r.groups.byUUID[uuid], nil
}

func (r *Registry) FindTemplateIDByHost(ctx context.Context, host string) (string, error) {
	if err := r.ensureTemplates(ctx); err != nil {
		return "", err
	}
	return r.templates.ids[host], nil
}

func (r *Registry) FindTemplateIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureTemplates(ctx); err != nil {
		return "", err
	}
	return r.templates.byUUID[uuid], nil
}

func (r *Registry) FindHostIDByHost(ctx context.Context, host string) (string, error) {
	if err := r.ensureHosts(ctx); err != nil {
		return "", err
	}
	return r.hosts.ids[host], nil
}

// FindTemplateOrHostIDByHost resolves a technical name that may belong to
// either kind. Templates win when both exist.
func (r *Registry) FindTemplateOrHostIDByHost(ctx context.Context, host string) (string, error) {
	id, err := r.FindTemplateIDByHost(ctx, host)
	if err != nil || id != "" {
		return id, err
	}
	return r.FindHostIDByHost(ctx, host)
}

func (r *Registry) FindProxyIDByName(ctx context.Context, name string) (string, error) {
	if err := r.ensureProxies(ctx); err != nil {
		return "", err
	}
	return r.proxies.ids[name], nil
}

func (r *Registry) FindItemIDByKey(ctx context.Context, host, key string) (string, error) {
	if err := r.ensureItemCache(ctx, r.items, r.store.Items(), "items"); err != nil {
		return "", err
	}
	return r.items.ids[itemKey{host, key}], nil
}

func (r *Registry) FindItemIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureItemCache(ctx, r.items, r.store.Items(), "items"); err != nil {
		return "", err
	}
	return r.items.byUUID[uuid], nil
}

func (r *Registry) FindDiscoveryRuleIDByKey(ctx context.Context, host, key string) (string, error) {
	if err := r.ensureItemCache(ctx, r.discoveryRules, r.store.DiscoveryRules(), "discovery rules"); err != nil {
		return "", err
	}
	return r.discoveryRules.ids[itemKey{host, key}], nil
}

func (r *Registry) FindDiscoveryRuleIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureItemCache(ctx, r.discoveryRules, r.store.DiscoveryRules(), "discovery rules"); err != nil {
		return "", err
	}
	return r.discoveryRules.byUUID[uuid], nil
}

func (r *Registry) FindItemPrototypeIDByKey(ctx context.Context, host, key string) (string, error) {
	if err := r.ensureItemCache(ctx, r.itemPrototypes, r.store.ItemPrototypes(), "item prototypes"); err != nil {
		return "", err
	}
	return r.itemPrototypes.ids[itemKey{host, key}], nil
}

func (r *Registry) FindItemPrototypeIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureItemCache(ctx, r.itemPrototypes, r.store.ItemPrototypes(), "item prototypes"); err != nil {
		return "", err
	}
	return r.itemPrototypes.byUUID[uuid], nil
}

// FindAnyItemIDByKey resolves a key that may name an item, a discovery
// rule or an item prototype, in that order.
func (r *Registry) FindAnyItemIDByKey(ctx context.Context, host, key string) (string, error) {
	id, err := r.FindItemIDByKey(ctx, host, key)
	if err != nil || id != "" {
		return id, err
	}
	id, err = r.FindDiscoveryRuleIDByKey(ctx, host, key)
	if err != nil || id != "" {
		return id, err
	}
	return r.FindItemPrototypeIDByKey(ctx, host, key)
}

func (r *Registry) FindValueMapIDByName(ctx context.Context, host, name string) (string, error) {
	if err := r.ensureValueMaps(ctx); err != nil {
		return "", err
	}
	return r.valueMaps.ids[nameKey{host, name}], nil
}

func (r *Registry) FindValueMapIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureValueMaps(ctx); err != nil {
		return "", err
	}
	return r.valueMaps.byUUID[uuid], nil
}

func (r *Registry) FindTriggerIDByRef(ctx context.Context, ref types.TriggerRef) (string, error) {
	if err := r.ensureTriggerCache(ctx, r.triggers, r.store.Triggers(), "triggers"); err != nil {
		return "", err
	}
	return r.triggers.ids[ref], nil
}

func (r *Registry) FindTriggerIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureTriggerCache(ctx, r.triggers, r.store.Triggers(), "triggers"); err != nil {
		return "", err
	}
	return r.triggers.byUUID[uuid], nil
}

func (r *Registry) FindTriggerPrototypeIDByRef(ctx context.Context, ref types.TriggerRef) (string, error) {
	if err := r.ensureTriggerCache(ctx, r.triggerPrototypes, r.store.TriggerPrototypes(), "trigger prototypes"); err != nil {
		return "", err
	}
	return r.triggerPrototypes.ids[ref], nil
}

func (r *Registry) FindTriggerPrototypeIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureTriggerCache(ctx, r.triggerPrototypes, r.store.TriggerPrototypes(), "trigger prototypes"); err != nil {
		return "", err
	}
	return r.triggerPrototypes.byUUID[uuid], nil
}

func (r *Registry) FindGraphIDByName(ctx context.Context, host, name string) (string, error) {
	if err := r.ensureGraphCache(ctx, r.graphs, r.store.Graphs(), "graphs"); err != nil {
		return "", err
	}
	return r.graphs.ids[nameKey{host, name}], nil
}

func (r *Registry) FindGraphIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureGraphCache(ctx, r.graphs, r.store.Graphs(), "graphs"); err != nil {
		return "", err
	}
	return r.graphs.byUUID[uuid], nil
}

func (r *Registry) FindGraphPrototypeIDByName(ctx context.Context, host, name string) (string, error) {
	if err := r.ensureGraphCache(ctx, r.graphPrototypes, r.store.GraphPrototypes(), "graph prototypes"); err != nil {
		return "", err
	}
	return r.graphPrototypes.ids[nameKey{host, name}], nil
}

func (r *Registry) FindGraphPrototypeIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureGraphCache(ctx, r.graphPrototypes, r.store.GraphPrototypes(), "graph prototypes"); err != nil {
		return "", err
	}
	return r.graphPrototypes.byUUID[uuid], nil
}

func (r *Registry) FindHostPrototypeID(ctx context.Context, ruleID, host string) (string, error) {
	if err := r.ensureHostPrototypes(ctx); err != nil {
		return "", err
	}
	return r.hostPrototypes.ids[protoKey{ruleID, host}], nil
}

func (r *Registry) FindHostPrototypeIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureHostPrototypes(ctx); err != nil {
		return "", err
	}
	return r.hostPrototypes.byUUID[uuid], nil
}

func (r *Registry) FindHTTPTestIDByName(ctx context.Context, host, name string) (string, error) {
	if err := r.ensureHTTPTests(ctx); err != nil {
		return "", err
	}
	return r.httpTests.ids[nameKey{host, name}], nil
}

func (r *Registry) FindHTTPTestIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureHTTPTests(ctx); err != nil {
		return "", err
	}
	return r.httpTests.byUUID[uuid], nil
}

func (r *Registry) FindMapIDByName(ctx context.Context, name string) (string, error) {
	if err := r.ensureMaps(ctx); err != nil {
		return "", err
	}
	return r.maps.ids[name], nil
}

func (r *Registry) FindImageIDByName(ctx context.Context, name string) (string, error) {
	if err := r.ensureImages(ctx); err != nil {
		return "", err
	}
	return r.images.ids[name], nil
}

func (r *Registry) FindMediaTypeIDByName(ctx context.Context, name string) (string, error) {
	if err := r.ensureMediaTypes(ctx); err != nil {
		return "", err
	}
	return r.mediaTypes.ids[name], nil
}

func (r *Registry) FindDashboardIDByUUID(ctx context.Context, uuid string) (string, error) {
	if err := r.ensureDashboards(ctx); err != nil {
		return "", err
	}
	return r.dashboards.byUUID[uuid], nil
}

// ---- write-through ----

func (r *Registry) SetDbGroup(name, uuid, id string) {
	r.groups.set(name, uuid, id)
}

func (r *Registry) SetDbTemplate(host, uuid, id string) {
	r.templates.set(host, uuid, id)
}

func (r *Registry) SetDbHost(host, id string) {
	r.hosts.set(host, "", id)
}

func (r *Registry) SetDbItem(host, key, uuid, id string) {
	r.items.set(itemKey{host, key}, uuid, id)
}

func (r *Registry) SetDbDiscoveryRule(host, key, uuid, id string) {
	r.discoveryRules.set(itemKey{host, key}, uuid, id)
}

func (r *Registry) SetDbItemPrototype(host, key, uuid, id string) {
	r.itemPrototypes.set(itemKey{host, key}, uuid, id)
}

func (r *Registry) SetDbValueMap(host, name, uuid, id string) {
	r.valueMaps.set(nameKey{host, name}, uuid, id)
}

func (r *Registry) SetDbTrigger(ref types.TriggerRef, uuid, id string) {
	r.triggers.set(ref, uuid, id)
}

func (r *Registry) SetDbTriggerPrototype(ref types.TriggerRef, uuid, id string) {
	r.triggerPrototypes.set(ref, uuid, id)
}

func (r *Registry) SetDbGraph(hosts []string, name, uuid, id string) {
	for _, host := range hosts {
		r.graphs.set(nameKey{host, name}, uuid, id)
	}
}

func (r *Registry) SetDbGraphPrototype(hosts []string, name, uuid, id string) {
	for _, host := range hosts {
		r.graphPrototypes.set(nameKey{host, name}, uuid, id)
	}
}

func (r *Registry) SetDbHostPrototype(ruleID, host, uuid, id string) {
	r.hostPrototypes.set(protoKey{ruleID, host}, uuid, id)
}

func (r *Registry) SetDbHTTPTest(host, name, uuid, id string) {
	r.httpTests.set(nameKey{host, name}, uuid, id)
}

func (r *Registry) SetDbMap(name, id string) {
	r.maps.set(name, "", id)
}

func (r *Registry) SetDbImage(name, id string) {
	r.images.set(name, "", id)
}

func (r *Registry) SetDbMediaType(name, id string) {
	r.mediaTypes.set(name, "", id)
}

func (r *Registry) SetDbDashboard(uuid, id string) {
	r.dashboards.set(uuid, uuid, id)
}

// ---- invalidation ----

// RefreshItems drops the item, discovery rule and item prototype caches.
func (r *Registry) RefreshItems() {
	r.items.invalidate()
	r.discoveryRules.invalidate()
	r.itemPrototypes.invalidate()
}

// RefreshTriggers drops the trigger and trigger prototype caches.
func (r *Registry) RefreshTriggers() {
	r.triggers.invalidate()
	r.triggerPrototypes.invalidate()
}

// RefreshGraphs drops the graph and graph prototype caches.
func (r *Registry) RefreshGraphs() {
	r.graphs.invalidate()
	r.graphPrototypes.invalidate()
}

// RefreshValueMaps drops the value map cache.
func (r *Registry) RefreshValueMaps() {
	r.valueMaps.invalidate()
}

// RefreshHTTPTests drops the web scenario cache.
func (r *Registry) RefreshHTTPTests() {
	r.httpTests.invalidate()
}

// RefreshHostPrototypes drops the host prototype cache.
func (r *Registry) RefreshHostPrototypes() {
	r.hostPrototypes.invalidate()
}

// ---- loads ----

func (r *Registry) ensureGroups(ctx context.Context) error {
	c := r.groups
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}
	rows, err := r.store.Groups().Get(ctx, store.Query{
		Names:       setList(c.keys),
		UUIDs:       setList(c.uuids),
		SearchByAny: len(c.uuids) > 0 && len(c.keys) > 0,
	})
	if err != nil {
		return fmt.Errorf("load host groups: %w", err)
	}
	for _, row := range rows {
		c.ids[row.Name] = row.ID
		if row.UUID != "" {
			c.byUUID[row.UUID] = row.ID
		}
	}
	return nil
}

func (r *Registry) ensureTemplates(ctx context.Context) error {
	c := r.templates
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}
	rows, err := r.store.Templates().Get(ctx, store.Query{
		Names:       setList(c.keys),
		UUIDs:       setList(c.uuids),
		SearchByAny: len(c.uuids) > 0 && len(c.keys) > 0,
	})
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	for _, row := range rows {
		c.ids[row.Host] = row.ID
		if row.UUID != "" {
			c.byUUID[row.UUID] = row.ID
		}
	}
	return nil
}

func (r *Registry) ensureHosts(ctx context.Context) error {
	c := r.hosts
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}
	rows, err := r.store.Hosts().Get(ctx, store.Query{Names: setList(c.keys)})
	if err != nil {
		return fmt.Errorf("load hosts: %w", err)
	}
	for _, row := range rows {
		c.ids[row.Host] = row.ID
	}
	return nil
}

func (r *Registry) ensureProxies(ctx context.Context) error {
	c := r.proxies
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}
	rows, err := r.store.Proxies().Get(ctx, store.Query{Names: setList(c.keys)})
	if err != nil {
		return fmt.Errorf("load proxies: %w", err)
	}
	for _, row := range rows {
		c.ids[row.Name] = row.ID
	}
	return nil
}

// resolveOwners maps the technical names in keys to store ids, returning
// the id set for the query and the reverse id-to-name index. Names with
// no store row are skipped.
func (r *Registry) resolveOwners(ctx context.Context, names map[string]struct{}) ([]string, map[string]string, error) {
	var ids []string
	byID := map[string]string{}
	for name := range names {
		id, err := r.FindTemplateOrHostIDByHost(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		if id == "" {
			continue
		}
		if _, ok := byID[id]; !ok {
			byID[id] = name
			ids = append(ids, id)
		}
	}
	return ids, byID, nil
}

func (r *Registry) ensureItemCache(ctx context.Context, c *cache[itemKey], svc store.Service[store.ItemRecord], label string) error {
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}

	owners := map[string]struct{}{}
	keys := map[string]struct{}{}
	for k := range c.keys {
		owners[k.Host] = struct{}{}
		keys[k.Key] = struct{}{}
	}
	hostIDs, ownerByID, err := r.resolveOwners(ctx, owners)
	if err != nil {
		return err
	}

	q := store.Query{UUIDs: setList(c.uuids)}
	if len(hostIDs) > 0 {
		q.HostIDs = hostIDs
		q.Names = setList(keys)
	}
	if len(q.Names) == 0 && len(q.UUIDs) == 0 {
		return nil
	}
	q.SearchByAny = len(q.UUIDs) > 0 && len(q.Names) > 0

	rows, err := svc.Get(ctx, q)
	if err != nil {
		return fmt.Errorf("load %s: %w", label, err)
	}
	for _, row := range rows {
		if host, ok := ownerByID[row.HostID]; ok {
			c.ids[itemKey{host, row.Key}] = row.ID
		}
		if row.UUID != "" {
			c.byUUID[row.UUID] = row.ID
		}
	}
	return nil
}

func (r *Registry) ensureValueMaps(ctx context.Context) error {
	return r.ensureNamed(ctx, r.valueMaps, "value maps", func(ctx context.Context, q store.Query) ([]namedRow, error) {
		rows, err := r.store.ValueMaps().Get(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]namedRow, len(rows))
		for i, row := range rows {
			out[i] = namedRow{id: row.ID, uuid: row.UUID, name: row.Name, hostIDs: []string{row.HostID}}
		}
		return out, nil
	})
}

func (r *Registry) ensureHTTPTests(ctx context.Context) error {
	return r.ensureNamed(ctx, r.httpTests, "web scenarios", func(ctx context.Context, q store.Query) ([]namedRow, error) {
		rows, err := r.store.HTTPTests().Get(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]namedRow, len(rows))
		for i, row := range rows {
			out[i] = namedRow{id: row.ID, uuid: row.UUID, name: row.Name, hostIDs: []string{row.HostID}}
		}
		return out, nil
	})
}

func (r *Registry) ensureGraphCache(ctx context.Context, c *cache[nameKey], svc store.Service[store.GraphRecord], label string) error {
	return r.ensureNamed(ctx, c, label, func(ctx context.Context, q store.Query) ([]namedRow, error) {
		rows, err := svc.Get(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]namedRow, len(rows))
		for i, row := range rows {
			out[i] = namedRow{id: row.ID, uuid: row.UUID, name: row.Name, hostIDs: row.HostIDs}
		}
		return out, nil
	})
}

// namedRow is the kind-independent shape consumed by ensureNamed.
type namedRow struct {
	id      string
	uuid    string
	name    string
	hostIDs []string
}

// ensureNamed loads a host-scoped, name-addressed cache: value maps, web
// scenarios, graphs and graph prototypes all share this pattern.
func (r *Registry) ensureNamed(ctx context.Context, c *cache[nameKey], label string, get func(context.Context, store.Query) ([]namedRow, error)) error {
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}

	owners := map[string]struct{}{}
	names := map[string]struct{}{}
	for k := range c.keys {
		owners[k.Host] = struct{}{}
		names[k.Name] = struct{}{}
	}
	hostIDs, ownerByID, err := r.resolveOwners(ctx, owners)
	if err != nil {
		return err
	}

	q := store.Query{UUIDs: setList(c.uuids)}
	if len(hostIDs) > 0 {
		q.HostIDs = hostIDs
		q.Names = setList(names)
	}
	if len(q.Names) == 0 && len(q.UUIDs) == 0 {
		return nil
	}
	q.SearchByAny = len(q.UUIDs) > 0 && len(q.Names) > 0

	rows, err := get(ctx, q)
	if err != nil {
		return fmt.Errorf("load %s: %w", label, err)
	}
	for _, row := range rows {
		for _, hid := range row.hostIDs {
			if host, ok := ownerByID[hid]; ok {
				c.ids[nameKey{host, row.name}] = row.id
			}
		}
		if row.uuid != "" {
			c.byUUID[row.uuid] = row.id
		}
	}
	return nil
}

func (r *Registry) ensureTriggerCache(ctx context.Context, c *cache[types.TriggerRef], svc store.Service[store.TriggerRecord], label string) error {
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}

	names := map[string]struct{}{}
	for ref := range c.keys {
		names[ref.Name] = struct{}{}
	}
	q := store.Query{
		Names:       setList(names),
		UUIDs:       setList(c.uuids),
		SearchByAny: len(c.uuids) > 0 && len(names) > 0,
	}
	rows, err := svc.Get(ctx, q)
	if err != nil {
		return fmt.Errorf("load %s: %w", label, err)
	}
	// Same-name rows with a different expression come back too; only
	// registered composite keys are indexed.
	for _, row := range rows {
		if _, ok := c.keys[row.Ref()]; ok {
			c.ids[row.Ref()] = row.ID
		}
		if row.UUID != "" {
			c.byUUID[row.UUID] = row.ID
		}
	}
	return nil
}

func (r *Registry) ensureHostPrototypes(ctx context.Context) error {
	c := r.hostPrototypes
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}

	rules := map[string]struct{}{}
	names := map[string]struct{}{}
	for k := range c.keys {
		rules[k.RuleID] = struct{}{}
		names[k.Host] = struct{}{}
	}
	q := store.Query{
		RuleIDs:     setList(rules),
		Names:       setList(names),
		UUIDs:       setList(c.uuids),
		SearchByAny: len(c.uuids) > 0 && len(names) > 0,
	}
	rows, err := r.store.HostPrototypes().Get(ctx, q)
	if err != nil {
		return fmt.Errorf("load host prototypes: %w", err)
	}
	for _, row := range rows {
		c.ids[protoKey{row.RuleID, row.Host}] = row.ID
		if row.UUID != "" {
			c.byUUID[row.UUID] = row.ID
		}
	}
	return nil
}

func (r *Registry) ensureMaps(ctx context.Context) error {
	c := r.maps
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}
	rows, err := r.store.Maps().Get(ctx, store.Query{Names: setList(c.keys)})
	if err != nil {
		return fmt.Errorf("load maps: %w", err)
	}
	for _, row := range rows {
		c.ids[row.Name] = row.ID
	}
	return nil
}

func (r *Registry) ensureImages(ctx context.Context) error {
	c := r.images
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}
	rows, err := r.store.Images().Get(ctx, store.Query{Names: setList(c.keys)})
	if err != nil {
		return fmt.Errorf("load images: %w", err)
	}
	for _, row := range rows {
		c.ids[row.Name] = row.ID
	}
	return nil
}

func (r *Registry) ensureMediaTypes(ctx context.Context) error {
	c := r.mediaTypes
	if c.loaded {
		return nil
	}
	c.reset()
	if c.empty() {
		return nil
	}
	rows, err := r.store.MediaTypes().Get(ctx, store.Query{Names: setList(c.keys)})
	if err != nil {
		return fmt.Errorf("load media types: %w", err)
	}
	for _, row := range rows {
		c.ids[row.Name] = row.ID
	}
	return nil
}

func (r *Registry) ensureDashboards(ctx context.Context) error {
	c := r.dashboards
	if c.loaded {
		return nil
	}
	c.reset()
	if len(c.uuids) == 0 {
		return nil
	}
	rows, err := r.store.Dashboards().Get(ctx, store.Query{UUIDs: setList(c.uuids)})
	if err != nil {
		return fmt.Errorf("load dashboards: %w", err)
	}
	for _, row := range rows {
		c.byUUID[row.UUID] = row.ID
	}
	return nil
}
