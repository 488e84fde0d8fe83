package importer

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

// ruleKey addresses one discovery rule of the bundle.
type ruleKey struct {
	Host string
	Key  string
}

func (im *Importer) processDiscoveryRules(ctx context.Context, b *types.Bundle) error {
	if !im.opts.DiscoveryRules.CreateMissing && !im.opts.DiscoveryRules.UpdateExisting {
		return nil
	}
	scoped := map[string][]types.DiscoveryRule{}
	for host, rules := range b.DiscoveryRules {
		if _, ok := im.ownerID(host); ok {
			scoped[host] = rules
		}
	}
	if len(scoped) == 0 {
		return nil
	}

	ruleIDs, err := im.importRules(ctx, scoped)
	if err != nil {
		return err
	}

	// Prototypes live under rules that resolved to an id; rules skipped by
	// policy take their subtrees with them.
	if im.opts.DiscoveryRules.UpdateExisting {
		if err := im.deleteMissingPrototypes(ctx, scoped, ruleIDs); err != nil {
			return err
		}
	}
	if err := im.importItemPrototypes(ctx, scoped, ruleIDs); err != nil {
		return err
	}
	if err := im.importTriggerPrototypes(ctx, scoped, ruleIDs); err != nil {
		return err
	}
	if err := im.importGraphPrototypes(ctx, scoped, ruleIDs); err != nil {
		return err
	}
	if err := im.importHostPrototypes(ctx, scoped, ruleIDs); err != nil {
		return err
	}
	im.ref.RefreshItems()
	return nil
}

// importRules writes the discovery rules themselves and returns the store
// id of every rule that exists after the pass.
func (im *Importer) importRules(ctx context.Context, scoped map[string][]types.DiscoveryRule) (map[ruleKey]string, error) {
	ruleIDs := map[ruleKey]string{}
	var toCreate, toUpdate []store.ItemRecord
	var created []ruleKey
	for _, host := range slices.Sorted(maps.Keys(scoped)) {
		hostID, _ := im.ownerID(host)
		for _, rule := range scoped[host] {
			id := ""
			if rule.UUID != "" {
				var err error
				if id, err = im.ref.FindDiscoveryRuleIDByUUID(ctx, rule.UUID); err != nil {
					return nil, err
				}
			}
			if id == "" {
				var err error
				if id, err = im.ref.FindDiscoveryRuleIDByKey(ctx, host, rule.Key); err != nil {
					return nil, err
				}
			}

			masterID := ""
			if rule.Type == types.ItemTypeDependent {
				if rule.MasterKey == "" {
					return nil, fmt.Errorf(
						"cannot import discovery rule %q on %q: dependent rule without a master item reference", rule.Key, host)
				}
				var err error
				if masterID, err = im.ref.FindItemIDByKey(ctx, host, rule.MasterKey); err != nil {
					return nil, err
				}
				if masterID == "" {
					return nil, &ReferenceError{
						Kind: "discovery rule", Name: rule.Key, Host: host,
						Field: "master item", Target: rule.MasterKey,
					}
				}
			}

			rec := store.ItemRecord{
				ID:           id,
				UUID:         rule.UUID,
				HostID:       hostID,
				Key:          rule.Key,
				Name:         rule.Name,
				Type:         rule.Type,
				MasterItemID: masterID,
				Fields:       ruleFields(rule),
			}
			switch {
			case id == "" && im.opts.DiscoveryRules.CreateMissing:
				toCreate = append(toCreate, rec)
				created = append(created, ruleKey{host, rule.Key})
			case id != "":
				if im.opts.DiscoveryRules.UpdateExisting {
					toUpdate = append(toUpdate, rec)
				}
				ruleIDs[ruleKey{host, rule.Key}] = id
			}
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.DiscoveryRules().Update(ctx, toUpdate); err != nil {
			return nil, fmt.Errorf("update discovery rules: %w", err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := im.store.DiscoveryRules().Create(ctx, toCreate)
		if err != nil {
			return nil, fmt.Errorf("create discovery rules: %w", err)
		}
		for i, key := range created {
			im.ref.SetDbDiscoveryRule(key.Host, key.Key, toCreate[i].UUID, ids[i])
			ruleIDs[key] = ids[i]
		}
	}
	return ruleIDs, nil
}

func ruleFields(rule types.DiscoveryRule) map[string]string {
	if rule.Interface == "" {
		return rule.Extra
	}
	f := make(map[string]string, len(rule.Extra)+1)
	maps.Copy(f, rule.Extra)
	f["interface_ref"] = rule.Interface
	return f
}

// deleteMissingPrototypes removes store prototypes under the processed
// rules that the bundle no longer carries, before the prototype
// create/update sub-phases run.
func (im *Importer) deleteMissingPrototypes(ctx context.Context, scoped map[string][]types.DiscoveryRule, ruleIDs map[ruleKey]string) error {
	ids := make([]string, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	retainItems := map[string]struct{}{}
	retainTriggers := map[string]struct{}{}
	retainGraphs := map[string]struct{}{}
	retainHosts := map[string]struct{}{}
	for host, rules := range scoped {
		for _, rule := range rules {
			ruleID, ok := ruleIDs[ruleKey{host, rule.Key}]
			if !ok {
				continue
			}
			for _, it := range rule.ItemPrototypes {
				id, err := im.resolveFirst(ctx,
					uuidLookup(im.ref.FindItemPrototypeIDByUUID, it.UUID),
					func(ctx context.Context) (string, error) { return im.ref.FindItemPrototypeIDByKey(ctx, host, it.Key) })
				if err != nil {
					return err
				}
				retain(retainItems, id)
			}
			for _, t := range rule.TriggerPrototypes {
				id, err := im.resolveFirst(ctx,
					uuidLookup(im.ref.FindTriggerPrototypeIDByUUID, t.UUID),
					func(ctx context.Context) (string, error) { return im.ref.FindTriggerPrototypeIDByRef(ctx, t.Ref()) })
				if err != nil {
					return err
				}
				retain(retainTriggers, id)
			}
			for _, g := range rule.GraphPrototypes {
				id, err := im.resolveFirst(ctx, uuidLookup(im.ref.FindGraphPrototypeIDByUUID, g.UUID))
				if err != nil {
					return err
				}
				for _, owner := range g.Hosts() {
					if id != "" {
						break
					}
					if id, err = im.ref.FindGraphPrototypeIDByName(ctx, owner, g.Name); err != nil {
						return err
					}
				}
				retain(retainGraphs, id)
			}
			for _, p := range rule.HostPrototypes {
				im.ref.AddHostPrototype(ruleID, p)
				id, err := im.resolveFirst(ctx,
					uuidLookup(im.ref.FindHostPrototypeIDByUUID, p.UUID),
					func(ctx context.Context) (string, error) { return im.ref.FindHostPrototypeID(ctx, ruleID, p.Host) })
				if err != nil {
					return err
				}
				retain(retainHosts, id)
			}
		}
	}

	if err := deleteUnretained(ctx, im.store.ItemPrototypes(), "item prototypes", ids, retainItems,
		func(r store.ItemRecord) string { return r.ID }); err != nil {
		return err
	}
	if err := deleteUnretained(ctx, im.store.TriggerPrototypes(), "trigger prototypes", ids, retainTriggers,
		func(r store.TriggerRecord) string { return r.ID }); err != nil {
		return err
	}
	if err := deleteUnretained(ctx, im.store.GraphPrototypes(), "graph prototypes", ids, retainGraphs,
		func(r store.GraphRecord) string { return r.ID }); err != nil {
		return err
	}
	if err := deleteUnretained(ctx, im.store.HostPrototypes(), "host prototypes", ids, retainHosts,
		func(r store.HostPrototypeRecord) string { return r.ID }); err != nil {
		return err
	}
	im.ref.RefreshItems()
	im.ref.RefreshTriggers()
	im.ref.RefreshGraphs()
	im.ref.RefreshHostPrototypes()
	return nil
}

// deleteUnretained deletes the kind's rows under the given rules whose ids
// are not in the retained set.
func deleteUnretained[R any](ctx context.Context, svc store.Service[R], label string, ruleIDs []string, retained map[string]struct{}, idOf func(R) string) error {
	rows, err := svc.Get(ctx, store.Query{RuleIDs: ruleIDs})
	if err != nil {
		return fmt.Errorf("load %s: %w", label, err)
	}
	var doomed []string
	for _, row := range rows {
		if _, ok := retained[idOf(row)]; !ok {
			doomed = append(doomed, idOf(row))
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := svc.Delete(ctx, doomed); err != nil {
		return fmt.Errorf("delete %s: %w", label, err)
	}
	return nil
}

func retain(set map[string]struct{}, id string) {
	if id != "" {
		set[id] = struct{}{}
	}
}

func uuidLookup(find func(context.Context, string) (string, error), uuid string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if uuid == "" {
			return "", nil
		}
		return find(ctx, uuid)
	}
}

// resolveFirst returns the first non-empty id the lookups produce.
func (im *Importer) resolveFirst(ctx context.Context, lookups ...func(context.Context) (string, error)) (string, error) {
	for _, lookup := range lookups {
		id, err := lookup(ctx)
		if err != nil || id != "" {
			return id, err
		}
	}
	return "", nil
}

func (im *Importer) importItemPrototypes(ctx context.Context, scoped map[string][]types.DiscoveryRule, ruleIDs map[ruleKey]string) error {
	for _, host := range slices.Sorted(maps.Keys(scoped)) {
		for _, rule := range scoped[host] {
			ruleID, ok := ruleIDs[ruleKey{host, rule.Key}]
			if !ok || len(rule.ItemPrototypes) == 0 {
				continue
			}
			ops := itemOps{
				kind:       "item prototype",
				svc:        im.store.ItemPrototypes(),
				findByUUID: im.ref.FindItemPrototypeIDByUUID,
				findByKey:  im.ref.FindItemPrototypeIDByKey,
				findMaster: func(ctx context.Context, host, key string) (string, error) {
					id, err := im.ref.FindItemPrototypeIDByKey(ctx, host, key)
					if err != nil || id != "" {
						return id, err
					}
					return im.ref.FindItemIDByKey(ctx, host, key)
				},
				setDb:  im.ref.SetDbItemPrototype,
				ruleID: func(string) string { return ruleID },
			}
			batch := map[string][]types.Item{host: rule.ItemPrototypes}
			if err := im.importLeveled(ctx, im.opts.DiscoveryRules, ops, batch, true); err != nil {
				return err
			}
		}
	}
	im.ref.RefreshItems()
	return nil
}

func (im *Importer) importTriggerPrototypes(ctx context.Context, scoped map[string][]types.DiscoveryRule, ruleIDs map[ruleKey]string) error {
	var batch []scopedTrigger
	for _, host := range slices.Sorted(maps.Keys(scoped)) {
		for _, rule := range scoped[host] {
			ruleID, ok := ruleIDs[ruleKey{host, rule.Key}]
			if !ok {
				continue
			}
			for _, t := range rule.TriggerPrototypes {
				batch = append(batch, scopedTrigger{t: t, ruleID: ruleID})
			}
		}
	}
	if len(batch) == 0 {
		return nil
	}
	ops := triggerOps{
		kind:       "trigger prototype",
		svc:        im.store.TriggerPrototypes(),
		findByUUID: im.ref.FindTriggerPrototypeIDByUUID,
		findByRef:  im.ref.FindTriggerPrototypeIDByRef,
		findDep: func(ctx context.Context, ref types.TriggerRef) (string, error) {
			id, err := im.ref.FindTriggerPrototypeIDByRef(ctx, ref)
			if err != nil || id != "" {
				return id, err
			}
			return im.ref.FindTriggerIDByRef(ctx, ref)
		},
		setDb: im.ref.SetDbTriggerPrototype,
	}
	if err := im.importTriggers(ctx, im.opts.DiscoveryRules, ops, batch); err != nil {
		return err
	}
	im.ref.RefreshTriggers()
	return nil
}

func (im *Importer) importGraphPrototypes(ctx context.Context, scoped map[string][]types.DiscoveryRule, ruleIDs map[ruleKey]string) error {
	var batch []scopedGraph
	for _, host := range slices.Sorted(maps.Keys(scoped)) {
		for _, rule := range scoped[host] {
			ruleID, ok := ruleIDs[ruleKey{host, rule.Key}]
			if !ok {
				continue
			}
			for _, g := range rule.GraphPrototypes {
				batch = append(batch, scopedGraph{g: g, ruleID: ruleID})
			}
		}
	}
	if len(batch) == 0 {
		return nil
	}
	ops := graphOps{
		kind:       "graph prototype",
		svc:        im.store.GraphPrototypes(),
		findByUUID: im.ref.FindGraphPrototypeIDByUUID,
		findByName: im.ref.FindGraphPrototypeIDByName,
		findItem: func(ctx context.Context, host, key string) (string, error) {
			id, err := im.ref.FindItemPrototypeIDByKey(ctx, host, key)
			if err != nil || id != "" {
				return id, err
			}
			return im.ref.FindItemIDByKey(ctx, host, key)
		},
		setDb: im.ref.SetDbGraphPrototype,
	}
	if err := im.importGraphs(ctx, im.opts.DiscoveryRules, ops, batch); err != nil {
		return err
	}
	im.ref.RefreshGraphs()
	return nil
}

func (im *Importer) importHostPrototypes(ctx context.Context, scoped map[string][]types.DiscoveryRule, ruleIDs map[ruleKey]string) error {
	var toCreate, toUpdate []store.HostPrototypeRecord
	var created []protoOrigin
	for _, host := range slices.Sorted(maps.Keys(scoped)) {
		hostID, _ := im.ownerID(host)
		for _, rule := range scoped[host] {
			ruleID, ok := ruleIDs[ruleKey{host, rule.Key}]
			if !ok {
				continue
			}
			for _, p := range rule.HostPrototypes {
				im.ref.AddHostPrototype(ruleID, p)
				id, err := im.resolveFirst(ctx,
					uuidLookup(im.ref.FindHostPrototypeIDByUUID, p.UUID),
					func(ctx context.Context) (string, error) { return im.ref.FindHostPrototypeID(ctx, ruleID, p.Host) })
				if err != nil {
					return err
				}

				groupIDs := make([]string, 0, len(p.GroupLinks))
				for _, name := range p.GroupLinks {
					gid, err := im.ref.FindGroupIDByName(ctx, name)
					if err != nil {
						return err
					}
					if gid == "" {
						return &ReferenceError{Kind: "host prototype", Name: p.Host, Host: host, Field: "host group", Target: name}
					}
					groupIDs = append(groupIDs, gid)
				}
				templateIDs := make([]string, 0, len(p.Templates))
				for _, name := range p.Templates {
					tid, err := im.ref.FindTemplateIDByHost(ctx, name)
					if err != nil {
						return err
					}
					if tid == "" {
						return &ReferenceError{Kind: "host prototype", Name: p.Host, Host: host, Field: "linked template", Target: name}
					}
					templateIDs = append(templateIDs, tid)
				}

				rec := store.HostPrototypeRecord{
					ID:              id,
					UUID:            p.UUID,
					HostID:          hostID,
					RuleID:          ruleID,
					Host:            p.Host,
					Name:            p.Name,
					GroupIDs:        groupIDs,
					GroupPrototypes: p.GroupPrototypes,
					TemplateIDs:     templateIDs,
					Macros:          macroRecords(p.Macros),
				}
				switch {
				case id == "" && im.opts.DiscoveryRules.CreateMissing:
					toCreate = append(toCreate, rec)
					created = append(created, protoOrigin{ruleID, p.Host})
				case id != "" && im.opts.DiscoveryRules.UpdateExisting:
					toUpdate = append(toUpdate, rec)
				}
			}
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.HostPrototypes().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update host prototypes: %w", err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := im.store.HostPrototypes().Create(ctx, toCreate)
		if err != nil {
			return fmt.Errorf("create host prototypes: %w", err)
		}
		for i, origin := range created {
			im.ref.SetDbHostPrototype(origin.ruleID, origin.host, toCreate[i].UUID, ids[i])
		}
	}
	return nil
}

type protoOrigin struct {
	ruleID string
	host   string
}
