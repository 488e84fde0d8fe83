// Package deporder computes write ordering for dependent items.
//
// A dependent item takes its value from a master item on the same host,
// and the master must exist before the dependent can be written. The
// Orderer assigns every bundle item a level: 0 for items with no master,
// otherwise one more than its master's level. Masters missing from the
// bundle are resolved against the store, and their own stored chains
// count toward the level. Chains are capped and cycles rejected before
// anything is written.
package deporder

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsforge/confsync/internal/referencer"
	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

// MaxLevels is the longest allowed master chain below an item.
const MaxLevels = 3

var (
	// ErrCircularDependency marks a master chain that loops back on itself.
	ErrCircularDependency = errors.New("circular master item chain")

	// ErrTooDeep marks a master chain longer than MaxLevels.
	ErrTooDeep = errors.New("maximum item dependency depth exceeded")

	// ErrMasterNotFound marks a stored master reference pointing at a row
	// that no longer exists.
	ErrMasterNotFound = errors.New("master item not found")
)

// Orderer levels one batch of items or item prototypes.
type Orderer struct {
	store      store.EntityStore
	ref        *referencer.Registry
	prototypes bool
}

// New returns an orderer. With prototypes set, store-side masters are
// looked up among item prototypes before plain items.
func New(s store.EntityStore, r *referencer.Registry, prototypes bool) *Orderer {
	return &Orderer{store: s, ref: r, prototypes: prototypes}
}

type masterRef struct {
	Host string
	Key  string
}

// Levels maps each host's item keys to their dependency level. The input
// is keyed by owner technical name, as in a bundle.
func (o *Orderer) Levels(ctx context.Context, items map[string][]types.Item) (map[string]map[string]int, error) {
	byHost := make(map[string]map[string]types.Item, len(items))
	var external []masterRef
	for host, list := range items {
		byKey := make(map[string]types.Item, len(list))
		for _, it := range list {
			byKey[it.Key] = it
		}
		byHost[host] = byKey
		for _, it := range list {
			if it.Type != types.ItemTypeDependent || it.MasterKey == "" {
				continue
			}
			if _, ok := byKey[it.MasterKey]; !ok {
				external = append(external, masterRef{host, it.MasterKey})
			}
		}
	}

	storeLevels, err := o.storeLevels(ctx, external)
	if err != nil {
		return nil, err
	}

	levels := make(map[string]map[string]int, len(items))
	for host, byKey := range byHost {
		resolved := map[string]int{}
		for key := range byKey {
			if _, err := levelOf(host, byKey, storeLevels, resolved, key, map[string]bool{}); err != nil {
				return nil, err
			}
		}
		levels[host] = resolved
	}
	return levels, nil
}

func levelOf(host string, byKey map[string]types.Item, storeLevels map[masterRef]int, resolved map[string]int, key string, path map[string]bool) (int, error) {
	if lvl, ok := resolved[key]; ok {
		return lvl, nil
	}
	if path[key] {
		return 0, fmt.Errorf("item %q on %q: %w", key, host, ErrCircularDependency)
	}
	it := byKey[key]
	if it.Type != types.ItemTypeDependent || it.MasterKey == "" {
		resolved[key] = 0
		return 0, nil
	}

	path[key] = true
	defer delete(path, key)

	var lvl int
	if _, ok := byKey[it.MasterKey]; ok {
		mlvl, err := levelOf(host, byKey, storeLevels, resolved, it.MasterKey, path)
		if err != nil {
			return 0, err
		}
		lvl = mlvl + 1
	} else {
		lvl = storeLevels[masterRef{host, it.MasterKey}] + 1
	}
	if lvl > MaxLevels {
		return 0, fmt.Errorf("item %q on %q: %w", key, host, ErrTooDeep)
	}
	resolved[key] = lvl
	return lvl, nil
}

// storeLevels resolves the chain depth of masters that live in the store
// rather than the bundle. Rows are fetched in one batched query, then the
// chains above them one batched id lookup per level.
func (o *Orderer) storeLevels(ctx context.Context, refs []masterRef) (map[masterRef]int, error) {
	out := map[masterRef]int{}
	if len(refs) == 0 {
		return out, nil
	}

	hostIDs := map[string]string{} // technical name -> id
	var q store.Query
	keys := map[string]struct{}{}
	for _, ref := range refs {
		if _, ok := hostIDs[ref.Host]; !ok {
			id, err := o.ref.FindTemplateOrHostIDByHost(ctx, ref.Host)
			if err != nil {
				return nil, err
			}
			if id == "" {
				return nil, fmt.Errorf("master item %q on %q not found", ref.Key, ref.Host)
			}
			hostIDs[ref.Host] = id
			q.HostIDs = append(q.HostIDs, id)
		}
		if _, ok := keys[ref.Key]; !ok {
			keys[ref.Key] = struct{}{}
			q.Names = append(q.Names, ref.Key)
		}
	}

	rows, err := o.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	byNatural := map[masterRef]store.ItemRecord{}
	byID := map[string]store.ItemRecord{}
	for _, row := range rows {
		byID[row.ID] = row
	}
	for name, hid := range hostIDs {
		for _, row := range rows {
			if row.HostID == hid {
				byNatural[masterRef{name, row.Key}] = row
			}
		}
	}
	for _, ref := range refs {
		if _, ok := byNatural[ref]; !ok {
			return nil, fmt.Errorf("master item %q on %q not found", ref.Key, ref.Host)
		}
	}

	// Pull the stored chains above the fetched rows, one level at a time.
	// Ids that were asked for but never came back are dangling references,
	// a different fault than a chain the walk gave up on.
	dangling := map[string]bool{}
	frontier := rows
	for level := 0; level < MaxLevels; level++ {
		var missing []string
		for _, row := range frontier {
			if row.MasterItemID != "" {
				if _, ok := byID[row.MasterItemID]; !ok {
					missing = append(missing, row.MasterItemID)
				}
			}
		}
		if len(missing) == 0 {
			break
		}
		next, err := o.fetch(ctx, store.Query{IDs: missing})
		if err != nil {
			return nil, err
		}
		for _, row := range next {
			byID[row.ID] = row
		}
		for _, id := range missing {
			if _, ok := byID[id]; !ok {
				dangling[id] = true
			}
		}
		frontier = next
	}

	depths := map[string]int{}
	for _, ref := range refs {
		row := byNatural[ref]
		depth, err := storeDepth(row, byID, dangling, depths, map[string]bool{})
		if err != nil {
			return nil, fmt.Errorf("master item %q on %q: %w", ref.Key, ref.Host, err)
		}
		out[ref] = depth
	}
	return out, nil
}

// fetch queries the item service, and the item prototype service too when
// leveling prototypes.
func (o *Orderer) fetch(ctx context.Context, q store.Query) ([]store.ItemRecord, error) {
	rows, err := o.store.Items().Get(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load master items: %w", err)
	}
	if o.prototypes {
		protos, err := o.store.ItemPrototypes().Get(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("load master item prototypes: %w", err)
		}
		rows = append(rows, protos...)
	}
	return rows, nil
}

func storeDepth(row store.ItemRecord, byID map[string]store.ItemRecord, dangling map[string]bool, depths map[string]int, path map[string]bool) (int, error) {
	if d, ok := depths[row.ID]; ok {
		return d, nil
	}
	if path[row.ID] {
		return 0, ErrCircularDependency
	}
	if row.Type != types.ItemTypeDependent || row.MasterItemID == "" {
		depths[row.ID] = 0
		return 0, nil
	}
	master, ok := byID[row.MasterItemID]
	if !ok {
		if dangling[row.MasterItemID] {
			return 0, fmt.Errorf("stored master id %q: %w", row.MasterItemID, ErrMasterNotFound)
		}
		return 0, ErrTooDeep
	}
	path[row.ID] = true
	defer delete(path, row.ID)
	d, err := storeDepth(master, byID, dangling, depths, path)
	if err != nil {
		return 0, err
	}
	if d+1 > MaxLevels {
		return 0, ErrTooDeep
	}
	depths[row.ID] = d + 1
	return d + 1, nil
}
