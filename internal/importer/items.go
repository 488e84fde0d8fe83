package importer

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/opsforge/confsync/internal/deporder"
	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

func (im *Importer) processItems(ctx context.Context, b *types.Bundle) error {
	if !im.opts.Items.CreateMissing && !im.opts.Items.UpdateExisting {
		return nil
	}
	scoped := map[string][]types.Item{}
	for host, items := range b.Items {
		if _, ok := im.ownerID(host); ok {
			scoped[host] = items
		}
	}
	if len(scoped) == 0 {
		return nil
	}

	ops := itemOps{
		kind:       "item",
		svc:        im.store.Items(),
		findByUUID: im.ref.FindItemIDByUUID,
		findByKey:  im.ref.FindItemIDByKey,
		findMaster: im.ref.FindItemIDByKey,
		setDb:      im.ref.SetDbItem,
	}
	if err := im.importLeveled(ctx, im.opts.Items, ops, scoped, false); err != nil {
		return err
	}
	im.ref.RefreshItems()
	return nil
}

// itemOps abstracts over plain items and item prototypes, which share the
// record shape and the leveled write discipline but live in different
// store services and registry caches.
type itemOps struct {
	kind       string
	svc        store.Service[store.ItemRecord]
	findByUUID func(context.Context, string) (string, error)
	findByKey  func(context.Context, string, string) (string, error)
	findMaster func(context.Context, string, string) (string, error)
	setDb      func(host, key, uuid, id string)
	ruleID     func(host string) string // nil for plain items
}

// importLeveled writes one batch of items in master-chain order: every
// record of level N is committed before any record of level N+1, across
// all hosts, so master lookups during level N+1 see the new rows.
func (im *Importer) importLeveled(ctx context.Context, flags types.CreateUpdateDelete, ops itemOps, scoped map[string][]types.Item, prototypes bool) error {
	levels, err := deporder.New(im.store, im.ref, prototypes).Levels(ctx, scoped)
	if err != nil {
		return err
	}
	maxLevel := 0
	for _, byKey := range levels {
		for _, lvl := range byKey {
			maxLevel = max(maxLevel, lvl)
		}
	}

	hosts := slices.Sorted(maps.Keys(scoped))
	for lvl := 0; lvl <= maxLevel; lvl++ {
		var toCreate, toUpdate []store.ItemRecord
		var created []itemOrigin
		for _, host := range hosts {
			hostID, _ := im.ownerID(host)
			for _, it := range scoped[host] {
				if levels[host][it.Key] != lvl {
					continue
				}
				rec, err := im.itemRecord(ctx, ops, host, hostID, it)
				if err != nil {
					return err
				}
				switch {
				case rec.ID == "" && flags.CreateMissing:
					toCreate = append(toCreate, rec)
					created = append(created, itemOrigin{host, it.Key, it.UUID})
				case rec.ID != "" && flags.UpdateExisting:
					toUpdate = append(toUpdate, rec)
				}
			}
		}
		if len(toUpdate) > 0 {
			if _, err := ops.svc.Update(ctx, toUpdate); err != nil {
				return fmt.Errorf("update %ss: %w", ops.kind, err)
			}
		}
		if len(toCreate) > 0 {
			ids, err := ops.svc.Create(ctx, toCreate)
			if err != nil {
				return fmt.Errorf("create %ss: %w", ops.kind, err)
			}
			for i, origin := range created {
				ops.setDb(origin.host, origin.key, origin.uuid, ids[i])
			}
		}
	}
	return nil
}

type itemOrigin struct {
	host string
	key  string
	uuid string
}

func (im *Importer) itemRecord(ctx context.Context, ops itemOps, host, hostID string, it types.Item) (store.ItemRecord, error) {
	id := ""
	if it.UUID != "" {
		var err error
		if id, err = ops.findByUUID(ctx, it.UUID); err != nil {
			return store.ItemRecord{}, err
		}
	}
	if id == "" {
		var err error
		if id, err = ops.findByKey(ctx, host, it.Key); err != nil {
			return store.ItemRecord{}, err
		}
	}

	valueMapID := ""
	if it.ValueMap != "" {
		var err error
		if valueMapID, err = im.ref.FindValueMapIDByName(ctx, host, it.ValueMap); err != nil {
			return store.ItemRecord{}, err
		}
		if valueMapID == "" {
			return store.ItemRecord{}, &ReferenceError{
				Kind: ops.kind, Name: it.Key, Host: host,
				Field: "value map", Target: it.ValueMap,
			}
		}
	}

	masterID := ""
	if it.Type == types.ItemTypeDependent {
		if it.MasterKey == "" {
			return store.ItemRecord{}, fmt.Errorf(
				"cannot import %s %q on %q: dependent item without a master item reference", ops.kind, it.Key, host)
		}
		var err error
		if masterID, err = ops.findMaster(ctx, host, it.MasterKey); err != nil {
			return store.ItemRecord{}, err
		}
		if masterID == "" {
			return store.ItemRecord{}, &ReferenceError{
				Kind: ops.kind, Name: it.Key, Host: host,
				Field: "master item", Target: it.MasterKey,
			}
		}
	}
	// A stray master reference on a non-dependent item is leftover bundle
	// schema, not a real dependency; it is stripped here by not copying.

	ruleID := ""
	if ops.ruleID != nil {
		ruleID = ops.ruleID(host)
	}
	return store.ItemRecord{
		ID:           id,
		UUID:         it.UUID,
		HostID:       hostID,
		Key:          it.Key,
		Name:         it.Name,
		Type:         it.Type,
		MasterItemID: masterID,
		ValueMapID:   valueMapID,
		RuleID:       ruleID,
		Fields:       itemFields(it),
	}, nil
}

func itemFields(it types.Item) map[string]string {
	if it.Interface == "" {
		return it.Extra
	}
	f := make(map[string]string, len(it.Extra)+1)
	maps.Copy(f, it.Extra)
	f["interface_ref"] = it.Interface
	return f
}
