package importer

import (
	"context"
	"fmt"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

// processMaps writes network maps in two passes: empty shells are created
// first so that map elements referencing other maps from this bundle can
// resolve, then every created or updatable map gets its full content.
func (im *Importer) processMaps(ctx context.Context, b *types.Bundle) error {
	if (!im.opts.Maps.CreateMissing && !im.opts.Maps.UpdateExisting) || len(b.Maps) == 0 {
		return nil
	}

	createdNames := map[string]struct{}{}
	var shells []store.MapRecord
	for _, m := range b.Maps {
		id, err := im.ref.FindMapIDByName(ctx, m.Name)
		if err != nil {
			return err
		}
		if id == "" && im.opts.Maps.CreateMissing {
			shells = append(shells, store.MapRecord{Name: m.Name})
			createdNames[m.Name] = struct{}{}
		}
	}
	if len(shells) > 0 {
		ids, err := im.store.Maps().Create(ctx, shells)
		if err != nil {
			return fmt.Errorf("create maps: %w", err)
		}
		for i, rec := range shells {
			im.ref.SetDbMap(rec.Name, ids[i])
		}
	}

	var toUpdate []store.MapRecord
	for _, m := range b.Maps {
		id, err := im.ref.FindMapIDByName(ctx, m.Name)
		if err != nil {
			return err
		}
		if id == "" {
			continue
		}
		_, created := createdNames[m.Name]
		if !created && !im.opts.Maps.UpdateExisting {
			continue
		}

		rec := store.MapRecord{ID: id, Name: m.Name, Fields: m.Extra}
		if m.Background != "" {
			if rec.BackgroundID, err = im.resolveMapImage(ctx, m.Name, "background image", m.Background); err != nil {
				return err
			}
		}
		if m.IconMap != "" {
			if rec.IconMapID, err = im.resolveMapImage(ctx, m.Name, "icon map image", m.IconMap); err != nil {
				return err
			}
		}
		for _, el := range m.Elements {
			elRec, err := im.resolveMapElement(ctx, m.Name, el)
			if err != nil {
				return err
			}
			rec.Elements = append(rec.Elements, elRec)
		}
		for _, link := range m.Links {
			linkRec := store.MapLinkRecord{}
			for _, ref := range link.Triggers {
				tid, err := im.ref.FindTriggerIDByRef(ctx, ref)
				if err != nil {
					return err
				}
				if tid == "" {
					return &ReferenceError{Kind: "map", Name: m.Name, Field: "link trigger", Target: ref.Name}
				}
				linkRec.TriggerIDs = append(linkRec.TriggerIDs, tid)
			}
			rec.Links = append(rec.Links, linkRec)
		}
		toUpdate = append(toUpdate, rec)
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.Maps().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update maps: %w", err)
		}
	}
	return nil
}

func (im *Importer) resolveMapImage(ctx context.Context, mapName, field, image string) (string, error) {
	id, err := im.ref.FindImageIDByName(ctx, image)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &ReferenceError{Kind: "map", Name: mapName, Field: field, Target: image}
	}
	return id, nil
}

func (im *Importer) resolveMapElement(ctx context.Context, mapName string, el types.MapElement) (store.MapElementRecord, error) {
	rec := store.MapElementRecord{Type: el.Type}
	switch el.Type {
	case types.MapElementHost:
		id, err := im.ref.FindHostIDByHost(ctx, el.Host)
		if err != nil {
			return rec, err
		}
		if id == "" {
			return rec, &ReferenceError{Kind: "map", Name: mapName, Field: "host element", Target: el.Host}
		}
		rec.RefID = id
	case types.MapElementGroup:
		id, err := im.ref.FindGroupIDByName(ctx, el.Group)
		if err != nil {
			return rec, err
		}
		if id == "" {
			return rec, &ReferenceError{Kind: "map", Name: mapName, Field: "host group element", Target: el.Group}
		}
		rec.RefID = id
	case types.MapElementMap:
		id, err := im.ref.FindMapIDByName(ctx, el.Map)
		if err != nil {
			return rec, err
		}
		if id == "" {
			return rec, &ReferenceError{Kind: "map", Name: mapName, Field: "map element", Target: el.Map}
		}
		rec.RefID = id
	case types.MapElementTrigger:
		for _, ref := range el.Triggers {
			id, err := im.ref.FindTriggerIDByRef(ctx, ref)
			if err != nil {
				return rec, err
			}
			if id == "" {
				return rec, &ReferenceError{Kind: "map", Name: mapName, Field: "trigger element", Target: ref.Name}
			}
			rec.TriggerIDs = append(rec.TriggerIDs, id)
		}
	}
	return rec, nil
}
