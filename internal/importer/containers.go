package importer

import (
	"context"
	"fmt"
	"slices"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

func (im *Importer) processGroups(ctx context.Context, b *types.Bundle) error {
	if !im.opts.Groups.CreateMissing && !im.opts.Groups.UpdateExisting {
		return nil
	}
	var toCreate, toUpdate []store.GroupRecord
	for _, g := range b.Groups {
		id, err := im.resolveGroupID(ctx, g)
		if err != nil {
			return err
		}
		rec := store.GroupRecord{ID: id, UUID: g.UUID, Name: g.Name}
		switch {
		case id == "" && im.opts.Groups.CreateMissing:
			toCreate = append(toCreate, rec)
		case id != "" && im.opts.Groups.UpdateExisting:
			toUpdate = append(toUpdate, rec)
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.Groups().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update host groups: %w", err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := im.store.Groups().Create(ctx, toCreate)
		if err != nil {
			return fmt.Errorf("create host groups: %w", err)
		}
		for i, rec := range toCreate {
			im.ref.SetDbGroup(rec.Name, rec.UUID, ids[i])
		}
	}
	return nil
}

func (im *Importer) resolveGroupID(ctx context.Context, g types.Group) (string, error) {
	if g.UUID != "" {
		id, err := im.ref.FindGroupIDByUUID(ctx, g.UUID)
		if err != nil || id != "" {
			return id, err
		}
	}
	return im.ref.FindGroupIDByName(ctx, g.Name)
}

func (im *Importer) processTemplates(ctx context.Context, b *types.Bundle) error {
	ownersNeeded := im.childFlagsRequireOwners()
	if len(b.Templates) == 0 ||
		(!im.opts.Templates.CreateMissing && !im.opts.Templates.UpdateExisting && !ownersNeeded) {
		return nil
	}

	var toCreate, toUpdate []store.TemplateRecord
	for _, t := range b.Templates {
		id := ""
		if t.UUID != "" {
			var err error
			if id, err = im.ref.FindTemplateIDByUUID(ctx, t.UUID); err != nil {
				return err
			}
		}
		if id == "" {
			var err error
			if id, err = im.ref.FindTemplateIDByHost(ctx, t.Host); err != nil {
				return err
			}
		}

		groupIDs, err := im.resolveGroupIDs(ctx, "template", t.Host, t.Groups)
		if err != nil {
			return err
		}
		rec := store.TemplateRecord{
			ID:       id,
			UUID:     t.UUID,
			Host:     t.Host,
			Name:     t.Name,
			GroupIDs: groupIDs,
			Macros:   macroRecords(t.Macros),
			Fields:   t.Extra,
		}
		switch {
		case id == "":
			if im.opts.Templates.CreateMissing {
				toCreate = append(toCreate, rec)
			}
		case im.opts.Templates.UpdateExisting:
			toUpdate = append(toUpdate, rec)
			im.processedTemplates[t.Host] = id
		case ownersNeeded:
			// Resolved, not mutated: children still need the id.
			im.processedTemplates[t.Host] = id
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.Templates().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update templates: %w", err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := im.store.Templates().Create(ctx, toCreate)
		if err != nil {
			return fmt.Errorf("create templates: %w", err)
		}
		for i, rec := range toCreate {
			im.ref.SetDbTemplate(rec.Host, rec.UUID, ids[i])
			im.processedTemplates[rec.Host] = ids[i]
		}
	}

	return im.applyTemplateLinkage(ctx, b)
}

func (im *Importer) processHosts(ctx context.Context, b *types.Bundle) error {
	ownersNeeded := im.childFlagsRequireOwners()
	if len(b.Hosts) == 0 ||
		(!im.opts.Hosts.CreateMissing && !im.opts.Hosts.UpdateExisting && !ownersNeeded) {
		return nil
	}

	var toCreate, toUpdate []store.HostRecord
	for _, h := range b.Hosts {
		id, err := im.ref.FindHostIDByHost(ctx, h.Host)
		if err != nil {
			return err
		}
		groupIDs, err := im.resolveGroupIDs(ctx, "host", h.Host, h.Groups)
		if err != nil {
			return err
		}
		proxyID := ""
		if h.Proxy != "" {
			if proxyID, err = im.ref.FindProxyIDByName(ctx, h.Proxy); err != nil {
				return err
			}
			if proxyID == "" {
				return &ReferenceError{Kind: "host", Name: h.Host, Field: "proxy", Target: h.Proxy}
			}
		}
		rec := store.HostRecord{
			ID:       id,
			Host:     h.Host,
			Name:     h.Name,
			GroupIDs: groupIDs,
			Macros:   macroRecords(h.Macros),
			ProxyID:  proxyID,
			Fields:   h.Extra,
		}
		switch {
		case id == "":
			if im.opts.Hosts.CreateMissing {
				toCreate = append(toCreate, rec)
			}
		case im.opts.Hosts.UpdateExisting:
			toUpdate = append(toUpdate, rec)
			im.processedHosts[h.Host] = id
		case ownersNeeded:
			im.processedHosts[h.Host] = id
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.Hosts().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update hosts: %w", err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := im.store.Hosts().Create(ctx, toCreate)
		if err != nil {
			return fmt.Errorf("create hosts: %w", err)
		}
		for i, rec := range toCreate {
			im.ref.SetDbHost(rec.Host, ids[i])
			im.processedHosts[rec.Host] = ids[i]
		}
	}

	return im.applyHostLinkage(ctx, b)
}

func (im *Importer) resolveGroupIDs(ctx context.Context, kind, owner string, names []string) ([]string, error) {
	if names == nil {
		return nil, nil
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, err := im.ref.FindGroupIDByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, &ReferenceError{Kind: kind, Name: owner, Field: "host group", Target: name}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// applyTemplateLinkage merges template-to-template links for every
// processed template: bundle links are added under the linkage create
// flag, store links absent from the bundle removed under the delete flag.
// The owning template's own update flag does not gate this.
func (im *Importer) applyTemplateLinkage(ctx context.Context, b *types.Bundle) error {
	if !im.opts.TemplateLinkage.CreateMissing && !im.opts.TemplateLinkage.DeleteMissing {
		return nil
	}
	var ids []string
	byID := map[string][]string{} // id -> desired linked template names
	for _, t := range b.Templates {
		id, ok := im.processedTemplates[t.Host]
		if !ok {
			continue
		}
		ids = append(ids, id)
		byID[id] = t.Linked
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := im.store.Templates().Get(ctx, store.Query{IDs: ids})
	if err != nil {
		return fmt.Errorf("load templates for linkage: %w", err)
	}
	var toUpdate []store.TemplateRecord
	for _, row := range rows {
		merged, changed, err := im.mergeLinkage(ctx, "template", row.Host, row.TemplateIDs, byID[row.ID])
		if err != nil {
			return err
		}
		if changed {
			toUpdate = append(toUpdate, store.TemplateRecord{ID: row.ID, Host: row.Host, TemplateIDs: merged})
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.Templates().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update template linkage: %w", err)
		}
	}
	return nil
}

func (im *Importer) applyHostLinkage(ctx context.Context, b *types.Bundle) error {
	if !im.opts.TemplateLinkage.CreateMissing && !im.opts.TemplateLinkage.DeleteMissing {
		return nil
	}
	var ids []string
	byID := map[string][]string{}
	for _, h := range b.Hosts {
		id, ok := im.processedHosts[h.Host]
		if !ok {
			continue
		}
		ids = append(ids, id)
		byID[id] = h.Linked
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := im.store.Hosts().Get(ctx, store.Query{IDs: ids})
	if err != nil {
		return fmt.Errorf("load hosts for linkage: %w", err)
	}
	var toUpdate []store.HostRecord
	for _, row := range rows {
		merged, changed, err := im.mergeLinkage(ctx, "host", row.Host, row.TemplateIDs, byID[row.ID])
		if err != nil {
			return err
		}
		if changed {
			toUpdate = append(toUpdate, store.HostRecord{ID: row.ID, Host: row.Host, TemplateIDs: merged})
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.Hosts().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update host linkage: %w", err)
		}
	}
	return nil
}

// mergeLinkage computes the post-import linked-template id set from the
// current store set and the bundle's desired names.
func (im *Importer) mergeLinkage(ctx context.Context, kind, owner string, current []string, desired []string) ([]string, bool, error) {
	desiredIDs := make([]string, 0, len(desired))
	for _, name := range desired {
		id, err := im.ref.FindTemplateIDByHost(ctx, name)
		if err != nil {
			return nil, false, err
		}
		if id == "" {
			return nil, false, &ReferenceError{Kind: kind, Name: owner, Field: "linked template", Target: name}
		}
		desiredIDs = append(desiredIDs, id)
	}

	merged := []string{}
	for _, id := range current {
		if slices.Contains(desiredIDs, id) || !im.opts.TemplateLinkage.DeleteMissing {
			merged = append(merged, id)
		}
	}
	if im.opts.TemplateLinkage.CreateMissing {
		for _, id := range desiredIDs {
			if !slices.Contains(merged, id) {
				merged = append(merged, id)
			}
		}
	}
	changed := len(merged) != len(current)
	if !changed {
		for i := range merged {
			if merged[i] != current[i] {
				changed = true
				break
			}
		}
	}
	return merged, changed, nil
}
