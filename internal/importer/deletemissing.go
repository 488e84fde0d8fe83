package importer

import (
	"context"
	"fmt"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

// The delete-missing passes remove store rows owned by the processed
// hosts and templates that the bundle no longer carries. They run before
// the create/update phases, work only on directly created rows (never
// inherited copies), and for kinds that can span hosts (triggers, graphs)
// a row is only deleted when every owning host was processed this run.

func falsePtr() *bool {
	f := false
	return &f
}

func (im *Importer) deleteMissingItems(ctx context.Context, b *types.Bundle) error {
	if !im.opts.Items.DeleteMissing {
		return nil
	}
	ownerIDs := im.processedIDs()
	if len(ownerIDs) == 0 {
		return nil
	}
	retained := map[string]struct{}{}
	for host, items := range b.Items {
		if _, ok := im.ownerID(host); !ok {
			continue
		}
		for _, it := range items {
			id, err := im.resolveFirst(ctx,
				uuidLookup(im.ref.FindItemIDByUUID, it.UUID),
				func(ctx context.Context) (string, error) { return im.ref.FindItemIDByKey(ctx, host, it.Key) })
			if err != nil {
				return err
			}
			retain(retained, id)
		}
	}
	rows, err := im.store.Items().Get(ctx, store.Query{HostIDs: ownerIDs, Inherited: falsePtr()})
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	var doomed []string
	for _, row := range rows {
		if _, ok := retained[row.ID]; !ok {
			doomed = append(doomed, row.ID)
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := im.store.Items().Delete(ctx, doomed); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	im.ref.RefreshItems()
	return nil
}

func (im *Importer) deleteMissingDiscoveryRules(ctx context.Context, b *types.Bundle) error {
	if !im.opts.DiscoveryRules.DeleteMissing {
		return nil
	}
	ownerIDs := im.processedIDs()
	if len(ownerIDs) == 0 {
		return nil
	}
	retained := map[string]struct{}{}
	for host, rules := range b.DiscoveryRules {
		if _, ok := im.ownerID(host); !ok {
			continue
		}
		for _, rule := range rules {
			id, err := im.resolveFirst(ctx,
				uuidLookup(im.ref.FindDiscoveryRuleIDByUUID, rule.UUID),
				func(ctx context.Context) (string, error) { return im.ref.FindDiscoveryRuleIDByKey(ctx, host, rule.Key) })
			if err != nil {
				return err
			}
			retain(retained, id)
		}
	}
	rows, err := im.store.DiscoveryRules().Get(ctx, store.Query{HostIDs: ownerIDs, Inherited: falsePtr()})
	if err != nil {
		return fmt.Errorf("load discovery rules: %w", err)
	}
	var doomed []string
	for _, row := range rows {
		if _, ok := retained[row.ID]; !ok {
			doomed = append(doomed, row.ID)
		}
	}
	if len(doomed) == 0 {
		return nil
	}

	// The store does not cascade; a deleted rule takes its prototypes
	// with it explicitly.
	none := map[string]struct{}{}
	if err := deleteUnretained(ctx, im.store.ItemPrototypes(), "item prototypes", doomed, none,
		func(r store.ItemRecord) string { return r.ID }); err != nil {
		return err
	}
	if err := deleteUnretained(ctx, im.store.TriggerPrototypes(), "trigger prototypes", doomed, none,
		func(r store.TriggerRecord) string { return r.ID }); err != nil {
		return err
	}
	if err := deleteUnretained(ctx, im.store.GraphPrototypes(), "graph prototypes", doomed, none,
		func(r store.GraphRecord) string { return r.ID }); err != nil {
		return err
	}
	if err := deleteUnretained(ctx, im.store.HostPrototypes(), "host prototypes", doomed, none,
		func(r store.HostPrototypeRecord) string { return r.ID }); err != nil {
		return err
	}
	if err := im.store.DiscoveryRules().Delete(ctx, doomed); err != nil {
		return fmt.Errorf("delete discovery rules: %w", err)
	}
	im.ref.RefreshItems()
	im.ref.RefreshTriggers()
	im.ref.RefreshGraphs()
	im.ref.RefreshHostPrototypes()
	return nil
}

func (im *Importer) deleteMissingTriggers(ctx context.Context, b *types.Bundle) error {
	if !im.opts.Triggers.DeleteMissing {
		return nil
	}
	ownerIDs := im.processedIDs()
	if len(ownerIDs) == 0 {
		return nil
	}
	retained := map[string]struct{}{}
	for _, t := range b.Triggers {
		if !im.anyOwnerProcessed(expressionHosts(t.Expression, t.RecoveryExpression)) {
			continue
		}
		id, err := im.resolveFirst(ctx,
			uuidLookup(im.ref.FindTriggerIDByUUID, t.UUID),
			func(ctx context.Context) (string, error) { return im.ref.FindTriggerIDByRef(ctx, t.Ref()) })
		if err != nil {
			return err
		}
		retain(retained, id)
	}
	rows, err := im.store.Triggers().Get(ctx, store.Query{HostIDs: ownerIDs, Inherited: falsePtr()})
	if err != nil {
		return fmt.Errorf("load triggers: %w", err)
	}
	processed := im.processedIDSet()
	var doomed []string
	for _, row := range rows {
		if _, ok := retained[row.ID]; ok {
			continue
		}
		// A trigger shared with an unprocessed host is still wanted there.
		if !allProcessed(row.HostIDs, processed) {
			continue
		}
		doomed = append(doomed, row.ID)
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := im.store.Triggers().Delete(ctx, doomed); err != nil {
		return fmt.Errorf("delete triggers: %w", err)
	}
	im.ref.RefreshTriggers()
	return nil
}

func (im *Importer) deleteMissingGraphs(ctx context.Context, b *types.Bundle) error {
	if !im.opts.Graphs.DeleteMissing {
		return nil
	}
	ownerIDs := im.processedIDs()
	if len(ownerIDs) == 0 {
		return nil
	}
	retained := map[string]struct{}{}
	for _, g := range b.Graphs {
		hosts := g.Hosts()
		if !im.anyOwnerProcessed(hosts) {
			continue
		}
		id, err := im.resolveFirst(ctx, uuidLookup(im.ref.FindGraphIDByUUID, g.UUID))
		if err != nil {
			return err
		}
		for _, host := range hosts {
			if id != "" {
				break
			}
			if id, err = im.ref.FindGraphIDByName(ctx, host, g.Name); err != nil {
				return err
			}
		}
		retain(retained, id)
	}
	rows, err := im.store.Graphs().Get(ctx, store.Query{HostIDs: ownerIDs, Inherited: falsePtr()})
	if err != nil {
		return fmt.Errorf("load graphs: %w", err)
	}
	processed := im.processedIDSet()
	var doomed []string
	for _, row := range rows {
		if _, ok := retained[row.ID]; ok {
			continue
		}
		if !allProcessed(row.HostIDs, processed) {
			continue
		}
		doomed = append(doomed, row.ID)
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := im.store.Graphs().Delete(ctx, doomed); err != nil {
		return fmt.Errorf("delete graphs: %w", err)
	}
	im.ref.RefreshGraphs()
	return nil
}

func (im *Importer) deleteMissingHTTPTests(ctx context.Context, b *types.Bundle) error {
	if !im.opts.HTTPTests.DeleteMissing {
		return nil
	}
	ownerIDs := im.processedIDs()
	if len(ownerIDs) == 0 {
		return nil
	}
	retained := map[string]struct{}{}
	for host, tests := range b.HTTPTests {
		if _, ok := im.ownerID(host); !ok {
			continue
		}
		for _, t := range tests {
			id, err := im.resolveFirst(ctx,
				uuidLookup(im.ref.FindHTTPTestIDByUUID, t.UUID),
				func(ctx context.Context) (string, error) { return im.ref.FindHTTPTestIDByName(ctx, host, t.Name) })
			if err != nil {
				return err
			}
			retain(retained, id)
		}
	}
	rows, err := im.store.HTTPTests().Get(ctx, store.Query{HostIDs: ownerIDs, Inherited: falsePtr()})
	if err != nil {
		return fmt.Errorf("load web scenarios: %w", err)
	}
	var doomed []string
	for _, row := range rows {
		if _, ok := retained[row.ID]; !ok {
			doomed = append(doomed, row.ID)
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := im.store.HTTPTests().Delete(ctx, doomed); err != nil {
		return fmt.Errorf("delete web scenarios: %w", err)
	}
	im.ref.RefreshHTTPTests()
	return nil
}

func (im *Importer) deleteMissingValueMaps(ctx context.Context, b *types.Bundle) error {
	if !im.opts.ValueMaps.DeleteMissing {
		return nil
	}
	ownerIDs := im.processedIDs()
	if len(ownerIDs) == 0 {
		return nil
	}
	retained := map[string]struct{}{}
	for host, vms := range b.ValueMaps {
		if _, ok := im.ownerID(host); !ok {
			continue
		}
		for _, vm := range vms {
			id, err := im.resolveFirst(ctx,
				uuidLookup(im.ref.FindValueMapIDByUUID, vm.UUID),
				func(ctx context.Context) (string, error) { return im.ref.FindValueMapIDByName(ctx, host, vm.Name) })
			if err != nil {
				return err
			}
			retain(retained, id)
		}
	}
	rows, err := im.store.ValueMaps().Get(ctx, store.Query{HostIDs: ownerIDs})
	if err != nil {
		return fmt.Errorf("load value maps: %w", err)
	}
	var doomed []string
	for _, row := range rows {
		if _, ok := retained[row.ID]; !ok {
			doomed = append(doomed, row.ID)
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := im.store.ValueMaps().Delete(ctx, doomed); err != nil {
		return fmt.Errorf("delete value maps: %w", err)
	}
	im.ref.RefreshValueMaps()
	return nil
}

func (im *Importer) deleteMissingDashboards(ctx context.Context, b *types.Bundle) error {
	if !im.opts.Dashboards.DeleteMissing {
		return nil
	}
	var templateIDs []string
	for _, id := range im.processedTemplates {
		templateIDs = append(templateIDs, id)
	}
	if len(templateIDs) == 0 {
		return nil
	}
	retained := map[string]struct{}{}
	for host, dashboards := range b.Dashboards {
		if _, ok := im.processedTemplates[host]; !ok {
			continue
		}
		for _, d := range dashboards {
			id, err := im.ref.FindDashboardIDByUUID(ctx, d.UUID)
			if err != nil {
				return err
			}
			retain(retained, id)
		}
	}
	rows, err := im.store.Dashboards().Get(ctx, store.Query{HostIDs: templateIDs})
	if err != nil {
		return fmt.Errorf("load dashboards: %w", err)
	}
	var doomed []string
	for _, row := range rows {
		if _, ok := retained[row.ID]; !ok {
			doomed = append(doomed, row.ID)
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := im.store.Dashboards().Delete(ctx, doomed); err != nil {
		return fmt.Errorf("delete dashboards: %w", err)
	}
	return nil
}

func allProcessed(hostIDs []string, processed map[string]struct{}) bool {
	for _, id := range hostIDs {
		if _, ok := processed[id]; !ok {
			return false
		}
	}
	return true
}
