// Package importer drives the import of a configuration bundle into an
// entity store.
//
// The pipeline is a fixed phase sequence: one gather pass registers every
// natural-key reference in the bundle with the reference registry, then
// host groups and containers are written, then delete-missing passes for
// the child kinds whose policy asks for it, then the child kinds
// themselves in dependency order. Within a phase, records are partitioned
// into create and update batches; the store is never called one record at
// a time.
//
// The importer is fail-fast: the first unresolved reference, dependency
// cycle or store error aborts the run. Writes already issued stay; any
// atomicity has to come from the store backend.
package importer

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsforge/confsync/internal/referencer"
	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

// Importer runs one bundle against one store. It carries per-run state
// (the reference registry, the processed-owner sets), so construct a new
// one for every Import call.
type Importer struct {
	store  store.EntityStore
	opts   types.Options
	ref    *referencer.Registry
	log    zerolog.Logger
	tracer trace.Tracer

	// processed owners by technical name; children of owners absent from
	// both maps are skipped silently.
	processedTemplates map[string]string
	processedHosts     map[string]string
}

// New returns an importer for one run.
func New(s store.EntityStore, opts types.Options, logger zerolog.Logger) *Importer {
	return &Importer{
		store:              s,
		opts:               opts,
		ref:                referencer.New(s),
		log:                logger,
		tracer:             otel.Tracer("confsync/importer"),
		processedTemplates: map[string]string{},
		processedHosts:     map[string]string{},
	}
}

// Import applies the bundle. Delete-missing semantics assume the bundle is
// the whole logical configuration set: splitting one set across several
// Import calls with delete flags on can mis-retain or mis-delete rows
// shared between owners processed in different calls.
func (im *Importer) Import(ctx context.Context, b *types.Bundle) error {
	ctx, span := im.tracer.Start(ctx, "import")
	defer span.End()

	phases := []struct {
		name string
		fn   func(context.Context, *types.Bundle) error
	}{
		{"gather", im.gatherReferences},
		{"groups", im.processGroups},
		{"templates", im.processTemplates},
		{"hosts", im.processHosts},
		{"delete_missing_web_scenarios", im.deleteMissingHTTPTests},
		{"delete_missing_dashboards", im.deleteMissingDashboards},
		{"delete_missing_discovery_rules", im.deleteMissingDiscoveryRules},
		{"delete_missing_triggers", im.deleteMissingTriggers},
		{"delete_missing_graphs", im.deleteMissingGraphs},
		{"delete_missing_items", im.deleteMissingItems},
		{"delete_missing_value_maps", im.deleteMissingValueMaps},
		{"value_maps", im.processValueMaps},
		{"web_scenarios", im.processHTTPTests},
		{"items", im.processItems},
		{"triggers", im.processTriggers},
		{"discovery_rules", im.processDiscoveryRules},
		{"graphs", im.processGraphs},
		{"images", im.processImages},
		{"maps", im.processMaps},
		{"dashboards", im.processDashboards},
		{"media_types", im.processMediaTypes},
	}
	for _, ph := range phases {
		pctx, span := im.tracer.Start(ctx, "import."+ph.name)
		err := ph.fn(pctx, b)
		span.End()
		if err != nil {
			im.log.Error().Str("phase", ph.name).Err(err).Msg("import aborted")
			return err
		}
		im.log.Debug().Str("phase", ph.name).Msg("phase done")
	}
	return nil
}

// ownerID resolves a processed owner's store id, templates first.
func (im *Importer) ownerID(host string) (string, bool) {
	if id, ok := im.processedTemplates[host]; ok {
		return id, true
	}
	id, ok := im.processedHosts[host]
	return id, ok
}

// processedIDs returns the ids of every owner processed this run.
func (im *Importer) processedIDs() []string {
	ids := make([]string, 0, len(im.processedTemplates)+len(im.processedHosts))
	for _, id := range im.processedTemplates {
		ids = append(ids, id)
	}
	for _, id := range im.processedHosts {
		ids = append(ids, id)
	}
	return ids
}

func (im *Importer) processedIDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(im.processedTemplates)+len(im.processedHosts))
	for _, id := range im.processedTemplates {
		set[id] = struct{}{}
	}
	for _, id := range im.processedHosts {
		set[id] = struct{}{}
	}
	return set
}

// childFlagsRequireOwners reports whether any child-kind policy needs
// container ids resolved, which makes containers processed (resolved, not
// mutated) even when their own update flag is off.
func (im *Importer) childFlagsRequireOwners() bool {
	for _, f := range []types.CreateUpdateDelete{
		im.opts.ValueMaps,
		im.opts.Items,
		im.opts.DiscoveryRules,
		im.opts.Triggers,
		im.opts.Graphs,
		im.opts.HTTPTests,
		im.opts.Dashboards,
	} {
		if f.CreateMissing || f.UpdateExisting || f.DeleteMissing {
			return true
		}
	}
	return im.opts.TemplateLinkage.CreateMissing || im.opts.TemplateLinkage.DeleteMissing
}

// macroRecords converts bundle macros to store rows.
func macroRecords(macros []types.Macro) []store.MacroRecord {
	if macros == nil {
		return nil
	}
	out := make([]store.MacroRecord, len(macros))
	for i, m := range macros {
		out[i] = store.MacroRecord{Macro: m.Macro, Value: m.Value}
	}
	return out
}
