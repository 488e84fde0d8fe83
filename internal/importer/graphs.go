package importer

import (
	"context"
	"fmt"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

func (im *Importer) processGraphs(ctx context.Context, b *types.Bundle) error {
	if !im.opts.Graphs.CreateMissing && !im.opts.Graphs.UpdateExisting {
		return nil
	}
	ops := graphOps{
		kind:       "graph",
		svc:        im.store.Graphs(),
		findByUUID: im.ref.FindGraphIDByUUID,
		findByName: im.ref.FindGraphIDByName,
		findItem:   im.ref.FindItemIDByKey,
		setDb:      im.ref.SetDbGraph,
	}
	scoped := make([]scopedGraph, 0, len(b.Graphs))
	for _, g := range b.Graphs {
		scoped = append(scoped, scopedGraph{g: g})
	}
	if err := im.importGraphs(ctx, im.opts.Graphs, ops, scoped); err != nil {
		return err
	}
	im.ref.RefreshGraphs()
	return nil
}

// graphOps abstracts over graphs and graph prototypes.
type graphOps struct {
	kind       string
	svc        store.Service[store.GraphRecord]
	findByUUID func(context.Context, string) (string, error)
	findByName func(context.Context, string, string) (string, error)
	findItem   func(context.Context, string, string) (string, error)
	setDb      func(hosts []string, name, uuid, id string)
}

type scopedGraph struct {
	g      types.Graph
	ruleID string // set for prototypes
}

// importGraphs resolves every item reference of a graph to an id and
// writes the rows. Template graphs match by UUID with a name fallback;
// host graphs match by owner and name only.
func (im *Importer) importGraphs(ctx context.Context, flags types.CreateUpdateDelete, ops graphOps, scoped []scopedGraph) error {
	var toCreate, toUpdate []store.GraphRecord
	var created []types.Graph
	for _, sg := range scoped {
		g := sg.g
		hosts := g.Hosts()
		if !im.anyOwnerProcessed(hosts) {
			continue
		}
		hostIDs := make([]string, 0, len(hosts))
		isTemplate := false
		for _, host := range hosts {
			tid, err := im.ref.FindTemplateIDByHost(ctx, host)
			if err != nil {
				return err
			}
			id := tid
			if id == "" {
				if id, err = im.ref.FindHostIDByHost(ctx, host); err != nil {
					return err
				}
			} else {
				isTemplate = true
			}
			if id == "" {
				return &ReferenceError{Kind: ops.kind, Name: g.Name, Field: "host", Target: host}
			}
			hostIDs = append(hostIDs, id)
		}

		items := make([]store.GraphItemRecord, 0, len(g.Items))
		for _, gi := range g.Items {
			itemID, err := im.resolveGraphItem(ctx, ops, g.Name, gi.Item)
			if err != nil {
				return err
			}
			items = append(items, store.GraphItemRecord{
				ItemID:    itemID,
				Color:     gi.Color,
				SortOrder: gi.SortOrder,
			})
		}
		yMinID, err := im.resolveGraphBound(ctx, ops, g.Name, g.YMinItem)
		if err != nil {
			return err
		}
		yMaxID, err := im.resolveGraphBound(ctx, ops, g.Name, g.YMaxItem)
		if err != nil {
			return err
		}

		uuid := g.UUID
		if !isTemplate {
			uuid = ""
		}
		id := ""
		if uuid != "" {
			if id, err = ops.findByUUID(ctx, uuid); err != nil {
				return err
			}
		}
		for _, host := range hosts {
			if id != "" {
				break
			}
			if id, err = ops.findByName(ctx, host, g.Name); err != nil {
				return err
			}
		}

		rec := store.GraphRecord{
			ID:         id,
			UUID:       uuid,
			Name:       g.Name,
			HostIDs:    hostIDs,
			YMinItemID: yMinID,
			YMaxItemID: yMaxID,
			Items:      items,
			RuleID:     sg.ruleID,
			Fields:     g.Extra,
		}
		switch {
		case id == "" && flags.CreateMissing:
			toCreate = append(toCreate, rec)
			created = append(created, g)
		case id != "" && flags.UpdateExisting:
			toUpdate = append(toUpdate, rec)
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
		for i, g := range created {
			ops.setDb(g.Hosts(), g.Name, toCreate[i].UUID, ids[i])
		}
	}
	return nil
}

func (im *Importer) resolveGraphItem(ctx context.Context, ops graphOps, graph string, ref types.ItemRef) (string, error) {
	id, err := ops.findItem(ctx, ref.Host, ref.Key)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &ReferenceError{
			Kind: ops.kind, Name: graph,
			Field: "item", Target: ref.Key, TargetHost: ref.Host,
		}
	}
	return id, nil
}

func (im *Importer) resolveGraphBound(ctx context.Context, ops graphOps, graph string, ref *types.ItemRef) (string, error) {
	if ref == nil {
		return "", nil
	}
	return im.resolveGraphItem(ctx, ops, graph, *ref)
}
