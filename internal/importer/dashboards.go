package importer

import (
	"context"
	"fmt"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

// processDashboards writes template dashboards. Dashboards are addressed
// by UUID only; there is no natural-key fallback.
func (im *Importer) processDashboards(ctx context.Context, b *types.Bundle) error {
	if !im.opts.Dashboards.CreateMissing && !im.opts.Dashboards.UpdateExisting {
		return nil
	}
	var toCreate, toUpdate []store.DashboardRecord
	for host, dashboards := range b.Dashboards {
		templateID, ok := im.processedTemplates[host]
		if !ok {
			continue
		}
		for _, d := range dashboards {
			id, err := im.ref.FindDashboardIDByUUID(ctx, d.UUID)
			if err != nil {
				return err
			}
			pages := make([]store.DashboardPageRecord, len(d.Pages))
			for i, page := range d.Pages {
				widgets := make([]store.WidgetRecord, len(page.Widgets))
				for j, w := range page.Widgets {
					wRec, err := im.resolveWidget(ctx, d.Name, w)
					if err != nil {
						return err
					}
					widgets[j] = wRec
				}
				pages[i] = store.DashboardPageRecord{Name: page.Name, Widgets: widgets}
			}
			rec := store.DashboardRecord{
				ID:         id,
				UUID:       d.UUID,
				TemplateID: templateID,
				Name:       d.Name,
				Pages:      pages,
			}
			switch {
			case id == "" && im.opts.Dashboards.CreateMissing:
				toCreate = append(toCreate, rec)
			case id != "" && im.opts.Dashboards.UpdateExisting:
				toUpdate = append(toUpdate, rec)
			}
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.Dashboards().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update dashboards: %w", err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := im.store.Dashboards().Create(ctx, toCreate)
		if err != nil {
			return fmt.Errorf("create dashboards: %w", err)
		}
		for i, rec := range toCreate {
			im.ref.SetDbDashboard(rec.UUID, ids[i])
		}
	}
	return nil
}

func (im *Importer) resolveWidget(ctx context.Context, dashboard string, w types.Widget) (store.WidgetRecord, error) {
	rec := store.WidgetRecord{Type: w.Type}
	for _, f := range w.Fields {
		switch f.Type {
		case types.WidgetFieldItem, types.WidgetFieldItemPrototype:
			find := im.ref.FindItemIDByKey
			if f.Type == types.WidgetFieldItemPrototype {
				find = im.ref.FindItemPrototypeIDByKey
			}
			id, err := find(ctx, f.Host, f.Key)
			if err != nil {
				return rec, err
			}
			if id == "" {
				return rec, &ReferenceError{
					Kind: "dashboard", Name: dashboard,
					Field: string(f.Type), Target: f.Key, TargetHost: f.Host,
				}
			}
			rec.ItemIDs = append(rec.ItemIDs, id)
		case types.WidgetFieldGraph, types.WidgetFieldGraphPrototype:
			find := im.ref.FindGraphIDByName
			if f.Type == types.WidgetFieldGraphPrototype {
				find = im.ref.FindGraphPrototypeIDByName
			}
			id, err := find(ctx, f.Host, f.Name)
			if err != nil {
				return rec, err
			}
			if id == "" {
				return rec, &ReferenceError{
					Kind: "dashboard", Name: dashboard,
					Field: string(f.Type), Target: f.Name, TargetHost: f.Host,
				}
			}
			rec.GraphIDs = append(rec.GraphIDs, id)
		}
	}
	return rec, nil
}
