package importer

import (
	"context"
	"fmt"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

func (im *Importer) processHTTPTests(ctx context.Context, b *types.Bundle) error {
	if !im.opts.HTTPTests.CreateMissing && !im.opts.HTTPTests.UpdateExisting {
		return nil
	}
	var toCreate, toUpdate []store.HTTPTestRecord
	var created []string // owner names, parallel to toCreate
	for host, tests := range b.HTTPTests {
		hostID, ok := im.ownerID(host)
		if !ok {
			continue
		}
		for _, t := range tests {
			id, err := im.resolveFirst(ctx,
				uuidLookup(im.ref.FindHTTPTestIDByUUID, t.UUID),
				func(ctx context.Context) (string, error) { return im.ref.FindHTTPTestIDByName(ctx, host, t.Name) })
			if err != nil {
				return err
			}
			steps := make([]store.HTTPStepRecord, len(t.Steps))
			for i, step := range t.Steps {
				steps[i] = store.HTTPStepRecord{
					Name:     step.Name,
					URL:      step.URL,
					Attempts: step.Attempts,
					Fields:   step.Extra,
				}
			}
			rec := store.HTTPTestRecord{
				ID:     id,
				UUID:   t.UUID,
				HostID: hostID,
				Name:   t.Name,
				Steps:  steps,
				Fields: t.Extra,
			}
			switch {
			case id == "" && im.opts.HTTPTests.CreateMissing:
				toCreate = append(toCreate, rec)
				created = append(created, host)
			case id != "" && im.opts.HTTPTests.UpdateExisting:
				toUpdate = append(toUpdate, rec)
			}
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.HTTPTests().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update web scenarios: %w", err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := im.store.HTTPTests().Create(ctx, toCreate)
		if err != nil {
			return fmt.Errorf("create web scenarios: %w", err)
		}
		for i, rec := range toCreate {
			im.ref.SetDbHTTPTest(created[i], rec.Name, rec.UUID, ids[i])
		}
	}
	im.ref.RefreshHTTPTests()
	return nil
}
