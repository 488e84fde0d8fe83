package importer

import (
	"context"
	"fmt"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

func (im *Importer) processValueMaps(ctx context.Context, b *types.Bundle) error {
	if !im.opts.ValueMaps.CreateMissing && !im.opts.ValueMaps.UpdateExisting {
		return nil
	}
	var toCreate, toUpdate []store.ValueMapRecord
	var created []string // owner technical names, parallel to toCreate
	for host, vms := range b.ValueMaps {
		hostID, ok := im.ownerID(host)
		if !ok {
			continue
		}
		for _, vm := range vms {
			id := ""
			if vm.UUID != "" {
				var err error
				if id, err = im.ref.FindValueMapIDByUUID(ctx, vm.UUID); err != nil {
					return err
				}
			}
			if id == "" {
				var err error
				if id, err = im.ref.FindValueMapIDByName(ctx, host, vm.Name); err != nil {
					return err
				}
			}
			rec := store.ValueMapRecord{
				ID:       id,
				UUID:     vm.UUID,
				HostID:   hostID,
				Name:     vm.Name,
				Mappings: vm.Mappings,
			}
			switch {
			case id == "" && im.opts.ValueMaps.CreateMissing:
				toCreate = append(toCreate, rec)
				created = append(created, host)
			case id != "" && im.opts.ValueMaps.UpdateExisting:
				toUpdate = append(toUpdate, rec)
			}
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.ValueMaps().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update value maps: %w", err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := im.store.ValueMaps().Create(ctx, toCreate)
		if err != nil {
			return fmt.Errorf("create value maps: %w", err)
		}
		for i, rec := range toCreate {
			im.ref.SetDbValueMap(created[i], rec.Name, rec.UUID, ids[i])
		}
	}
	return nil
}
