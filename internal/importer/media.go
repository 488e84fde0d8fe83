package importer

import (
	"context"
	"fmt"

	"github.com/opsforge/confsync/internal/store"
	"github.com/opsforge/confsync/internal/types"
)

func (im *Importer) processImages(ctx context.Context, b *types.Bundle) error {
	if !im.opts.Images.CreateMissing && !im.opts.Images.UpdateExisting {
		return nil
	}
	var toCreate, toUpdate []store.ImageRecord
	for _, img := range b.Images {
		id, err := im.ref.FindImageIDByName(ctx, img.Name)
		if err != nil {
			return err
		}
		rec := store.ImageRecord{ID: id, Name: img.Name, Type: img.Type, Data: img.Data}
		switch {
		case id == "" && im.opts.Images.CreateMissing:
			toCreate = append(toCreate, rec)
		case id != "" && im.opts.Images.UpdateExisting:
			toUpdate = append(toUpdate, rec)
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.Images().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update images: %w", err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := im.store.Images().Create(ctx, toCreate)
		if err != nil {
			return fmt.Errorf("create images: %w", err)
		}
		for i, rec := range toCreate {
			im.ref.SetDbImage(rec.Name, ids[i])
		}
	}
	return nil
}

func (im *Importer) processMediaTypes(ctx context.Context, b *types.Bundle) error {
	if !im.opts.MediaTypes.CreateMissing && !im.opts.MediaTypes.UpdateExisting {
		return nil
	}
	var toCreate, toUpdate []store.MediaTypeRecord
	for _, mt := range b.MediaTypes {
		id, err := im.ref.FindMediaTypeIDByName(ctx, mt.Name)
		if err != nil {
			return err
		}
		rec := store.MediaTypeRecord{ID: id, Name: mt.Name, Type: mt.Type, Fields: mt.Extra}
		switch {
		case id == "" && im.opts.MediaTypes.CreateMissing:
			toCreate = append(toCreate, rec)
		case id != "" && im.opts.MediaTypes.UpdateExisting:
			toUpdate = append(toUpdate, rec)
		}
	}
	if len(toUpdate) > 0 {
		if _, err := im.store.MediaTypes().Update(ctx, toUpdate); err != nil {
			return fmt.Errorf("update media types: %w", err)
		}
	}
	if len(toCreate) > 0 {
		ids, err := im.store.MediaTypes().Create(ctx, toCreate)
		if err != nil {
			return fmt.Errorf("create media types: %w", err)
		}
		for i, rec := range toCreate {
			im.ref.SetDbMediaType(rec.Name, ids[i])
		}
	}
	return nil
}
