// Package largeimage marks items as large images when their first file is
// an image the tile server can read.
package largeimage

import (
	"context"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/repository"
	"path"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Error is the error class of large image promotion.
var Error = errs.Class("largeimage")

// ErrUnsupported is returned for items whose content is not an image.
var ErrUnsupported = errs.Class("largeimage unsupported")

var imageExtensions = map[string]bool{
	".svs":  true,
	".tif":  true,
	".tiff": true,
	".ndpi": true,
	".scn":  true,
	".mrxs": true,
	".vsi":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Promoter records large image metadata on items.
type Promoter struct {
	log   *zap.Logger
	items repository.ItemRepository
	files repository.FileRepository
}

// NewPromoter constructs a Promoter.
func NewPromoter(log *zap.Logger, items repository.ItemRepository, files repository.FileRepository) *Promoter {
	return &Promoter{log: log, items: items, files: files}
}

// Promote makes the item a large image backed by its first file. Items that
// already are large images are left alone.
func (p *Promoter) Promote(ctx context.Context, itemID primitive.ObjectID) error {
	item, err := p.items.GetByID(ctx, itemID)
	if err != nil {
		return Error.Wrap(err)
	}
	if item.IsLargeImage() {
		return nil
	}

	files, err := p.files.ListByItem(ctx, itemID, 1)
	if err != nil {
		return Error.Wrap(err)
	}
	if len(files) == 0 {
		return ErrUnsupported.New("item %s has no files", itemID.Hex())
	}
	file := files[0]
	if !IsImage(file) {
		return ErrUnsupported.New("file %s (%s) is not an image", file.Name, file.MimeType)
	}

	err = p.items.SetLargeImage(ctx, itemID, &domain.LargeImage{
		FileID:     file.ID,
		SourceName: sourceName(file),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return Error.Wrap(err)
	}
	p.log.Info("promoted item to large image",
		zap.String("item_id", itemID.Hex()),
		zap.String("file_id", file.ID.Hex()))
	return nil
}

// IsImage reports whether the file looks like image content.
func IsImage(file domain.File) bool {
	if strings.HasPrefix(file.MimeType, "image/") {
		return true
	}
	return imageExtensions[strings.ToLower(path.Ext(file.Name))]
}

func sourceName(file domain.File) string {
	switch strings.ToLower(path.Ext(file.Name)) {
	case ".png", ".jpg", ".jpeg":
		return "pil"
	default:
		return "tiff"
	}
}
