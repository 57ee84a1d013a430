package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LargeImage marks an item as backed by a tiled large image. FileID is the
// file the tiles are read from.
type LargeImage struct {
	FileID     primitive.ObjectID `bson:"fileId" json:"fileId"`
	SourceName string             `bson:"sourceName,omitempty" json:"sourceName,omitempty"`
	CreatedAt  time.Time          `bson:"created" json:"created"`
}

// Item is a leaf resource holding files and free-form metadata.
type Item struct {
	ID          primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Name        string                 `bson:"name" json:"name"`
	Description string                 `bson:"description,omitempty" json:"description,omitempty"`
	FolderID    primitive.ObjectID     `bson:"folderId" json:"folderId"`
	CreatorID   primitive.ObjectID     `bson:"creatorId" json:"creatorId"`
	Meta        map[string]interface{} `bson:"meta,omitempty" json:"meta,omitempty"`
	LargeImage  *LargeImage            `bson:"largeImage,omitempty" json:"largeImage,omitempty"`
	CreatedAt   time.Time              `bson:"created" json:"created"`
	UpdatedAt   time.Time              `bson:"updated" json:"updated"`
}

// IsLargeImage reports whether the item already has a large-image record.
func (i *Item) IsLargeImage() bool {
	return i != nil && i.LargeImage != nil && i.LargeImage.FileID != primitive.NilObjectID
}
