package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// File stores metadata about uploaded content. The bytes live in the
// assetstore under ObjectKey.
type File struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ItemID    primitive.ObjectID `bson:"itemId" json:"itemId"`
	CreatorID primitive.ObjectID `bson:"creatorId" json:"creatorId"`
	Name      string             `bson:"name" json:"name"`
	MimeType  string             `bson:"mimeType,omitempty" json:"mimeType,omitempty"`
	Size      int64              `bson:"size" json:"size"` // File size in bytes
	ObjectKey string             `bson:"objectKey" json:"-"`
	CreatedAt time.Time          `bson:"created" json:"created"`
}
