package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Annotation is a set of drawn elements attached to an item. Body holds the
// annotation document as supplied by the client (name, description,
// elements, ...); it is passed through without schema interpretation.
type Annotation struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	ItemID    primitive.ObjectID     `bson:"itemId" json:"itemId"`
	CreatorID primitive.ObjectID     `bson:"creatorId" json:"creatorId"`
	Body      map[string]interface{} `bson:"annotation" json:"annotation"`

	// SourceFileID and SourceIndex identify the sidecar file and the position
	// within it that produced this annotation, so re-ingestion can skip
	// objects that were already created.
	SourceFileID primitive.ObjectID `bson:"sourceFileId,omitempty" json:"sourceFileId,omitempty"`
	SourceIndex  int                `bson:"sourceIndex" json:"sourceIndex"`

	CreatedAt time.Time `bson:"created" json:"created"`
	UpdatedAt time.Time `bson:"updated" json:"updated"`
}

// Elements returns the annotation's element list, or nil if absent or not a
// list.
func (a *Annotation) Elements() []interface{} {
	elements, _ := a.Body["elements"].([]interface{})
	return elements
}
