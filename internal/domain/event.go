package domain

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FileRef is the part of an uploaded file carried by an upload event.
type FileRef struct {
	ID     primitive.ObjectID `json:"_id" bson:"_id"`
	ItemID primitive.ObjectID `json:"itemId,omitempty" bson:"itemId,omitempty"`
}

// UploadEvent is emitted by the hosting server once an upload completes.
// Reference is an opaque, usually JSON encoded, string supplied by the
// uploading client.
type UploadEvent struct {
	File      FileRef `json:"file" bson:"file"`
	Reference *string `json:"reference,omitempty" bson:"reference,omitempty"`
}

// UploadReference is the decoded form of UploadEvent.Reference.
type UploadReference struct {
	Identifier    string `json:"identifier"`
	CorrelationID string `json:"uuid,omitempty"`
	UserID        string `json:"userId,omitempty"`
	ItemID        string `json:"itemId,omitempty"`
	FileID        string `json:"fileId,omitempty"`
}

// Actionable reports whether the reference names a target resource.
func (r *UploadReference) Actionable() bool {
	return r != nil && r.Identifier != "" && (r.ItemID != "" || r.FileID != "")
}
