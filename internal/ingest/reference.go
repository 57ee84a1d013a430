package ingest

import (
	"fmt"
	"histomicsui/hui-server/internal/domain"
	"strings"
)

// PayloadKind classifies what a sidecar upload carries.
type PayloadKind int

const (
	PayloadIrrelevant PayloadKind = iota
	PayloadAnnotation
	PayloadMetadata
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadAnnotation:
		return "annotation"
	case PayloadMetadata:
		return "metadata"
	default:
		return "irrelevant"
	}
}

const (
	annotationSuffix = "AnnotationFile"
	metadataSuffix   = "ItemMetadata"
)

// Classify maps a reference identifier to the payload it announces.
func Classify(identifier string) PayloadKind {
	switch {
	case strings.HasSuffix(identifier, annotationSuffix):
		return PayloadAnnotation
	case strings.HasSuffix(identifier, metadataSuffix):
		return PayloadMetadata
	default:
		return PayloadIrrelevant
	}
}

// ParseReference decodes the reference attached to an upload event. It
// returns false when the event carries no reference, or one that is not a
// JSON object; most uploads are in that case. Fields of the wrong type are
// ignored rather than failing the whole reference.
func ParseReference(event domain.UploadEvent) (*domain.UploadReference, bool) {
	if event.Reference == nil || *event.Reference == "" {
		return nil, false
	}

	decoded, err := decodeJSON([]byte(*event.Reference))
	if err != nil {
		return nil, false
	}
	fields, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, false
	}

	return &domain.UploadReference{
		Identifier:    stringField(fields, "identifier"),
		CorrelationID: scalarField(fields, "uuid"),
		UserID:        stringField(fields, "userId"),
		ItemID:        stringField(fields, "itemId"),
		FileID:        stringField(fields, "fileId"),
	}, true
}

// scalarField formats any scalar value of key, so that numeric or boolean
// correlation ids still group uploads.
func scalarField(fields map[string]interface{}, key string) string {
	switch value := fields[key].(type) {
	case string:
		return value
	case int64, float64, bool:
		return fmt.Sprint(value)
	default:
		return ""
	}
}

func stringField(fields map[string]interface{}, key string) string {
	value, _ := fields[key].(string)
	return value
}
