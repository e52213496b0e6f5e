package image

import (
	"context"
	"errors"
	"time"
)

// ImageRecord represents stored image metadata. PublicURL is derived from the
// object key on every read and is never the source of truth.
type ImageRecord struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	ObjectKey string    `json:"object_key"`
	PublicURL string    `json:"public_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Detection is a single classifier finding.
type Detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ErrBlobNotFound marks a blob delete against a key that holds no object.
// For best-effort cleanup this is "confirmed absent", not a failure.
var ErrBlobNotFound = errors.New("blob not found")

// ErrClassifierUnavailable marks a screening attempt that could not reach the
// classifier. The fail-open/fail-closed policy decides what happens next.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// Repository defines owner-scoped persistence operations needed by the
// service. Lookups and mutations with a foreign owner behave exactly like
// lookups of an absent id.
type Repository interface {
	// Create persists the record and returns the generated identifier.
	Create(ctx context.Context, rec *ImageRecord) (string, error)
	// GetByID returns nil, nil when the id is absent or not owned by ownerID.
	GetByID(ctx context.Context, ownerID, id string) (*ImageRecord, error)
	// ListByOwner returns the owner's records, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]ImageRecord, error)
	// UpdateObjectKey repoints the record at a new blob. The boolean is false
	// when no owned row was affected.
	UpdateObjectKey(ctx context.Context, ownerID, id, objectKey string) (bool, error)
	// Delete removes the record. The boolean is false when no owned row was
	// affected.
	Delete(ctx context.Context, ownerID, id string) (bool, error)
}

// Storage defines blob store operations.
type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Delete removes the object at key. A missing key yields ErrBlobNotFound.
	Delete(ctx context.Context, key string) error
}

// Classifier screens image bytes for policy violations.
type Classifier interface {
	Classify(ctx context.Context, data []byte) ([]Detection, error)
}

// Normalizer validates and canonicalizes image bytes. Implementations are
// pure functions of their input and safe to retry.
type Normalizer interface {
	// Validate fails when the bytes do not decode as a well-formed image.
	Validate(data []byte) error
	// Normalize crops to the target aspect policy and re-encodes to the
	// canonical format.
	Normalize(data []byte) ([]byte, error)
}
