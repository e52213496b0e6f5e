package image

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"imagevault/internal/config"
	"imagevault/internal/infrastructure/metrics"
	"imagevault/internal/utils/platformerrors"
	"imagevault/utils/imageid"
)

var allowedMIMEs = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
	"image/bmp":  {},
	"image/tiff": {},
}

// Service orchestrates the create, replace and delete flows. Each request is
// one saga: a fixed step sequence against classifier, blob store and metadata
// store, where every compensating action targets only the object key minted
// in the current attempt. There is no saga log; callers recover by retrying
// the whole request, which always writes to a fresh key.
type Service struct {
	cfg        *config.Config
	repo       Repository
	storage    Storage
	classifier Classifier
	normalizer Normalizer
	log        zerolog.Logger
	denyLabels map[string]struct{}
}

// NewService wires the orchestrator. classifier may be nil: screening is then
// disabled for the lifetime of the process, decided and logged here once.
func NewService(cfg *config.Config, repo Repository, storage Storage, classifier Classifier, normalizer Normalizer, log zerolog.Logger) *Service {
	deny := make(map[string]struct{}, len(cfg.ScreenDenyLabels))
	for _, label := range cfg.ScreenDenyLabels {
		label = strings.TrimSpace(label)
		if label != "" {
			deny[label] = struct{}{}
		}
	}

	svc := &Service{
		cfg:        cfg,
		repo:       repo,
		storage:    storage,
		classifier: classifier,
		normalizer: normalizer,
		log:        log.With().Str("component", "image-service").Logger(),
		denyLabels: deny,
	}

	if classifier == nil {
		svc.log.Warn().Msg("no content classifier configured; uploads will not be screened")
	}

	return svc
}

// Create runs the upload saga: validate, screen, normalize, store blob,
// persist metadata. A metadata failure after the blob write triggers a
// compensating delete of the just-stored blob.
func (s *Service) Create(ctx context.Context, ownerID string, data []byte) (*ImageRecord, error) {
	canonical, err := s.prepare(ctx, data)
	if err != nil {
		metrics.RecordUpload("create", "rejected", 0)
		return nil, err
	}

	key := imageid.NewObjectKey(ownerID)
	if err := s.putBlob(ctx, key, canonical); err != nil {
		metrics.RecordUpload("create", "storage_error", 0)
		return nil, err
	}

	rec := &ImageRecord{
		OwnerID:   ownerID,
		ObjectKey: key,
	}
	id, err := s.repo.Create(ctx, rec)
	if err != nil {
		// A blob now exists with no owning record. Undo step 4: delete the
		// key minted in this attempt, and only that key.
		s.compensate(ctx, "create", ownerID, "", key)
		metrics.RecordUpload("create", "metadata_error", 0)
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "persist image record")
	}
	rec.ID = id

	metrics.RecordUpload("create", "success", int64(len(canonical)))
	return s.withPublicURL(rec), nil
}

// Replace runs the update saga. The new blob goes to a fresh key so the old
// blob and record stay the valid state until the metadata repoint succeeds.
func (s *Service) Replace(ctx context.Context, ownerID, id string, data []byte) (*ImageRecord, error) {
	existing, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "fetch image record")
	}
	if existing == nil {
		return nil, s.notFound(ctx, id)
	}

	canonical, err := s.prepare(ctx, data)
	if err != nil {
		metrics.RecordUpload("replace", "rejected", 0)
		return nil, err
	}

	newKey := imageid.NewObjectKey(ownerID)
	if err := s.putBlob(ctx, newKey, canonical); err != nil {
		metrics.RecordUpload("replace", "storage_error", 0)
		return nil, err
	}

	affected, err := s.repo.UpdateObjectKey(ctx, ownerID, id, newKey)
	if err != nil || !affected {
		// The old blob and record are untouched and remain consistent; only
		// the newly stored blob must be undone.
		s.compensate(ctx, "replace", ownerID, id, newKey)
		metrics.RecordUpload("replace", "metadata_error", 0)
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "repoint image record")
		}
		// The record vanished between fetch and update.
		return nil, s.notFound(ctx, id)
	}

	// The record already points at the new blob; losing the old one is a
	// cleanup concern, not a correctness one.
	s.deleteSuperseded(ctx, ownerID, id, existing.ObjectKey)

	metrics.RecordUpload("replace", "success", int64(len(canonical)))

	refreshed, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil || refreshed == nil {
		s.log.Warn().Err(err).Str("id", id).Msg("could not re-read record after replace")
		updated := *existing
		updated.ObjectKey = newKey
		return s.withPublicURL(&updated), nil
	}
	return s.withPublicURL(refreshed), nil
}

// Delete removes the blob first, then the metadata row. Metadata is never
// touched before the blob delete is confirmed: deleting the row first would
// permanently orphan a live blob with no way to rediscover its key.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	rec, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "fetch image record")
	}
	if rec == nil {
		return s.notFound(ctx, id)
	}

	start := time.Now()
	if err := s.storage.Delete(ctx, rec.ObjectKey); err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			// Confirmed absent; the record is already a dangling one and the
			// row delete below repairs it.
			metrics.RecordStorageOperation("delete", "absent", time.Since(start).Seconds())
			s.log.Warn().Str("id", id).Str("object_key", rec.ObjectKey).Msg("blob already absent during delete")
		} else {
			metrics.RecordStorageOperation("delete", "error", time.Since(start).Seconds())
			return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
				"delete image blob", err, "6f1c2a8d-3b54-4f7e-9c21-8a5d0e4b7f36",
				map[string]any{"owner_id": ownerID, "record_id": id, "object_key": rec.ObjectKey})
		}
	} else {
		metrics.RecordStorageOperation("delete", "success", time.Since(start).Seconds())
	}

	affected, err := s.repo.Delete(ctx, ownerID, id)
	if err != nil {
		// The blob is gone but the row remains: a dangling record that needs
		// out-of-band reconciliation. This must not surface as success.
		metrics.RecordOrphan("record")
		platformerrors.LogError(s.log, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeDatabaseError,
			"record delete failed after blob delete", err, "e3d94b17-2c6a-4d0f-b85e-917f3a6c20d4",
			map[string]any{"owner_id": ownerID, "record_id": id, "object_key": rec.ObjectKey, "step": "metadata-delete"}))
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "delete image record")
	}
	if !affected {
		// Row vanished concurrently; nothing left to clean up.
		return s.notFound(ctx, id)
	}
	return nil
}

// Get returns a single owned record.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*ImageRecord, error) {
	rec, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "fetch image record")
	}
	if rec == nil {
		return nil, s.notFound(ctx, id)
	}
	return s.withPublicURL(rec), nil
}

// List returns all of the owner's records, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]ImageRecord, error) {
	recs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "list image records")
	}
	for i := range recs {
		s.withPublicURL(&recs[i])
	}
	return recs, nil
}

// Screen classifies bytes without storing anything. Used by the standalone
// screening endpoint; a nil classifier reports nothing flagged.
func (s *Service) Screen(ctx context.Context, data []byte) (bool, []Detection, error) {
	if err := s.validateInput(ctx, data); err != nil {
		return false, nil, err
	}
	if s.classifier == nil {
		return false, nil, nil
	}

	start := time.Now()
	detections, err := s.classifier.Classify(ctx, data)
	if err != nil {
		metrics.RecordScreening("error", time.Since(start).Seconds())
		return false, nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
			"content screening unavailable", err, "b2a7c9e1-58d3-4f06-a1b4-7e92d5c83f10")
	}
	metrics.RecordScreening("success", time.Since(start).Seconds())

	for _, det := range detections {
		if s.denied(det) {
			return true, detections, nil
		}
	}
	return false, detections, nil
}

// prepare runs the side-effect-free head of the create/replace saga:
// validate decodability, screen, normalize and encode. No storage write has
// happened yet when it returns an error.
func (s *Service) prepare(ctx context.Context, data []byte) ([]byte, error) {
	if err := s.validateInput(ctx, data); err != nil {
		return nil, err
	}

	if err := s.normalizer.Validate(data); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"invalid or corrupted image", err, "4c8e1f5a-9b27-4d63-8e0f-2a71c6d94b58")
	}

	if err := s.screen(ctx, data); err != nil {
		return nil, err
	}

	canonical, err := s.normalizer.Normalize(data)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"normalize image", err, "9d3b6e2c-1f84-4a57-b90d-5c28e7f1a643")
	}
	return canonical, nil
}

func (s *Service) validateInput(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"file is empty", nil, "7e5a3c91-0d46-4b82-a6f3-1c98d2e45b07")
	}
	if int64(len(data)) > s.cfg.MaxImageBytes {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypePayloadTooBig,
			"file exceeds maximum size", nil, "a1f6d820-7b39-4c54-9e17-3d62b8c50f94")
	}
	mimeType := mimetype.Detect(data).String()
	if _, ok := allowedMIMEs[strings.Split(mimeType, ";")[0]]; !ok {
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"unsupported file type", nil, "0b94e7c3-6a15-4d28-bf80-92c4e1d73a56",
			map[string]any{"mime": mimeType})
	}
	return nil
}

// screen applies the deny policy before any storage write. The
// fail-open/fail-closed choice for an unreachable classifier is a config
// fact, applied identically wherever screen is called.
func (s *Service) screen(ctx context.Context, data []byte) error {
	if s.classifier == nil {
		return nil
	}

	start := time.Now()
	detections, err := s.classifier.Classify(ctx, data)
	if err != nil {
		if s.cfg.ScreenFailOpen {
			metrics.RecordScreening("skipped", time.Since(start).Seconds())
			s.log.Warn().Err(err).Msg("classifier unavailable, proceeding unscreened per SCREEN_FAIL_OPEN")
			return nil
		}
		metrics.RecordScreening("error", time.Since(start).Seconds())
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
			"content screening unavailable", err, "58c3a1f7-2e90-4b6d-8a45-f17d9c32e680")
	}
	metrics.RecordScreening("success", time.Since(start).Seconds())

	for _, det := range detections {
		if s.denied(det) {
			return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeRejected,
				"image rejected by content policy", nil, "c7d2f984-6b31-4e58-a20c-d95e8f41b376",
				map[string]any{"label": det.Label, "score": det.Score})
		}
	}
	return nil
}

func (s *Service) denied(det Detection) bool {
	if det.Score <= s.cfg.ScreenThreshold {
		return false
	}
	_, deny := s.denyLabels[det.Label]
	return deny
}

func (s *Service) putBlob(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := s.storage.Put(ctx, key, data, "image/jpeg")
	if err != nil {
		metrics.RecordStorageOperation("put", "error", time.Since(start).Seconds())
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"store image blob", err, "f05c7a2e-93d1-4b68-8e24-6a1f3d9c58b0",
			map[string]any{"object_key": key})
	}
	metrics.RecordStorageOperation("put", "success", time.Since(start).Seconds())
	return nil
}

// compensate best-effort deletes the blob stored earlier in this attempt.
// It runs detached from request cancellation: once a blob exists, abandoning
// cleanup mid-way would leave an orphan for free. A failed compensation is
// logged as a reconciliation item, never retried synchronously, and never
// changes the error the caller sees.
func (s *Service) compensate(ctx context.Context, flow, ownerID, recordID, key string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.storage.Delete(cleanupCtx, key); err != nil && !errors.Is(err, ErrBlobNotFound) {
		metrics.RecordCompensation(flow, "failed")
		metrics.RecordOrphan("blob")
		platformerrors.LogError(s.log, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"compensating blob delete failed, orphan requires reconciliation", err, "2e6f9c04-8a53-4d17-b2c8-0f41e7a35d69",
			map[string]any{"flow": flow, "owner_id": ownerID, "record_id": recordID, "object_key": key, "step": "compensate"}))
		return
	}
	metrics.RecordCompensation(flow, "success")
	s.log.Info().Str("flow", flow).Str("object_key", key).Msg("compensating delete of stored blob")
}

// deleteSuperseded best-effort removes the blob an update has replaced.
func (s *Service) deleteSuperseded(ctx context.Context, ownerID, recordID, key string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.storage.Delete(cleanupCtx, key); err != nil && !errors.Is(err, ErrBlobNotFound) {
		metrics.RecordOrphan("blob")
		platformerrors.LogError(s.log, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"superseded blob delete failed, orphan requires reconciliation", err, "d48a2f71-5c09-4e36-9b8d-3e67c1f52a80",
			map[string]any{"owner_id": ownerID, "record_id": recordID, "object_key": key, "step": "delete-superseded"}))
	}
}

func (s *Service) notFound(ctx context.Context, id string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
		"image not found", nil, "31b8d5e0-4f72-4a9c-86e1-c09a2d7f64b3")
}

func (s *Service) withPublicURL(rec *ImageRecord) *ImageRecord {
	base := strings.TrimSuffix(s.cfg.PublicBaseURL, "/")
	if base == "" {
		rec.PublicURL = ""
		return rec
	}
	rec.PublicURL = base + "/" + rec.ObjectKey
	return rec
}
