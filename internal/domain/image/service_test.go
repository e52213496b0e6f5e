package image_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	stdimage "image"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagevault/internal/config"
	"imagevault/internal/domain/image"
	"imagevault/internal/utils/platformerrors"
)

// fakeRepository is an in-memory owner-scoped metadata store.
type fakeRepository struct {
	mu      sync.Mutex
	seq     int
	records map[string]*image.ImageRecord

	createErr error
	getErr    error
	updateErr error
	deleteErr error
	// forceUnaffected makes update/delete report zero affected rows even
	// when the record exists, simulating a concurrent removal.
	forceUnaffected bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{records: make(map[string]*image.ImageRecord)}
}

func (r *fakeRepository) Create(ctx context.Context, rec *image.ImageRecord) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return "", r.createErr
	}
	r.seq++
	id := fmt.Sprintf("img_test%026d", r.seq)
	stored := *rec
	stored.ID = id
	r.records[id] = &stored
	return id, nil
}

func (r *fakeRepository) GetByID(ctx context.Context, ownerID, id string) (*image.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	rec, ok := r.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (r *fakeRepository) ListByOwner(ctx context.Context, ownerID string) ([]image.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []image.ImageRecord
	for _, rec := range r.records {
		if rec.OwnerID == ownerID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeRepository) UpdateObjectKey(ctx context.Context, ownerID, id, objectKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return false, r.updateErr
	}
	rec, ok := r.records[id]
	if !ok || rec.OwnerID != ownerID || r.forceUnaffected {
		return false, nil
	}
	rec.ObjectKey = objectKey
	return true, nil
}

func (r *fakeRepository) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return false, r.deleteErr
	}
	rec, ok := r.records[id]
	if !ok || rec.OwnerID != ownerID || r.forceUnaffected {
		return false, nil
	}
	delete(r.records, id)
	return true, nil
}

// fakeStorage is an in-memory blob store tracking every call.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte

	putErr    error
	deleteErr error

	putCalls    []string
	deleteCalls []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls = append(s.putCalls, key)
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls = append(s.deleteCalls, key)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, image.ErrBlobNotFound)
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// fakeClassifier returns canned detections or a canned error.
type fakeClassifier struct {
	detections []image.Detection
	err        error
	calls      int
}

func (c *fakeClassifier) Classify(ctx context.Context, data []byte) ([]image.Detection, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.detections, nil
}

// fakeNormalizer passes bytes through with a marker prefix so tests can tell
// canonical output apart from raw input.
type fakeNormalizer struct {
	validateErr  error
	normalizeErr error
}

func (n *fakeNormalizer) Validate(data []byte) error {
	return n.validateErr
}

func (n *fakeNormalizer) Normalize(data []byte) ([]byte, error) {
	if n.normalizeErr != nil {
		return nil, n.normalizeErr
	}
	return append([]byte("canonical:"), data...), nil
}

func testConfig() *config.Config {
	return &config.Config{
		MaxImageBytes:    1 << 20,
		ScreenThreshold:  0.2,
		ScreenDenyLabels: []string{"FEMALE_BREAST_EXPOSED", "MALE_GENITALIA_EXPOSED"},
		PublicBaseURL:    "https://cdn.example.com/",
	}
}

func jpegFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, stdimage.NewRGBA(stdimage.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func newService(cfg *config.Config, repo image.Repository, store image.Storage, cls image.Classifier) *image.Service {
	return image.NewService(cfg, repo, store, cls, &fakeNormalizer{}, zerolog.Nop())
}

func TestCreateSuccess(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	rec, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, len(rec.ID) > 4 && rec.ID[:4] == "img_")
	assert.Equal(t, "owner-1", rec.OwnerID)
	assert.True(t, store.has(rec.ObjectKey), "exactly the record's blob must exist")
	assert.Equal(t, 1, store.count())
	assert.Equal(t, "https://cdn.example.com/"+rec.ObjectKey, rec.PublicURL)

	stored, err := svc.Get(context.Background(), "owner-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ObjectKey, stored.ObjectKey)
}

func TestCreateStoresCanonicalBytes(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	raw := jpegFixture(t)
	rec, err := svc.Create(context.Background(), "owner-1", raw)
	require.NoError(t, err)

	store.mu.Lock()
	blob := store.objects[rec.ObjectKey]
	store.mu.Unlock()
	assert.Equal(t, append([]byte("canonical:"), raw...), blob)
}

func TestCreateCompensatesOnMetadataFailure(t *testing.T) {
	repo := newFakeRepository()
	repo.createErr = errors.New("connection refused")
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	_, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.Error(t, err)
	assert.False(t, platformerrors.IsClientError(err))

	// The freshly stored blob was deleted and no record exists.
	assert.Equal(t, 0, store.count())
	require.Len(t, store.putCalls, 1)
	require.Len(t, store.deleteCalls, 1)
	assert.Equal(t, store.putCalls[0], store.deleteCalls[0], "compensation must target the key stored in this attempt")
	assert.Empty(t, repo.records)
}

func TestCreateSurfacesOriginalErrorWhenCompensationFails(t *testing.T) {
	repo := newFakeRepository()
	repo.createErr = errors.New("connection refused")
	store := newFakeStorage()
	store.deleteErr = errors.New("store unavailable")
	svc := newService(testConfig(), repo, store, nil)

	_, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.Error(t, err)
	// The caller sees the metadata failure, not the cleanup failure.
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeInternal) ||
		platformerrors.IsErrorType(err, platformerrors.ErrorTypeDatabaseError))
}

func TestCreateRejectedByPolicyHasNoSideEffects(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	cls := &fakeClassifier{detections: []image.Detection{
		{Label: "FACE_FEMALE", Score: 0.9},
		{Label: "MALE_GENITALIA_EXPOSED", Score: 0.81},
	}}
	svc := newService(testConfig(), repo, store, cls)

	_, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeRejected))
	assert.True(t, platformerrors.IsClientError(err))

	assert.Empty(t, store.putCalls, "no blob may be written for a rejected upload")
	assert.Empty(t, repo.records)
}

func TestCreateBelowThresholdPasses(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	cls := &fakeClassifier{detections: []image.Detection{
		{Label: "MALE_GENITALIA_EXPOSED", Score: 0.15},
	}}
	svc := newService(testConfig(), repo, store, cls)

	_, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)
}

func TestCreateUndecodableImage(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	cls := &fakeClassifier{}
	svc := image.NewService(testConfig(), repo, store, cls, &fakeNormalizer{validateErr: errors.New("bad header")}, zerolog.Nop())

	_, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	assert.Zero(t, cls.calls, "classifier must not run for undecodable input")
	assert.Empty(t, store.putCalls)
	assert.Empty(t, repo.records)
}

func TestCreateRejectsNonImageBytes(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	_, err := svc.Create(context.Background(), "owner-1", []byte("plain text payload"))
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	assert.Empty(t, store.putCalls)
}

func TestCreateOversizedPayload(t *testing.T) {
	cfg := testConfig()
	cfg.MaxImageBytes = 16
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(cfg, repo, store, nil)

	_, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypePayloadTooBig))
	assert.Empty(t, store.putCalls)
}

func TestCreateClassifierUnavailableFailClosed(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	cls := &fakeClassifier{err: image.ErrClassifierUnavailable}
	svc := newService(testConfig(), repo, store, cls)

	_, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
	assert.Empty(t, store.putCalls)
	assert.Empty(t, repo.records)
}

func TestCreateClassifierUnavailableFailOpen(t *testing.T) {
	cfg := testConfig()
	cfg.ScreenFailOpen = true
	repo := newFakeRepository()
	store := newFakeStorage()
	cls := &fakeClassifier{err: image.ErrClassifierUnavailable}
	svc := newService(cfg, repo, store, cls)

	rec, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)
	assert.True(t, store.has(rec.ObjectKey))
}

func TestReplaceSuccessDeletesOldBlob(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	orig, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)
	oldKey := orig.ObjectKey

	updated, err := svc.Replace(context.Background(), "owner-1", orig.ID, jpegFixture(t))
	require.NoError(t, err)

	assert.Equal(t, orig.ID, updated.ID)
	assert.Equal(t, orig.OwnerID, updated.OwnerID)
	assert.NotEqual(t, oldKey, updated.ObjectKey, "replace must write to a fresh key")
	assert.True(t, store.has(updated.ObjectKey))
	assert.False(t, store.has(oldKey), "superseded blob must be removed")
	assert.Equal(t, 1, store.count())
}

func TestReplaceCompensatesOnMetadataFailure(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	orig, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)
	oldKey := orig.ObjectKey

	repo.updateErr = errors.New("deadlock detected")
	_, err = svc.Replace(context.Background(), "owner-1", orig.ID, jpegFixture(t))
	require.Error(t, err)
	assert.False(t, platformerrors.IsClientError(err))

	// The old state stays fully intact; only the new blob is undone.
	assert.True(t, store.has(oldKey), "old blob must remain resolvable")
	assert.Equal(t, 1, store.count(), "new blob must be absent from the store")

	current, err := svc.Get(context.Background(), "owner-1", orig.ID)
	require.NoError(t, err)
	assert.Equal(t, oldKey, current.ObjectKey, "record must still point at the old blob")
}

func TestReplaceRecordVanishedConcurrently(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	orig, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)

	repo.forceUnaffected = true
	_, err = svc.Replace(context.Background(), "owner-1", orig.ID, jpegFixture(t))
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	// New blob compensated, old blob untouched.
	assert.True(t, store.has(orig.ObjectKey))
	assert.Equal(t, 1, store.count())
}

func TestReplaceMissingRecord(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	_, err := svc.Replace(context.Background(), "owner-1", "img_missing", jpegFixture(t))
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
	assert.Empty(t, store.putCalls, "nothing may be written for an absent record")
}

func TestReplaceOldBlobDeleteFailureIsNotEscalated(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	orig, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)

	store.deleteErr = errors.New("store unavailable")
	updated, err := svc.Replace(context.Background(), "owner-1", orig.ID, jpegFixture(t))
	require.NoError(t, err, "old-blob cleanup failure is a reconciliation item, not a request failure")
	assert.NotEqual(t, orig.ObjectKey, updated.ObjectKey)
}

func TestDeleteSuccess(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	rec, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "owner-1", rec.ID))

	assert.False(t, store.has(rec.ObjectKey))
	_, err = svc.Get(context.Background(), "owner-1", rec.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestDeleteAlreadyDeleted(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	rec, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), "owner-1", rec.ID))

	deletesBefore := len(store.deleteCalls)
	err = svc.Delete(context.Background(), "owner-1", rec.ID)
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
	assert.Len(t, store.deleteCalls, deletesBefore, "no blob-store call beyond the fetch")
}

func TestDeleteAbortsWhenBlobDeleteFails(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	rec, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)

	store.deleteErr = errors.New("store unavailable")
	err = svc.Delete(context.Background(), "owner-1", rec.ID)
	require.Error(t, err)

	// Metadata was never touched: the record must still be readable.
	store.deleteErr = nil
	current, err := svc.Get(context.Background(), "owner-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ObjectKey, current.ObjectKey)
}

func TestDeleteProceedsWhenBlobAlreadyAbsent(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	rec, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)

	// Simulate a blob lost out-of-band: confirmed-absent is recoverable.
	store.mu.Lock()
	delete(store.objects, rec.ObjectKey)
	store.mu.Unlock()

	require.NoError(t, svc.Delete(context.Background(), "owner-1", rec.ID))
	_, err = svc.Get(context.Background(), "owner-1", rec.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestDeleteRowFailureAfterBlobDeletePropagates(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	rec, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)

	repo.deleteErr = errors.New("connection reset")
	err = svc.Delete(context.Background(), "owner-1", rec.ID)
	require.Error(t, err, "dangling record must never surface as success")
	assert.False(t, store.has(rec.ObjectKey), "blob delete already happened")
}

func TestOwnerIsolation(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := newService(testConfig(), repo, store, nil)

	rec, err := svc.Create(context.Background(), "owner-1", jpegFixture(t))
	require.NoError(t, err)

	// A valid id under a different owner always behaves as not-found.
	_, err = svc.Get(context.Background(), "owner-2", rec.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	_, err = svc.Replace(context.Background(), "owner-2", rec.ID, jpegFixture(t))
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	err = svc.Delete(context.Background(), "owner-2", rec.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	recs, err := svc.List(context.Background(), "owner-2")
	require.NoError(t, err)
	assert.Empty(t, recs)

	// The owner still sees an intact record and blob.
	current, err := svc.Get(context.Background(), "owner-1", rec.ID)
	require.NoError(t, err)
	assert.True(t, store.has(current.ObjectKey))
}

func TestScreenEndpointBehavior(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()

	t.Run("no classifier reports clean", func(t *testing.T) {
		svc := newService(testConfig(), repo, store, nil)
		flagged, detections, err := svc.Screen(context.Background(), jpegFixture(t))
		require.NoError(t, err)
		assert.False(t, flagged)
		assert.Empty(t, detections)
	})

	t.Run("deny match flags", func(t *testing.T) {
		cls := &fakeClassifier{detections: []image.Detection{{Label: "FEMALE_BREAST_EXPOSED", Score: 0.7}}}
		svc := newService(testConfig(), repo, store, cls)
		flagged, detections, err := svc.Screen(context.Background(), jpegFixture(t))
		require.NoError(t, err)
		assert.True(t, flagged)
		assert.Len(t, detections, 1)
	})

	t.Run("unavailable classifier errors", func(t *testing.T) {
		cls := &fakeClassifier{err: image.ErrClassifierUnavailable}
		svc := newService(testConfig(), repo, store, cls)
		_, _, err := svc.Screen(context.Background(), jpegFixture(t))
		require.Error(t, err)
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
	})
}
