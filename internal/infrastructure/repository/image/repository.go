// Package image implements the metadata repository on PostgreSQL. Every
// query is scoped to the owner so a foreign id behaves exactly like an
// absent one.
package image

import (
	"context"

	"gorm.io/gorm"

	domain "imagevault/internal/domain/image"
	"imagevault/internal/infrastructure/database/entities"
	"imagevault/internal/utils/platformerrors"
	"imagevault/utils/imageid"
)

// Repository handles image record persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new record and returns its generated id.
func (r *Repository) Create(ctx context.Context, rec *domain.ImageRecord) (string, error) {
	entity := entities.ImageRecord{
		ID:        imageid.New(),
		OwnerID:   rec.OwnerID,
		ObjectKey: rec.ObjectKey,
	}
	err := r.db.WithContext(ctx).Create(&entity).Error
	if err != nil {
		return "", platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create image record",
			err,
			"5e8a1c74-2f9b-4d06-a3e8-b17c4d92f650",
		)
	}
	return entity.ID, nil
}

// GetByID returns the owner's record, or nil when no such record exists
// under that owner.
func (r *Repository) GetByID(ctx context.Context, ownerID, id string) (*domain.ImageRecord, error) {
	var entity entities.ImageRecord
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to get image record",
			err,
			"8d2f6b93-4a07-4c15-9e6d-f38a1b5c72e4",
		)
	}
	rec := mapEntity(entity)
	return &rec, nil
}

// ListByOwner returns the owner's records, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]domain.ImageRecord, error) {
	var rows []entities.ImageRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list image records",
			err,
			"c4a9e027-6d81-4f3b-8c50-29e7d6f14a83",
		)
	}
	recs := make([]domain.ImageRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, mapEntity(row))
	}
	return recs, nil
}

// UpdateObjectKey repoints the record at a new blob. The returned bool is
// false when no row matched the owner and id.
func (r *Repository) UpdateObjectKey(ctx context.Context, ownerID, id, objectKey string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&entities.ImageRecord{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Update("object_key", objectKey)
	if res.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update image record",
			res.Error,
			"a73d5f18-0e46-4b92-8d1a-6c35e9b2f407",
		)
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the owner's record. The returned bool is false when no row
// matched.
func (r *Repository) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&entities.ImageRecord{})
	if res.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to delete image record",
			res.Error,
			"1f6c8e42-9a57-4d30-b28f-e054c7a1d396",
		)
	}
	return res.RowsAffected > 0, nil
}

func mapEntity(entity entities.ImageRecord) domain.ImageRecord {
	return domain.ImageRecord{
		ID:        entity.ID,
		OwnerID:   entity.OwnerID,
		ObjectKey: entity.ObjectKey,
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}
