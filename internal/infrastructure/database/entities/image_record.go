package entities

import "time"

// ImageRecord is the persisted image metadata row. ObjectKey is the only
// link to the blob store; the public URL is derived at read time and never
// stored.
type ImageRecord struct {
	ID        string    `gorm:"type:varchar(40);primaryKey"`
	OwnerID   string    `gorm:"type:varchar(64);not null;index"`
	ObjectKey string    `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ImageRecord) TableName() string {
	return "image_records"
}
