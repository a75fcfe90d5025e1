package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Image is an uploaded file served from the public images path.
type Image struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Path        string    `gorm:"column:path;not null;uniqueIndex"`
	ContentType string    `gorm:"column:content_type;not null"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *Image) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
