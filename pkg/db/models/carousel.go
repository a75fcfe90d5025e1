package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Carousel is a home page slide.
type Carousel struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title    string    `gorm:"column:title;not null"`
	ImageID  uuid.UUID `gorm:"column:image_id;type:uuid;not null"`
	Image    *Image    `gorm:"foreignKey:ImageID"`
	Position int       `gorm:"column:position;not null;default:0"`
}

func (Carousel) TableName() string { return "carousel_slides" }

func (c *Carousel) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
