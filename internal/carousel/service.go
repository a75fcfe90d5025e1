// Package carousel serves the home page slides.
package carousel

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Slide is one carousel entry.
type Slide struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	ImagePath string    `json:"image_path"`
	Position  int       `json:"position"`
}

type Service interface {
	List(ctx context.Context) ([]Slide, error)
}

type service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db required")
	}
	return &service{db: db}, nil
}

// List returns slides ordered by position.
func (s *service) List(ctx context.Context) ([]Slide, error) {
	var rows []models.Carousel
	err := s.db.WithContext(ctx).
		Preload("Image").
		Order("position ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list carousel")
	}
	out := make([]Slide, 0, len(rows))
	for _, row := range rows {
		slide := Slide{ID: row.ID, Title: row.Title, Position: row.Position}
		if row.Image != nil {
			slide.ImagePath = row.Image.Path
		}
		out = append(out, slide)
	}
	return out, nil
}
