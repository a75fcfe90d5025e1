package categories

import (
	"time"

	"github.com/angelmondragon/storefront-backend/internal/media"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
)

// CategoryDTO is the category shape returned by shop and admin endpoints.
type CategoryDTO struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	ImageID   *uuid.UUID `json:"image_id,omitempty"`
	ImagePath *string    `json:"image_path,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CreateCategoryInput requires both a name and an image.
type CreateCategoryInput struct {
	Name  string
	Image *media.Upload
}

// UpdateCategoryInput renames the category and swaps its image when one is given.
type UpdateCategoryInput struct {
	Name  string
	Image *media.Upload
}

func fromModel(c *models.Category) CategoryDTO {
	dto := CategoryDTO{
		ID:        c.ID,
		Name:      c.Name,
		ImageID:   c.ImageID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Image != nil {
		path := c.Image.Path
		dto.ImagePath = &path
	}
	return dto
}
