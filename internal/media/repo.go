package media

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists image rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to a GORM handle or transaction.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create records a saved file as an image row.
func (r *Repository) Create(ctx context.Context, file *SavedFile) (*models.Image, error) {
	image := &models.Image{
		Path:        file.Path,
		ContentType: file.ContentType,
		SizeBytes:   file.SizeBytes,
	}
	if err := r.db.WithContext(ctx).Create(image).Error; err != nil {
		return nil, err
	}
	return image, nil
}

// FindByIDs loads the images matching ids.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Image, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var images []models.Image
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&images).Error
	return images, err
}

// DeleteByIDs removes image rows and returns them so callers can drop the files
// after commit.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Image, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	images, err := r.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Image{}).Error; err != nil {
		return nil, err
	}
	return images, nil
}

// ListOrphans returns images older than cutoff that no product, category or
// carousel slide references.
func (r *Repository) ListOrphans(ctx context.Context, cutoff time.Time, limit int) ([]models.Image, error) {
	var images []models.Image
	err := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM product_images pi WHERE pi.image_id = images.id)").
		Where("NOT EXISTS (SELECT 1 FROM categories c WHERE c.image_id = images.id)").
		Where("NOT EXISTS (SELECT 1 FROM carousel_slides cs WHERE cs.image_id = images.id)").
		Order("created_at ASC").
		Limit(limit).
		Find(&images).Error
	return images, err
}
