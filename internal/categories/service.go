package categories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/media"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service manages catalog categories.
type Service interface {
	List(ctx context.Context) ([]CategoryDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*CategoryDTO, error)
	Create(ctx context.Context, input CreateCategoryInput) (*CategoryDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateCategoryInput) (*CategoryDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo  *Repository
	db    txRunner
	files media.FileStore
	logg  *logger.Logger
}

func NewService(repo *Repository, dbClient txRunner, files media.FileStore, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("category repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if files == nil {
		return nil, fmt.Errorf("file store required")
	}
	return &service{repo: repo, db: dbClient, files: files, logg: logg}, nil
}

func (s *service) List(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, fromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CategoryDTO, error) {
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	dto := fromModel(category)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input CreateCategoryInput) (*CategoryDTO, error) {
	details := map[string]string{}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		details["name"] = "is required"
	}
	if input.Image == nil {
		details["image"] = "is required"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category").WithDetails(details)
	}

	saved, err := s.files.Save(ctx, *input.Image)
	if err != nil {
		return nil, asTyped(err, "save category image")
	}

	category := &models.Category{Name: name}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		image, err := media.NewRepository(tx).Create(ctx, saved)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert image")
		}
		category.ImageID = &image.ID
		if err := s.repo.WithTx(tx).Create(ctx, category); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert category")
		}
		return nil
	})
	if err != nil {
		media.RemoveAll(ctx, s.files, []*media.SavedFile{saved}, s.logg)
		return nil, asTyped(err, "create category")
	}
	return s.Get(ctx, category.ID)
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateCategoryInput) (*CategoryDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category").
			WithDetails(map[string]string{"name": "is required"})
	}

	var saved *media.SavedFile
	if input.Image != nil {
		file, err := s.files.Save(ctx, *input.Image)
		if err != nil {
			return nil, asTyped(err, "save category image")
		}
		saved = file
	}

	var replaced []models.Image
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		category, err := txRepo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load category")
		}
		previous := category.ImageID
		category.Name = name
		if saved != nil {
			image, err := media.NewRepository(tx).Create(ctx, saved)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert image")
			}
			category.ImageID = &image.ID
		}
		if err := txRepo.Update(ctx, category); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update category")
		}
		if saved != nil && previous != nil {
			replaced, err = media.NewRepository(tx).DeleteByIDs(ctx, []uuid.UUID{*previous})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete replaced image")
			}
		}
		return nil
	})
	if err != nil {
		if saved != nil {
			media.RemoveAll(ctx, s.files, []*media.SavedFile{saved}, s.logg)
		}
		return nil, asTyped(err, "update category")
	}

	s.removeImageFiles(ctx, replaced)
	return s.Get(ctx, id)
}

// Delete removes the category, its product links and its image.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	var removed []models.Image
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		category, err := txRepo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load category")
		}
		if _, err := txRepo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete category")
		}
		if category.ImageID != nil {
			removed, err = media.NewRepository(tx).DeleteByIDs(ctx, []uuid.UUID{*category.ImageID})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete category image")
			}
		}
		return nil
	})
	if err != nil {
		return asTyped(err, "delete category")
	}
	s.removeImageFiles(ctx, removed)
	return nil
}

func (s *service) removeImageFiles(ctx context.Context, images []models.Image) {
	for _, image := range images {
		if err := s.files.Remove(ctx, image.Path); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "path", image.Path), "failed to remove image file")
		}
	}
}

func asTyped(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
