package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/media"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes catalog reads for the shop and product CRUD for admins.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, productID uuid.UUID) error
	GetProductDetail(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error)
}

// CreateProductInput is the admin create form.
type CreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	HasDiscount bool
	Discount    decimal.Decimal
	CategoryIDs []uuid.UUID
	Images      []media.Upload
}

// UpdateProductInput replaces the product fields and categories. Images are
// replaced only when new uploads are supplied.
type UpdateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	HasDiscount bool
	Discount    decimal.Decimal
	CategoryIDs []uuid.UUID
	Images      []media.Upload
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

// NewService constructs a product service instance.
func NewService(repo *Repository, dbClient txRunner, files media.FileStore, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if files == nil {
		return nil, fmt.Errorf("file store required")
	}
	return &service{repo: repo, db: dbClient, files: files, logg: logg}, nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	product, err := validateProductFields(input.Name, input.Description, input.Price, input.HasDiscount, input.Discount)
	if err != nil {
		return nil, err
	}
	categoryIDs := dedupeIDs(input.CategoryIDs)

	saved, err := s.saveUploads(ctx, input.Images)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := ensureCategoriesExist(ctx, tx, categoryIDs); err != nil {
			return err
		}
		if _, err := txRepo.CreateProduct(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
		}
		if err := txRepo.ReplaceCategories(ctx, product.ID, categoryIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: link categories")
		}
		imageIDs, err := createImageRows(ctx, tx, saved)
		if err != nil {
			return err
		}
		if err := txRepo.ReplaceImages(ctx, product.ID, imageIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: link images")
		}
		return nil
	})
	if err != nil {
		media.RemoveAll(ctx, s.files, saved, s.logg)
		return nil, asTyped(err, "create product")
	}

	return s.GetProductDetail(ctx, product.ID)
}

func (s *service) UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	fields, err := validateProductFields(input.Name, input.Description, input.Price, input.HasDiscount, input.Discount)
	if err != nil {
		return nil, err
	}
	fields.ID = productID
	categoryIDs := dedupeIDs(input.CategoryIDs)

	saved, err := s.saveUploads(ctx, input.Images)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.FindByID(ctx, productID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load product")
		}
		if err := ensureCategoriesExist(ctx, tx, categoryIDs); err != nil {
			return err
		}
		if _, err := txRepo.UpdateProduct(ctx, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product")
		}
		if err := txRepo.ReplaceCategories(ctx, productID, categoryIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: link categories")
		}
		if len(saved) == 0 {
			return nil
		}

		// Unlinked images stay until the orphan-image-cleanup job collects them.
		imageIDs, err := createImageRows(ctx, tx, saved)
		if err != nil {
			return err
		}
		if err := txRepo.ReplaceImages(ctx, productID, imageIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: link images")
		}
		return nil
	})
	if err != nil {
		media.RemoveAll(ctx, s.files, saved, s.logg)
		return nil, asTyped(err, "update product")
	}

	return s.GetProductDetail(ctx, productID)
}

func (s *service) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	var removed []models.Image
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		imageIDs, err := txRepo.ListImageIDs(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list product images")
		}
		deleted, err := txRepo.DeleteProduct(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete product")
		}
		if deleted == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		removed, err = media.NewRepository(tx).DeleteByIDs(ctx, imageIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete product images")
		}
		return nil
	})
	if err != nil {
		return asTyped(err, "delete product")
	}
	s.removeImageFiles(ctx, removed)
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "product_id", productID.String()), "product deleted")
	}
	return nil
}

func (s *service) GetProductDetail(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.GetProductDetail(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product detail")
	}
	return NewProductDTO(product), nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	if _, err := pagination.ParseCursor(input.Pagination.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	result, err := s.repo.ListProductSummaries(ctx, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return result, nil
}

func (s *service) saveUploads(ctx context.Context, uploads []media.Upload) ([]*media.SavedFile, error) {
	saved := make([]*media.SavedFile, 0, len(uploads))
	for _, upload := range uploads {
		file, err := s.files.Save(ctx, upload)
		if err != nil {
			media.RemoveAll(ctx, s.files, saved, s.logg)
			return nil, asTyped(err, "save upload")
		}
		saved = append(saved, file)
	}
	return saved, nil
}

func (s *service) removeImageFiles(ctx context.Context, images []models.Image) {
	for _, image := range images {
		if err := s.files.Remove(ctx, image.Path); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "path", image.Path), "failed to remove image file")
		}
	}
}

func createImageRows(ctx context.Context, tx *gorm.DB, saved []*media.SavedFile) ([]uuid.UUID, error) {
	repo := media.NewRepository(tx)
	ids := make([]uuid.UUID, 0, len(saved))
	for _, file := range saved {
		image, err := repo.Create(ctx, file)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert image")
		}
		ids = append(ids, image.ID)
	}
	return ids, nil
}

func ensureCategoriesExist(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	var found int64
	if err := tx.WithContext(ctx).Model(&models.Category{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check categories")
	}
	if int(found) != len(ids) {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown category").
			WithDetails(map[string]string{"category_ids": "one or more categories do not exist"})
	}
	return nil
}

func validateProductFields(name, description string, price decimal.Decimal, hasDiscount bool, discount decimal.Decimal) (*models.Product, error) {
	details := map[string]string{}
	name = strings.TrimSpace(name)
	if name == "" {
		details["name"] = "is required"
	}
	if price.IsNegative() {
		details["price"] = "must not be negative"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid product").WithDetails(details)
	}
	return &models.Product{
		Name:        name,
		Description: strings.TrimSpace(description),
		Price:       price.Round(2),
		HasDiscount: hasDiscount,
		Discount:    pricing.ClampDiscount(discount),
	}, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func asTyped(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
