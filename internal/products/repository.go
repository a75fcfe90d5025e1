package product

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository wires together all product-related persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads the product without associations.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads every product in ids keyed by id. Missing ids are absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Omit("Categories", "Images").Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct writes the scalar columns of an existing product row.
func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"name":         product.Name,
			"description":  product.Description,
			"price":        product.Price,
			"has_discount": product.HasDiscount,
			"discount":     product.Discount,
			"updated_at":   time.Now().UTC(),
		}).Error
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ReplaceCategories swaps the product's category links for categoryIDs.
func (r *Repository) ReplaceCategories(ctx context.Context, productID uuid.UUID, categoryIDs []uuid.UUID) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("product_id = ?", productID).Delete(&models.ProductCategory{}).Error; err != nil {
		return err
	}
	if len(categoryIDs) == 0 {
		return nil
	}
	links := make([]models.ProductCategory, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		links = append(links, models.ProductCategory{ProductID: productID, CategoryID: id})
	}
	return tx.Create(&links).Error
}

// ReplaceImages swaps the product's image links for imageIDs in order.
func (r *Repository) ReplaceImages(ctx context.Context, productID uuid.UUID, imageIDs []uuid.UUID) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("product_id = ?", productID).Delete(&models.ProductImage{}).Error; err != nil {
		return err
	}
	if len(imageIDs) == 0 {
		return nil
	}
	links := make([]models.ProductImage, 0, len(imageIDs))
	for i, id := range imageIDs {
		links = append(links, models.ProductImage{ProductID: productID, ImageID: id, Position: i})
	}
	return tx.Create(&links).Error
}

// ListImageIDs returns the ids of images linked to the product.
func (r *Repository) ListImageIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ProductImage{}).
		Where("product_id = ?", productID).
		Order("position ASC").
		Pluck("image_id", &ids).Error
	return ids, err
}

// DeleteProduct removes the product and every row it exclusively owns: its
// category and image links and any cart lines pointing at it. Order items keep
// their snapshot and are left untouched.
func (r *Repository) DeleteProduct(ctx context.Context, id uuid.UUID) (int64, error) {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("product_id = ?", id).Delete(&models.CartLine{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("product_id = ?", id).Delete(&models.ProductCategory{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("product_id = ?", id).Delete(&models.ProductImage{}).Error; err != nil {
		return 0, err
	}
	res := tx.Where("id = ?", id).Delete(&models.Product{})
	return res.RowsAffected, res.Error
}

// GetProductDetail fetches a product with its categories and ordered images.
func (r *Repository) GetProductDetail(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Categories.Category").
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Images.Image").
		First(&product, "id = ?", id).
		Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

type productSummaryRecord struct {
	ID            uuid.UUID
	Name          string
	Price         decimal.Decimal
	HasDiscount   bool
	Discount      decimal.Decimal
	CreatedAt     time.Time
	ThumbnailPath *string
}

func (r productSummaryRecord) toSummary() ProductSummary {
	return ProductSummary{
		ID:             r.ID,
		Name:           r.Name,
		Price:          r.Price,
		HasDiscount:    r.HasDiscount,
		Discount:       r.Discount,
		EffectivePrice: pricing.EffectivePrice(r.Price, r.HasDiscount, r.Discount),
		ThumbnailPath:  r.ThumbnailPath,
		CreatedAt:      r.CreatedAt,
	}
}

const thumbnailSubquery = `(SELECT i.path FROM product_images pi
  JOIN images i ON i.id = pi.image_id
  WHERE pi.product_id = p.id
  ORDER BY pi.position ASC
  LIMIT 1) AS thumbnail_path`

// ListProductSummaries pages products newest first.
func (r *Repository) ListProductSummaries(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, err
	}

	qb := r.db.WithContext(ctx).
		Table("products p").
		Select("p.id, p.name, p.price, p.has_discount, p.discount, p.created_at, " + thumbnailSubquery)

	if input.Query != "" {
		qb = qb.Where(`LOWER(p.name) LIKE ? ESCAPE '\'`, likePrefix(input.Query))
	}
	if input.CategoryID != nil {
		qb = qb.Where("EXISTS (SELECT 1 FROM product_categories pc WHERE pc.product_id = p.id AND pc.category_id = ?)", *input.CategoryID)
	}
	if cursor != nil {
		qb = qb.Where("((p.created_at < ?) OR (p.created_at = ? AND p.id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var records []productSummaryRecord
	err = qb.Order("p.created_at DESC").
		Order("p.id DESC").
		Limit(pagination.LimitWithBuffer(input.Pagination.Limit)).
		Scan(&records).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]ProductSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, record.toSummary())
	}
	page := pagination.Paginate(summaries, input.Pagination.Limit, func(s ProductSummary) pagination.Cursor {
		return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
	})
	return &page, nil
}
