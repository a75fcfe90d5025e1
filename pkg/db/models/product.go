package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a catalog listing. Discount is a percentage in [0,100].
type Product struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Name        string            `gorm:"column:name;not null;index"`
	Description string            `gorm:"column:description;not null;default:''"`
	Price       decimal.Decimal   `gorm:"column:price;type:numeric(12,2);not null"`
	HasDiscount bool              `gorm:"column:has_discount;not null;default:false"`
	Discount    decimal.Decimal   `gorm:"column:discount;type:numeric(5,2);not null;default:0"`
	Categories  []ProductCategory `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Images      []ProductImage    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProductCategory links a product to a category.
type ProductCategory struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_product_categories_pair"`
	CategoryID uuid.UUID `gorm:"column:category_id;type:uuid;not null;uniqueIndex:ux_product_categories_pair;index"`
	Category   *Category `gorm:"foreignKey:CategoryID"`
}

func (pc *ProductCategory) BeforeCreate(*gorm.DB) error {
	ensureID(&pc.ID)
	return nil
}

// ProductImage links a product to one of its gallery images.
type ProductImage struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_product_images_pair"`
	ImageID   uuid.UUID `gorm:"column:image_id;type:uuid;not null;uniqueIndex:ux_product_images_pair"`
	Position  int       `gorm:"column:position;not null;default:0"`
	Image     *Image    `gorm:"foreignKey:ImageID"`
}

func (pi *ProductImage) BeforeCreate(*gorm.DB) error {
	ensureID(&pi.ID)
	return nil
}
