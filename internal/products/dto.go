package product

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategoryRef is the slim category shape embedded in product responses.
type CategoryRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ImageRef is an image attached to a product.
type ImageRef struct {
	ID       uuid.UUID `json:"id"`
	Path     string    `json:"path"`
	Position int       `json:"position"`
}

// ProductDTO is the full product representation used by detail and admin views.
type ProductDTO struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	HasDiscount    bool            `json:"has_discount"`
	Discount       decimal.Decimal `json:"discount"`
	EffectivePrice decimal.Decimal `json:"effective_price"`
	Categories     []CategoryRef   `json:"categories"`
	Images         []ImageRef      `json:"images"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ProductSummary is one row of the shop listing.
type ProductSummary struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	HasDiscount    bool            `json:"has_discount"`
	Discount       decimal.Decimal `json:"discount"`
	EffectivePrice decimal.Decimal `json:"effective_price"`
	ThumbnailPath  *string         `json:"thumbnail_path,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewProductDTO maps a product with preloaded categories and images.
func NewProductDTO(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	dto := &ProductDTO{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		HasDiscount:    p.HasDiscount,
		Discount:       p.Discount,
		EffectivePrice: pricing.EffectivePrice(p.Price, p.HasDiscount, p.Discount),
		Categories:     make([]CategoryRef, 0, len(p.Categories)),
		Images:         make([]ImageRef, 0, len(p.Images)),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	for _, link := range p.Categories {
		ref := CategoryRef{ID: link.CategoryID}
		if link.Category != nil {
			ref.Name = link.Category.Name
		}
		dto.Categories = append(dto.Categories, ref)
	}
	for _, link := range p.Images {
		ref := ImageRef{ID: link.ImageID, Position: link.Position}
		if link.Image != nil {
			ref.Path = link.Image.Path
		}
		dto.Images = append(dto.Images, ref)
	}
	return dto
}
