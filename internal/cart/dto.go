package cart

import (
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineView is one priced cart line.
type LineView struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// CartView is the priced cart shown to the shopper and on the checkout form.
type CartView struct {
	Lines     []LineView      `json:"lines"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

// NewCartView prices lines with preloaded products at their effective price.
// Lines whose product is gone are skipped.
func NewCartView(lines []models.CartLine) CartView {
	view := CartView{Lines: make([]LineView, 0, len(lines)), Total: decimal.Zero}
	for _, line := range lines {
		if line.Product == nil {
			continue
		}
		p := line.Product
		unit := pricing.EffectivePrice(p.Price, p.HasDiscount, p.Discount)
		total := pricing.LineTotal(unit, line.Quantity)
		view.Lines = append(view.Lines, LineView{
			ProductID:   line.ProductID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   unit,
			LineTotal:   total,
		})
		view.ItemCount += line.Quantity
		view.Total = view.Total.Add(total)
	}
	return view
}
