package product

import (
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
)

// ListProductsInput captures the shop listing filters.
type ListProductsInput struct {
	// Query matches product names by case-insensitive prefix.
	Query      string
	CategoryID *uuid.UUID
	Pagination pagination.Params
}

// ProductListResult is a page of product summaries.
type ProductListResult = pagination.Page[ProductSummary]

// likePrefix escapes LIKE wildcards so user input only matches literally.
func likePrefix(query string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return replacer.Replace(strings.ToLower(strings.TrimSpace(query))) + "%"
}
