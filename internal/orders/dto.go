package orders

import (
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddressInput is the billing address submitted with the checkout form.
type AddressInput struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Country   string `json:"country" validate:"required"`
	Address1  string `json:"address1" validate:"required"`
	Address2  string `json:"address2" validate:"required"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
}

// toModel trims every field and reports the blank ones.
func (in AddressInput) toModel() (*models.Address, error) {
	address := &models.Address{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Country:   strings.TrimSpace(in.Country),
		Address1:  strings.TrimSpace(in.Address1),
		Address2:  strings.TrimSpace(in.Address2),
		City:      strings.TrimSpace(in.City),
		State:     strings.TrimSpace(in.State),
		Phone:     strings.TrimSpace(in.Phone),
	}
	fields := []struct {
		name  string
		value string
	}{
		{"first_name", address.FirstName},
		{"last_name", address.LastName},
		{"email", address.Email},
		{"country", address.Country},
		{"address1", address.Address1},
		{"address2", address.Address2},
		{"city", address.City},
		{"state", address.State},
		{"phone", address.Phone},
	}
	details := map[string]string{}
	for _, f := range fields {
		if f.value == "" {
			details[f.name] = "is required"
		}
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "billing address incomplete").WithDetails(details)
	}
	return address, nil
}

// AddressDTO is the billing address attached to an order.
type AddressDTO struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Country   string `json:"country"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Phone     string `json:"phone"`
}

// OrderItemDTO is one purchased line with its price snapshot.
type OrderItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// OrderDTO is the full order view.
type OrderDTO struct {
	ID             uuid.UUID         `json:"id"`
	UserID         uuid.UUID         `json:"user_id"`
	Status         enums.OrderStatus `json:"status"`
	BillingAddress *AddressDTO       `json:"billing_address,omitempty"`
	Items          []OrderItemDTO    `json:"items"`
	Total          decimal.Decimal   `json:"total"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// OrderSummary is one row of an order listing.
type OrderSummary struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Status    enums.OrderStatus `json:"status"`
	ItemCount int               `json:"item_count"`
	Total     decimal.Decimal   `json:"total"`
	CreatedAt time.Time         `json:"created_at"`
}

// OrderList is a page of order summaries.
type OrderList = pagination.Page[OrderSummary]

// ListOrdersInput narrows an order listing.
type ListOrdersInput struct {
	Status     *enums.OrderStatus
	Pagination pagination.Params
}

// NewOrderDTO maps an order with its preloaded address and items.
func NewOrderDTO(o *models.Order) *OrderDTO {
	dto := &OrderDTO{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		Items:     make([]OrderItemDTO, 0, len(o.Items)),
		Total:     decimal.Zero,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if a := o.BillingAddress; a != nil {
		dto.BillingAddress = &AddressDTO{
			FirstName: a.FirstName,
			LastName:  a.LastName,
			Email:     a.Email,
			Country:   a.Country,
			Address1:  a.Address1,
			Address2:  a.Address2,
			City:      a.City,
			State:     a.State,
			Phone:     a.Phone,
		}
	}
	for _, item := range o.Items {
		total := item.LineTotal()
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   total,
		})
		dto.Total = dto.Total.Add(total)
	}
	return dto
}
