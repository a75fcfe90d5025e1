package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAddress(ctx context.Context, address *models.Address) error {
	return r.db.WithContext(ctx).Create(address).Error
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("BillingAddress", "Items").Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderDetail(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("BillingAddress").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

// DeleteOrder removes the order's items, the order and its billing address.
func (r *repository) DeleteOrder(ctx context.Context, order *models.Order) (int64, error) {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
		return 0, err
	}
	res := tx.Where("id = ?", order.ID).Delete(&models.Order{})
	if res.Error != nil {
		return 0, res.Error
	}
	if err := tx.Where("id = ?", order.BillingAddressID).Delete(&models.Address{}).Error; err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

type orderSummaryRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Status    enums.OrderStatus
	CreatedAt time.Time
	ItemCount int
	Total     decimal.NullDecimal
}

// ListOrders pages orders newest first, optionally restricted to one user.
func (r *repository) ListOrders(ctx context.Context, userID *uuid.UUID, input ListOrdersInput) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, err
	}

	qb := r.db.WithContext(ctx).
		Table("orders o").
		Select(`o.id, o.user_id, o.status, o.created_at,
  (SELECT COALESCE(SUM(oi.quantity), 0) FROM order_items oi WHERE oi.order_id = o.id) AS item_count,
  (SELECT SUM(oi.unit_price * oi.quantity) FROM order_items oi WHERE oi.order_id = o.id) AS total`)

	if userID != nil {
		qb = qb.Where("o.user_id = ?", *userID)
	}
	if input.Status != nil {
		qb = qb.Where("o.status = ?", *input.Status)
	}
	if cursor != nil {
		qb = qb.Where("((o.created_at < ?) OR (o.created_at = ? AND o.id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var records []orderSummaryRecord
	err = qb.Order("o.created_at DESC").
		Order("o.id DESC").
		Limit(pagination.LimitWithBuffer(input.Pagination.Limit)).
		Scan(&records).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]OrderSummary, 0, len(records))
	for _, rec := range records {
		total := decimal.Zero
		if rec.Total.Valid {
			total = rec.Total.Decimal.Round(2)
		}
		summaries = append(summaries, OrderSummary{
			ID:        rec.ID,
			UserID:    rec.UserID,
			Status:    rec.Status,
			ItemCount: rec.ItemCount,
			Total:     total,
			CreatedAt: rec.CreatedAt,
		})
	}
	page := pagination.Paginate(summaries, input.Pagination.Limit, func(s OrderSummary) pagination.Cursor {
		return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
	})
	return &page, nil
}
