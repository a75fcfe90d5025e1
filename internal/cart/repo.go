package cart

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LineRepository is the persistence surface the cart and the order engine share.
type LineRepository interface {
	WithTx(tx *gorm.DB) LineRepository
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error)
	ListByUserWithProducts(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error)
	Find(ctx context.Context, userID, productID uuid.UUID) (*models.CartLine, error)
	Accumulate(ctx context.Context, userID, productID uuid.UUID, quantity int) error
	SetQuantity(ctx context.Context, lineID uuid.UUID, quantity int) error
	Delete(ctx context.Context, userID, productID uuid.UUID) (int64, error)
	DeleteLines(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

// Repository exposes persistence operations for cart lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) LineRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListByUser returns the user's lines oldest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	var rows []models.CartLine
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListByUserWithProducts is ListByUser with each line's product preloaded.
func (r *Repository) ListByUserWithProducts(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	var rows []models.CartLine
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Find(ctx context.Context, userID, productID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// Accumulate inserts a line or adds quantity to the existing one in a single
// statement, so two concurrent adds never lose an update.
func (r *Repository) Accumulate(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	line := &models.CartLine{UserID: userID, ProductID: productID, Quantity: quantity}
	return r.db.WithContext(ctx).
		Omit("Product").
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_lines.quantity + excluded.quantity"),
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(line).Error
}

func (r *Repository) SetQuantity(ctx context.Context, lineID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("id = ?", lineID).
		Updates(map[string]any{"quantity": quantity, "updated_at": time.Now().UTC()}).Error
}

func (r *Repository) Delete(ctx context.Context, userID, productID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.CartLine{})
	return res.RowsAffected, res.Error
}

// DeleteLines removes the given lines of the user and reports how many rows
// were actually deleted.
func (r *Repository) DeleteLines(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Delete(&models.CartLine{})
	return res.RowsAffected, res.Error
}
