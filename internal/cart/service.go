package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the shopper's cart operations.
type Service interface {
	AddToCart(ctx context.Context, caller pkgAuth.Caller, productID uuid.UUID, quantity *int) error
	SetQuantity(ctx context.Context, caller pkgAuth.Caller, productID uuid.UUID, quantity *int) error
	RemoveFromCart(ctx context.Context, caller pkgAuth.Caller, productID uuid.UUID) error
	View(ctx context.Context, caller pkgAuth.Caller) (*CartView, error)
}

type service struct {
	repo    LineRepository
	tx      txRunner
	timeout time.Duration
}

// NewService builds a cart service backed by the provided stack. Each write
// transaction is bounded by timeout; zero leaves it to the caller's context.
func NewService(repo LineRepository, tx txRunner, timeout time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, timeout: timeout}, nil
}

// AddToCart adds quantity of the product, accumulating into an existing line.
// A missing or non-positive quantity counts as one.
func (s *service) AddToCart(ctx context.Context, caller pkgAuth.Caller, productID uuid.UUID, quantity *int) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	qty := 1
	if quantity != nil && *quantity > 0 {
		qty = *quantity
	}

	return s.write(ctx, "add cart line", func(ctx context.Context, tx *gorm.DB) error {
		if _, err := product.NewRepository(tx).FindByID(ctx, productID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if err := s.repo.WithTx(tx).Accumulate(ctx, caller.UserID, productID, qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart line")
		}
		return nil
	})
}

// SetQuantity overwrites the line quantity. Zero (or nil) removes the line.
func (s *service) SetQuantity(ctx context.Context, caller pkgAuth.Caller, productID uuid.UUID, quantity *int) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	qty := 0
	if quantity != nil {
		qty = *quantity
	}
	if qty < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid quantity").
			WithDetails(map[string]string{"quantity": "must not be negative"})
	}

	return s.write(ctx, "update cart line", func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		line, err := repo.Find(ctx, caller.UserID, productID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
			}
			if qty == 0 {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		if qty == 0 {
			if _, err := repo.Delete(ctx, caller.UserID, productID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
			}
			return nil
		}
		if err := repo.SetQuantity(ctx, line.ID, qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
		}
		return nil
	})
}

// RemoveFromCart deletes the line if present.
func (s *service) RemoveFromCart(ctx context.Context, caller pkgAuth.Caller, productID uuid.UUID) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	return s.write(ctx, "delete cart line", func(ctx context.Context, tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).Delete(ctx, caller.UserID, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
		}
		return nil
	})
}

// write runs fn in a transaction bounded by the service timeout.
func (s *service) write(ctx context.Context, message string, fn func(ctx context.Context, tx *gorm.DB) error) error {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
	switch {
	case err == nil:
		return nil
	case db.IsTimeout(ctx, err):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "operation timed out")
	case pkgerrors.As(err) != nil:
		return err
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
}

func (s *service) View(ctx context.Context, caller pkgAuth.Caller) (*CartView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	lines, err := s.repo.ListByUserWithProducts(ctx, caller.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	view := NewCartView(lines)
	return &view, nil
}

func requireCaller(caller pkgAuth.Caller) error {
	if !caller.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return nil
}
