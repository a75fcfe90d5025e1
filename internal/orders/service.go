package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/lock"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const emptyCartMessage = "cart is empty"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the order engine: it turns carts into orders and lets admins
// move orders through their lifecycle.
type Service interface {
	CreateOrder(ctx context.Context, caller pkgAuth.Caller, input AddressInput) (*OrderDTO, error)
	UpdateOrderStatus(ctx context.Context, caller pkgAuth.Caller, orderID uuid.UUID, status enums.OrderStatus) (*OrderDTO, error)
	DeleteOrder(ctx context.Context, caller pkgAuth.Caller, orderID uuid.UUID) error
	GetOrder(ctx context.Context, caller pkgAuth.Caller, orderID uuid.UUID) (*OrderDTO, error)
	ListOrders(ctx context.Context, caller pkgAuth.Caller, input ListOrdersInput) (*OrderList, error)
	PreviewCheckout(ctx context.Context, caller pkgAuth.Caller) (*CheckoutPreview, error)
}

// CheckoutPreview prices the current cart for the checkout form.
type CheckoutPreview struct {
	cart.CartView
	CanCheckout bool `json:"can_checkout"`
}

// ServiceParams bundles the dependencies of the order engine.
type ServiceParams struct {
	Repo     Repository
	Carts    cart.LineRepository
	DB       txRunner
	Outbox   outbox.Emitter
	Locker   lock.Locker
	Metrics  *metrics.CheckoutMetrics
	Checkout config.CheckoutConfig
	Logger   *logger.Logger
}

type service struct {
	repo    Repository
	carts   cart.LineRepository
	tx      txRunner
	outbox  outbox.Emitter
	locker  lock.Locker
	metrics *metrics.CheckoutMetrics
	cfg     config.CheckoutConfig
	logg    *logger.Logger
}

// NewService builds the order engine with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("checkout locker required")
	}
	return &service{
		repo:    params.Repo,
		carts:   params.Carts,
		tx:      params.DB,
		outbox:  params.Outbox,
		locker:  params.Locker,
		metrics: params.Metrics,
		cfg:     params.Checkout,
		logg:    params.Logger,
	}, nil
}

// CreateOrder converts the caller's cart into a pending order billed to the
// given address. The whole conversion is one transaction run under the
// caller's checkout lock; on any error nothing is written.
func (s *service) CreateOrder(ctx context.Context, caller pkgAuth.Caller, input AddressInput) (dto *OrderDTO, err error) {
	started := time.Now()
	result := metrics.CheckoutResultError
	defer func() {
		if err != nil {
			result = checkoutResult(err)
		}
		s.metrics.Observe(result, time.Since(started))
	}()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	address, err := input.toModel()
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.Bounded(ctx, s.cfg.Timeout)
	defer cancel()

	release, err := s.locker.Acquire(ctx, caller.UserID.String())
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "checkout already in progress")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire checkout lock")
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "user_id", caller.UserID.String()), "release checkout lock failed")
		}
	}()

	order := &models.Order{UserID: caller.UserID, Status: enums.OrderStatusPending}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		repo := s.repo.WithTx(tx)

		lines, err := carts.ListByUser(ctx, caller.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, emptyCartMessage)
		}

		productIDs := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			productIDs = append(productIDs, line.ProductID)
		}
		products, err := product.NewRepository(tx).FindByIDs(ctx, productIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart products")
		}
		for _, id := range productIDs {
			if _, ok := products[id]; !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "cart references a product that no longer exists").
					WithDetails(map[string]string{"product_id": id.String()})
			}
		}

		if err := repo.CreateAddress(ctx, address); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create billing address")
		}
		order.BillingAddressID = address.ID
		order.BillingAddress = address
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		items := make([]models.OrderItem, 0, len(lines))
		lineIDs := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			p := products[line.ProductID]
			items = append(items, models.OrderItem{
				OrderID:     order.ID,
				ProductID:   p.ID,
				ProductName: p.Name,
				UnitPrice:   pricing.EffectivePrice(p.Price, p.HasDiscount, p.Discount),
				Quantity:    line.Quantity,
			})
			lineIDs = append(lineIDs, line.ID)
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		order.Items = items

		deleted, err := carts.DeleteLines(ctx, caller.UserID, lineIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		if deleted != int64(len(lineIDs)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart changed during checkout")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorFor(caller),
			Data:          createdEvent(order),
		})
	})
	if err != nil {
		return nil, classifyTxError(ctx, err, "create order")
	}

	result = metrics.CheckoutResultSuccess
	s.metrics.ObserveItems(len(order.Items))
	if s.logg != nil {
		fields := map[string]any{
			"order_id": order.ID.String(),
			"user_id":  caller.UserID.String(),
			"items":    len(order.Items),
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "order placed")
	}
	return NewOrderDTO(order), nil
}

// UpdateOrderStatus moves an order to status. Setting the current status again
// succeeds without writing.
func (s *service) UpdateOrderStatus(ctx context.Context, caller pkgAuth.Caller, orderID uuid.UUID, status enums.OrderStatus) (*OrderDTO, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]string{"status": fmt.Sprintf("unknown status %q", status)})
	}

	ctx, cancel := db.Bounded(ctx, s.cfg.Timeout)
	defer cancel()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "load order")
		}
		if order.Status == status {
			return nil
		}
		if !order.Status.CanTransition(status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
				WithDetails(map[string]string{"from": string(order.Status), "to": string(status)})
		}
		if err := repo.UpdateStatus(ctx, order.ID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorFor(caller),
			Data: payloads.OrderStatusChangedEvent{
				OrderID: order.ID,
				UserID:  order.UserID,
				From:    order.Status,
				To:      status,
			},
		})
	})
	if err != nil {
		return nil, classifyTxError(ctx, err, "update order status")
	}
	return s.loadDetail(ctx, orderID)
}

// DeleteOrder removes the order with its items and billing address.
func (s *service) DeleteOrder(ctx context.Context, caller pkgAuth.Caller, orderID uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	ctx, cancel := db.Bounded(ctx, s.cfg.Timeout)
	defer cancel()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "load order")
		}
		deleted, err := repo.DeleteOrder(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
		}
		if deleted == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDeleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorFor(caller),
			Data: payloads.OrderDeletedEvent{
				OrderID:   order.ID,
				UserID:    order.UserID,
				DeletedAt: time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return classifyTxError(ctx, err, "delete order")
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, caller pkgAuth.Caller, orderID uuid.UUID) (*OrderDTO, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	order, err := s.loadDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && order.UserID != caller.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

// ListOrders returns every order to admins and only their own to customers.
func (s *service) ListOrders(ctx context.Context, caller pkgAuth.Caller, input ListOrdersInput) (*OrderList, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if _, err := pagination.ParseCursor(input.Pagination.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var owner *uuid.UUID
	if !caller.IsAdmin() {
		id := caller.UserID
		owner = &id
	}
	list, err := s.repo.ListOrders(ctx, owner, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) PreviewCheckout(ctx context.Context, caller pkgAuth.Caller) (*CheckoutPreview, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	lines, err := s.carts.ListByUserWithProducts(ctx, caller.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	view := cart.NewCartView(lines)
	return &CheckoutPreview{CartView: view, CanCheckout: len(view.Lines) > 0}, nil
}

func (s *service) loadDetail(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindOrderDetail(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return NewOrderDTO(order), nil
}

func createdEvent(order *models.Order) payloads.OrderCreatedEvent {
	lines := make([]payloads.OrderItemLine, 0, len(order.Items))
	total := decimal.Zero
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderItemLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
		total = total.Add(item.LineTotal())
	}
	return payloads.OrderCreatedEvent{
		OrderID: order.ID,
		UserID:  order.UserID,
		Status:  order.Status,
		Items:   lines,
		Total:   total,
	}
}

func actorFor(caller pkgAuth.Caller) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: caller.UserID, Role: string(caller.Role)}
}

func requireCaller(caller pkgAuth.Caller) error {
	if !caller.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

func requireAdmin(caller pkgAuth.Caller) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !caller.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

// classifyTxError keeps typed errors, turns write races into conflicts and
// deadline expiry into a retryable dependency failure.
func classifyTxError(ctx context.Context, err error, message string) error {
	if db.IsTimeout(ctx, err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "operation timed out")
	}
	if db.IsSerializationFailure(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "concurrent update, retry")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func checkoutResult(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.CheckoutResultError
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation:
		if typed.Message() == emptyCartMessage {
			return metrics.CheckoutResultEmptyCart
		}
		return metrics.CheckoutResultValidation
	case pkgerrors.CodeConflict:
		return metrics.CheckoutResultConflict
	default:
		return metrics.CheckoutResultError
	}
}
