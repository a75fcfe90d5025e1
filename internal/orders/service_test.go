package orders

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/testutil"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/lock"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	svc      Service
	client   *db.Client
	customer pkgAuth.Caller
	admin    pkgAuth.Caller
	registry *prometheus.Registry
}

func newFixture(t *testing.T, locker lock.Locker) *fixture {
	t.Helper()
	return newFixtureWith(t, func(p *ServiceParams) {
		if locker != nil {
			p.Locker = locker
		}
	})
}

// newFixtureWith lets a test swap collaborators before the service is built.
func newFixtureWith(t *testing.T, customize func(*ServiceParams)) *fixture {
	t.Helper()
	client := testutil.OpenDB(t)
	registry := prometheus.NewRegistry()
	params := ServiceParams{
		Repo:     NewRepository(client.DB()),
		Carts:    cart.NewRepository(client.DB()),
		DB:       client,
		Outbox:   outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Locker:   lock.NewKeyedMutex(5 * time.Second),
		Metrics:  metrics.NewCheckoutMetrics(registry),
		Checkout: config.CheckoutConfig{Timeout: 10 * time.Second},
	}
	customize(&params)
	svc, err := NewService(params)
	require.NoError(t, err)

	customer := testutil.MustCreateUser(t, client.DB(), enums.RoleCustomer)
	admin := testutil.MustCreateUser(t, client.DB(), enums.RoleAdmin)
	return &fixture{
		svc:      svc,
		client:   client,
		customer: pkgAuth.Caller{UserID: customer.ID, Role: enums.RoleCustomer},
		admin:    pkgAuth.Caller{UserID: admin.ID, Role: enums.RoleAdmin},
		registry: registry,
	}
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	return testutil.Count(t, f.client.DB(), model)
}

func (f *fixture) placeOrder(t *testing.T) *OrderDTO {
	t.Helper()
	p := testutil.MustCreateProduct(t, f.client.DB(), "Kettle", "30.00", "")
	testutil.MustAddCartLine(t, f.client.DB(), f.customer.UserID, p.ID, 1)
	order, err := f.svc.CreateOrder(context.Background(), f.customer, validAddress())
	require.NoError(t, err)
	return order
}

func (f *fixture) checkoutCount(t *testing.T, result string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "storefront_checkout_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func validAddress() AddressInput {
	return AddressInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Country:   "UK",
		Address1:  "12 St James's Square",
		Address2:  "Flat 1",
		City:      "London",
		State:     "Greater London",
		Phone:     "+44 20 0000 0000",
	}
}

func TestCreateOrderConvertsCart(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.client.DB()
	lamp := testutil.MustCreateProduct(t, conn, "Lamp", "100.00", "20")
	bulb := testutil.MustCreateProduct(t, conn, "Bulb", "2.50", "")
	testutil.MustAddCartLine(t, conn, f.customer.UserID, lamp.ID, 1)
	testutil.MustAddCartLine(t, conn, f.customer.UserID, bulb.ID, 4)

	order, err := f.svc.CreateOrder(context.Background(), f.customer, validAddress())
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, f.customer.UserID, order.UserID)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Lamp", order.Items[0].ProductName)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("80")))
	assert.Equal(t, 4, order.Items[1].Quantity)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("90")), order.Total.String())
	require.NotNil(t, order.BillingAddress)
	assert.Equal(t, "London", order.BillingAddress.City)

	assert.Equal(t, int64(0), f.count(t, &models.CartLine{}))
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
	assert.Equal(t, int64(2), f.count(t, &models.OrderItem{}))
	assert.Equal(t, int64(1), f.count(t, &models.Address{}))
	assert.Equal(t, float64(1), f.checkoutCount(t, metrics.CheckoutResultSuccess))

	var event models.OutboxEvent
	require.NoError(t, conn.First(&event).Error)
	assert.Equal(t, enums.EventOrderCreated, event.EventType)
	assert.Equal(t, order.ID, event.AggregateID)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(event.Payload, &envelope))
	var data payloads.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Len(t, data.Items, 2)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, f.customer.UserID, envelope.Actor.UserID)
}

func TestCreateOrderSnapshotsPrice(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.client.DB()
	p := testutil.MustCreateProduct(t, conn, "Chair", "40.00", "")
	testutil.MustAddCartLine(t, conn, f.customer.UserID, p.ID, 2)

	order, err := f.svc.CreateOrder(context.Background(), f.customer, validAddress())
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", p.ID).
		Updates(map[string]any{"name": "Armchair", "price": decimal.RequireFromString("99")}).Error)

	reloaded, err := f.svc.GetOrder(context.Background(), f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chair", reloaded.Items[0].ProductName)
	assert.True(t, reloaded.Items[0].UnitPrice.Equal(decimal.RequireFromString("40")))
}

func TestCreateOrderBlankAddressFieldWritesNothing(t *testing.T) {
	fields := []string{"first_name", "last_name", "email", "country", "address1", "address2", "city", "state", "phone"}
	blank := func(in AddressInput, field string) AddressInput {
		switch field {
		case "first_name":
			in.FirstName = " "
		case "last_name":
			in.LastName = ""
		case "email":
			in.Email = "\t"
		case "country":
			in.Country = ""
		case "address1":
			in.Address1 = ""
		case "address2":
			in.Address2 = "  "
		case "city":
			in.City = ""
		case "state":
			in.State = ""
		case "phone":
			in.Phone = ""
		}
		return in
	}

	for _, field := range fields {
		t.Run(field, func(t *testing.T) {
			f := newFixture(t, nil)
			p := testutil.MustCreateProduct(t, f.client.DB(), "Cup", "3.00", "")
			testutil.MustAddCartLine(t, f.client.DB(), f.customer.UserID, p.ID, 1)

			_, err := f.svc.CreateOrder(context.Background(), f.customer, blank(validAddress(), field))
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			assert.Contains(t, typed.Details(), field)

			assert.Equal(t, int64(1), f.count(t, &models.CartLine{}))
			assert.Equal(t, int64(0), f.count(t, &models.Order{}))
			assert.Equal(t, int64(0), f.count(t, &models.Address{}))
			assert.Equal(t, int64(0), f.count(t, &models.OutboxEvent{}))
		})
	}
}

func TestCreateOrderEmptyCart(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.CreateOrder(context.Background(), f.customer, validAddress())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.Address{}))
	assert.Equal(t, float64(1), f.checkoutCount(t, metrics.CheckoutResultEmptyCart))
}

func TestCreateOrderStaleProductConflicts(t *testing.T) {
	f := newFixture(t, nil)
	p := testutil.MustCreateProduct(t, f.client.DB(), "Cup", "3.00", "")
	testutil.MustAddCartLine(t, f.client.DB(), f.customer.UserID, p.ID, 1)
	testutil.MustAddCartLine(t, f.client.DB(), f.customer.UserID, uuid.New(), 1)

	_, err := f.svc.CreateOrder(context.Background(), f.customer, validAddress())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, int64(2), f.count(t, &models.CartLine{}))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.OrderItem{}))
}

func TestCreateOrderOnlyDrainsCallersCart(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.client.DB()
	p := testutil.MustCreateProduct(t, conn, "Cup", "3.00", "")
	other := testutil.MustCreateUser(t, conn, enums.RoleCustomer)
	testutil.MustAddCartLine(t, conn, f.customer.UserID, p.ID, 1)
	testutil.MustAddCartLine(t, conn, other.ID, p.ID, 5)

	_, err := f.svc.CreateOrder(context.Background(), f.customer, validAddress())
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.count(t, &models.CartLine{}))
}

// drainedCarts reports that another writer already removed the cart lines.
type drainedCarts struct {
	cart.LineRepository
}

func (c drainedCarts) WithTx(tx *gorm.DB) cart.LineRepository {
	return drainedCarts{c.LineRepository.WithTx(tx)}
}

func (drainedCarts) DeleteLines(context.Context, uuid.UUID, []uuid.UUID) (int64, error) {
	return 0, nil
}

func TestCreateOrderCartDrainedMidCheckoutRollsBack(t *testing.T) {
	f := newFixtureWith(t, func(p *ServiceParams) {
		p.Carts = drainedCarts{p.Carts}
	})
	p := testutil.MustCreateProduct(t, f.client.DB(), "Cup", "3.00", "")
	testutil.MustAddCartLine(t, f.client.DB(), f.customer.UserID, p.ID, 2)

	_, err := f.svc.CreateOrder(context.Background(), f.customer, validAddress())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.OrderItem{}))
	assert.Equal(t, int64(0), f.count(t, &models.Address{}))
	assert.Equal(t, int64(0), f.count(t, &models.OutboxEvent{}))
	assert.Equal(t, int64(1), f.count(t, &models.CartLine{}))
	assert.Equal(t, float64(1), f.checkoutCount(t, metrics.CheckoutResultConflict))
}

// stalledTx holds the transaction open until its context gives up.
type stalledTx struct {
	mu        sync.Mutex
	deadlines []bool
}

func (s *stalledTx) WithTx(ctx context.Context, _ func(tx *gorm.DB) error) error {
	_, ok := ctx.Deadline()
	s.mu.Lock()
	s.deadlines = append(s.deadlines, ok)
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func TestOrderWritesTimeOutAsDependencyErrors(t *testing.T) {
	runner := &stalledTx{}
	f := newFixtureWith(t, func(p *ServiceParams) {
		p.DB = runner
		p.Checkout.Timeout = 20 * time.Millisecond
	})
	ctx := context.Background()
	orderID := uuid.New()

	writes := map[string]func() error{
		"create": func() error {
			_, err := f.svc.CreateOrder(ctx, f.customer, validAddress())
			return err
		},
		"update_status": func() error {
			_, err := f.svc.UpdateOrderStatus(ctx, f.admin, orderID, enums.OrderStatusApproved)
			return err
		},
		"delete": func() error {
			return f.svc.DeleteOrder(ctx, f.admin, orderID)
		},
	}
	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			err := write()
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
			assert.True(t, pkgerrors.IsRetryable(err))
		})
	}
	assert.Equal(t, []bool{true, true, true}, runner.deadlines)
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (lock.Release, error) {
	return nil, lock.ErrNotAcquired
}

func TestCreateOrderLockBusyConflicts(t *testing.T) {
	f := newFixture(t, busyLocker{})
	p := testutil.MustCreateProduct(t, f.client.DB(), "Cup", "3.00", "")
	testutil.MustAddCartLine(t, f.client.DB(), f.customer.UserID, p.ID, 1)

	_, err := f.svc.CreateOrder(context.Background(), f.customer, validAddress())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, int64(1), f.count(t, &models.CartLine{}))
	assert.Equal(t, float64(1), f.checkoutCount(t, metrics.CheckoutResultConflict))
}

func TestConcurrentCreateOrderSingleItemCart(t *testing.T) {
	f := newFixture(t, nil)
	p := testutil.MustCreateProduct(t, f.client.DB(), "Last One", "15.00", "")
	testutil.MustAddCartLine(t, f.client.DB(), f.customer.UserID, p.ID, 1)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), f.customer, validAddress())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		code := pkgerrors.CodeOf(err)
		assert.Contains(t, []pkgerrors.Code{pkgerrors.CodeValidation, pkgerrors.CodeConflict}, code)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
	assert.Equal(t, int64(1), f.count(t, &models.OrderItem{}))
	assert.Equal(t, int64(0), f.count(t, &models.CartLine{}))
}

func TestCreateOrderRequiresCaller(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.CreateOrder(context.Background(), pkgAuth.Caller{}, validAddress())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestUpdateOrderStatusIdempotentAndTransitions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t)

	updated, err := f.svc.UpdateOrderStatus(ctx, f.admin, order.ID, enums.OrderStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusApproved, updated.Status)

	updated, err = f.svc.UpdateOrderStatus(ctx, f.admin, order.ID, enums.OrderStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusApproved, updated.Status)

	var changes int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderStatusChanged).Count(&changes).Error)
	assert.Equal(t, int64(1), changes, "repeating the same status writes nothing")

	_, err = f.svc.UpdateOrderStatus(ctx, f.admin, order.ID, enums.OrderStatusPending)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.UpdateOrderStatus(ctx, f.admin, order.ID, enums.OrderStatusComplete)
	require.NoError(t, err)
	_, err = f.svc.UpdateOrderStatus(ctx, f.admin, order.ID, enums.OrderStatusCancel)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestUpdateOrderStatusGuards(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t)

	_, err := f.svc.UpdateOrderStatus(ctx, f.customer, order.ID, enums.OrderStatusApproved)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.UpdateOrderStatus(ctx, f.admin, order.ID, enums.OrderStatus("shipped"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateOrderStatus(ctx, f.admin, uuid.New(), enums.OrderStatusApproved)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteOrderRemovesOwnedRows(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t)

	err := f.svc.DeleteOrder(ctx, f.customer, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.svc.DeleteOrder(ctx, f.admin, order.ID))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.OrderItem{}))
	assert.Equal(t, int64(0), f.count(t, &models.Address{}))
	assert.Equal(t, int64(1), f.count(t, &models.Product{}))

	var deletions int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderDeleted).Count(&deletions).Error)
	assert.Equal(t, int64(1), deletions)

	err = f.svc.DeleteOrder(ctx, f.admin, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetOrderOwnership(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t)
	stranger := testutil.MustCreateUser(t, f.client.DB(), enums.RoleCustomer)

	_, err := f.svc.GetOrder(ctx, pkgAuth.Caller{UserID: stranger.ID, Role: enums.RoleCustomer}, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	got, err := f.svc.GetOrder(ctx, f.admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.GetOrder(ctx, f.customer, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListOrdersScopesByRole(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.placeOrder(t)
	}
	stranger := testutil.MustCreateUser(t, f.client.DB(), enums.RoleCustomer)
	strangerCaller := pkgAuth.Caller{UserID: stranger.ID, Role: enums.RoleCustomer}
	p := testutil.MustCreateProduct(t, f.client.DB(), "Spoon", "1.25", "")
	testutil.MustAddCartLine(t, f.client.DB(), stranger.ID, p.ID, 4)
	_, err := f.svc.CreateOrder(ctx, strangerCaller, validAddress())
	require.NoError(t, err)

	mine, err := f.svc.ListOrders(ctx, f.customer, ListOrdersInput{})
	require.NoError(t, err)
	assert.Len(t, mine.Items, 3)

	theirs, err := f.svc.ListOrders(ctx, strangerCaller, ListOrdersInput{})
	require.NoError(t, err)
	require.Len(t, theirs.Items, 1)
	assert.Equal(t, 4, theirs.Items[0].ItemCount)
	assert.True(t, theirs.Items[0].Total.Equal(decimal.RequireFromString("5")), theirs.Items[0].Total.String())

	seen := map[uuid.UUID]bool{}
	input := ListOrdersInput{}
	input.Pagination.Limit = 3
	for {
		page, err := f.svc.ListOrders(ctx, f.admin, input)
		require.NoError(t, err)
		for _, item := range page.Items {
			assert.False(t, seen[item.ID])
			seen[item.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		input.Pagination.Cursor = page.NextCursor
	}
	assert.Len(t, seen, 4)

	pending := enums.OrderStatusPending
	filtered, err := f.svc.ListOrders(ctx, f.admin, ListOrdersInput{Status: &pending})
	require.NoError(t, err)
	assert.Len(t, filtered.Items, 4)

	input = ListOrdersInput{}
	input.Pagination.Cursor = "not-a-cursor"
	_, err = f.svc.ListOrders(ctx, f.admin, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPreviewCheckout(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	preview, err := f.svc.PreviewCheckout(ctx, f.customer)
	require.NoError(t, err)
	assert.False(t, preview.CanCheckout)

	p := testutil.MustCreateProduct(t, f.client.DB(), "Pan", "20.00", "10")
	testutil.MustAddCartLine(t, f.client.DB(), f.customer.UserID, p.ID, 2)
	preview, err = f.svc.PreviewCheckout(ctx, f.customer)
	require.NoError(t, err)
	assert.True(t, preview.CanCheckout)
	assert.True(t, preview.Total.Equal(decimal.RequireFromString("36")), preview.Total.String())
}
