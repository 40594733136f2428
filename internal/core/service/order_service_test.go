package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardofgirotto/storefront/internal/adapter/storage"
	"github.com/leonardofgirotto/storefront/internal/core/domain"
	"github.com/leonardofgirotto/storefront/internal/port"
)

// Mock CacheRepository
type mockCache struct {
	mu          sync.Mutex
	stock       map[string]int
	idempotency map[string]bool
}

func newMockCache() *mockCache {
	return &mockCache{
		stock:       make(map[string]int),
		idempotency: make(map[string]bool),
	}
}

func (m *mockCache) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.stock[productID]
	if !ok {
		// unmirrored products defer to the database guard
		return true, nil
	}
	if current >= quantity {
		m.stock[productID] = current - quantity
		return true, nil
	}
	return false, nil
}

func (m *mockCache) IncrementStock(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stock[productID]; ok {
		m.stock[productID] += quantity
	}
	return nil
}

func (m *mockCache) SetStock(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] = quantity
	return nil
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotency[key] {
		return false, nil
	}
	m.idempotency[key] = true
	return true, nil
}

func seedUser(t *testing.T, store *storage.MemoryStore) domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := domain.User{
		ID:       uuid.New().String(),
		Name:     "Maria Silva",
		Email:    "maria@example.com",
		Password: "secret123",
		Address: domain.Address{
			Street: "Rua das Flores", Number: "12", City: "Sao Paulo", State: "SP", PostalCode: "01000-000",
		},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func seedProduct(t *testing.T, store *storage.MemoryStore, name, price string, quantity int) domain.Product {
	t.Helper()
	now := time.Now().UTC()
	p := domain.Product{
		ID:        uuid.New().String(),
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateProduct(context.Background(), p))
	return p
}

func TestCreateOrder_Success(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	productA := seedProduct(t, store, "Notebook", "3500.00", 50)
	productB := seedProduct(t, store, "Mouse", "89.90", 100)

	order, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items: []LineItemRequest{
			{ProductID: productA.ID, Quantity: 1},
			{ProductID: productB.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, user.ID, order.UserID)
	assert.Equal(t, user.Address, order.DeliveryAddress)

	// totalValue = 3500.00*1 + 89.90*2
	assert.True(t, order.TotalValue.Equal(decimal.RequireFromString("3679.80")),
		"unexpected total %s", order.TotalValue)

	a, err := store.GetProduct(ctx, productA.ID)
	require.NoError(t, err)
	assert.Equal(t, 49, a.Quantity)

	b, err := store.GetProduct(ctx, productB.ID)
	require.NoError(t, err)
	assert.Equal(t, 98, b.Quantity)
}

func TestCreateOrder_DeliveryAddressOverride(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	product := seedProduct(t, store, "Keyboard", "120.00", 10)

	override := domain.Address{Street: "Av. Central", Number: "500", City: "Curitiba", State: "PR", PostalCode: "80000-000"}
	order, err := svc.Create(ctx, CreateOrderInput{
		UserID:          user.ID,
		Items:           []LineItemRequest{{ProductID: product.ID, Quantity: 1}},
		DeliveryAddress: &override,
	})
	require.NoError(t, err)
	assert.Equal(t, override, order.DeliveryAddress)
}

func TestCreateOrder_ValidationFailures(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	tests := []struct {
		name  string
		input CreateOrderInput
	}{
		{"no items", CreateOrderInput{UserID: uuid.New().String()}},
		{"zero quantity", CreateOrderInput{
			UserID: uuid.New().String(),
			Items:  []LineItemRequest{{ProductID: uuid.New().String(), Quantity: 0}},
		}},
		{"missing user", CreateOrderInput{
			Items: []LineItemRequest{{ProductID: uuid.New().String(), Quantity: 1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.input)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Messages)
		})
	}
}

func TestCreateOrder_UserNotFound(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	product := seedProduct(t, store, "Webcam", "250.00", 5)

	_, err := svc.Create(ctx, CreateOrderInput{
		UserID: uuid.New().String(),
		Items:  []LineItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	var rnf *domain.ReferenceNotFoundError
	require.ErrorAs(t, err, &rnf)
	assert.Equal(t, "user", rnf.Kind)

	// nothing decremented
	p, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 5, p.Quantity)
}

func TestCreateOrder_ProductNotFoundRollsBackEarlierDecrements(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	productA := seedProduct(t, store, "Monitor", "900.00", 10)

	_, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items: []LineItemRequest{
			{ProductID: productA.ID, Quantity: 3},
			{ProductID: uuid.New().String(), Quantity: 1},
		},
	})
	var rnf *domain.ReferenceNotFoundError
	require.ErrorAs(t, err, &rnf)
	assert.Equal(t, "product", rnf.Kind)

	// the decrement applied for product A inside the aborted unit is gone
	a, err := store.GetProduct(ctx, productA.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, a.Quantity)

	orders, err := store.ListOrders(ctx, port.OrderFilter{UserID: user.ID})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	product := seedProduct(t, store, "Headset", "199.00", 2)

	_, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items:  []LineItemRequest{{ProductID: product.ID, Quantity: 3}},
	})
	var ise *domain.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, product.ID, ise.ProductID)

	p, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 2, p.Quantity)
}

func TestCreateOrder_ConcurrentLastUnit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	product := seedProduct(t, store, "Limited Item", "49.90", 1)

	var success atomic.Int32
	var insufficient atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, CreateOrderInput{
				UserID: user.ID,
				Items:  []LineItemRequest{{ProductID: product.ID, Quantity: 1}},
			})
			var ise *domain.InsufficientStockError
			switch {
			case err == nil:
				success.Add(1)
			case errors.As(err, &ise):
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), success.Load(), "exactly one create must win the last unit")
	assert.Equal(t, int32(1), insufficient.Load())

	p, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 0, p.Quantity)
}

func TestCreateOrder_ConcurrentManyRequests(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	initialStock := 20
	product := seedProduct(t, store, "Hot Item", "10.00", initialStock)

	totalRequests := 50
	var success atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, CreateOrderInput{
				UserID: user.ID,
				Items:  []LineItemRequest{{ProductID: product.ID, Quantity: 1}},
			})
			if err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), success.Load())

	p, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 0, p.Quantity)
}

func TestCreateOrder_DuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cache := newMockCache()
	svc := NewOrderService(store, cache, nil, nil)

	user := seedUser(t, store)
	product := seedProduct(t, store, "Charger", "59.00", 10)
	cache.SetStock(ctx, product.ID, 10)

	input := CreateOrderInput{
		UserID:         user.ID,
		Items:          []LineItemRequest{{ProductID: product.ID, Quantity: 1}},
		IdempotencyKey: "req-1",
	}

	_, err := svc.Create(ctx, input)
	require.NoError(t, err)

	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)

	// only the first submission decremented anything
	p, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 9, p.Quantity)
	assert.Equal(t, 9, cache.stock[product.ID])
}

func TestCreateOrder_GateFastFailReleasesReservations(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cache := newMockCache()
	svc := NewOrderService(store, cache, nil, nil)

	user := seedUser(t, store)
	productA := seedProduct(t, store, "Cable", "19.00", 10)
	productB := seedProduct(t, store, "Adapter", "39.00", 0)
	cache.SetStock(ctx, productA.ID, 10)
	cache.SetStock(ctx, productB.ID, 0)

	_, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items: []LineItemRequest{
			{ProductID: productA.ID, Quantity: 2},
			{ProductID: productB.ID, Quantity: 1},
		},
	})
	var ise *domain.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, productB.ID, ise.ProductID)

	// the mirror reservation for product A was rolled back
	assert.Equal(t, 10, cache.stock[productA.ID])
	// database untouched
	a, _ := store.GetProduct(ctx, productA.ID)
	assert.Equal(t, 10, a.Quantity)
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	productA := seedProduct(t, store, "Notebook", "3500.00", 50)
	productB := seedProduct(t, store, "Mouse", "89.90", 100)

	order, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items: []LineItemRequest{
			{ProductID: productA.ID, Quantity: 1},
			{ProductID: productB.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	a, _ := store.GetProduct(ctx, productA.ID)
	assert.Equal(t, 50, a.Quantity)
	b, _ := store.GetProduct(ctx, productB.ID)
	assert.Equal(t, 100, b.Quantity)
}

func TestCancelOrder_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	product := seedProduct(t, store, "Tablet", "1200.00", 8)

	order, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items:  []LineItemRequest{{ProductID: product.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	first, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)

	second, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.OrderStatusCancelled, second.Status)

	// the second call must not restore stock again
	p, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 8, p.Quantity)
}

func TestCancelOrder_DeliveredIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	product := seedProduct(t, store, "Printer", "800.00", 3)

	order, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items:  []LineItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusDelivered)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, order.ID)
	var ite *domain.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, domain.OrderStatusDelivered, ite.From)
	assert.Equal(t, domain.OrderStatusCancelled, ite.To)

	// no restoration happened
	p, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 2, p.Quantity)
}

func TestCancelOrder_NotFoundAndMalformedID(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	order, err := svc.Cancel(ctx, "definitely-not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, order)

	order, err = svc.Cancel(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestUpdateStatus_InvalidValue(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	_, err := svc.UpdateStatus(ctx, uuid.New().String(), "teleported")
	var ise *domain.InvalidStatusError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "teleported", ise.Value)
}

func TestUpdateStatus_OverwriteKeepsTotal(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	product := seedProduct(t, store, "Speaker", "330.00", 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items:  []LineItemRequest{{ProductID: product.ID, Quantity: 3}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, order.ID, "confirmed")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)
	assert.True(t, updated.TotalValue.Equal(order.TotalValue))

	// direct overwrite leaves inventory alone
	p, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 7, p.Quantity)
}

func TestUpdateStatus_CancelledRoutesThroughRestore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	product := seedProduct(t, store, "Camera", "2100.00", 6)

	order, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items:  []LineItemRequest{{ProductID: product.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, order.ID, "cancelled")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)

	// inventory restored even though the caller used the status endpoint
	p, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 6, p.Quantity)
}

func TestGetByID_SoftNotFound(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	order, err := svc.GetByID(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, order)

	order, err = svc.GetByID(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestListOrders_ProjectsReferences(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	product := seedProduct(t, store, "Router", "450.00", 10)

	order, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items:  []LineItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	views, err := svc.List(ctx, port.OrderFilter{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, views, 1)

	v := views[0]
	assert.Equal(t, order.ID, v.Order.ID)
	require.NotNil(t, v.User)
	assert.Equal(t, user.Name, v.User.Name)
	assert.Equal(t, user.Email, v.User.Email)

	require.Len(t, v.Items, 1)
	require.NotNil(t, v.Items[0].Product)
	assert.Equal(t, product.Name, v.Items[0].Product.Name)
	assert.True(t, v.Items[0].Product.Price.Equal(product.Price))
}

func TestListOrders_DanglingReferences(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewOrderService(store, nil, nil, nil)

	user := seedUser(t, store)
	product := seedProduct(t, store, "Dock", "280.00", 4)

	_, err := svc.Create(ctx, CreateOrderInput{
		UserID: user.ID,
		Items:  []LineItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = store.DeleteProduct(ctx, product.ID)
	require.NoError(t, err)

	views, err := svc.List(ctx, port.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Nil(t, views[0].Items[0].Product)
	// the price snapshot on the line item survives the product deletion
	assert.True(t, views[0].Items[0].UnitPrice.Equal(product.Price))
}
