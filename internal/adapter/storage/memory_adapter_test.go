package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardofgirotto/storefront/internal/core/domain"
	"github.com/leonardofgirotto/storefront/internal/port"
)

func memProduct(quantity int) domain.Product {
	now := time.Now().UTC()
	return domain.Product{
		ID:        uuid.New().String(),
		Name:      "Test Product",
		Price:     decimal.RequireFromString("10.00"),
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryAdjustStock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := memProduct(5)
	require.NoError(t, store.CreateProduct(ctx, p))

	ok, err := store.AdjustStock(ctx, p.ID, -3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AdjustStock(ctx, p.ID, -3)
	require.NoError(t, err)
	assert.False(t, ok, "decrement below zero must be refused")

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quantity, "refused decrement must not change quantity")

	ok, err = store.AdjustStock(ctx, p.ID, -2)
	require.NoError(t, err)
	assert.True(t, ok, "decrement to exactly zero is allowed")

	ok, err = store.AdjustStock(ctx, uuid.New().String(), -1)
	require.NoError(t, err)
	assert.False(t, ok, "unknown product reports no rows adjusted")
}

func TestMemoryRunAtomic_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := memProduct(10)
	require.NoError(t, store.CreateProduct(ctx, p))

	boom := errors.New("boom")
	err := store.RunAtomic(ctx, func(ctx context.Context) error {
		ok, err := store.AdjustStock(ctx, p.ID, -4)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, store.CreateOrder(ctx, domain.Order{
			ID:     uuid.New().String(),
			UserID: uuid.New().String(),
			Items:  []domain.LineItem{{ProductID: p.ID, Quantity: 4, UnitPrice: p.Price}},
			Status: domain.OrderStatusPending,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)

	orders, err := store.ListOrders(ctx, port.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestMemoryRunAtomic_CommitOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := memProduct(10)
	require.NoError(t, store.CreateProduct(ctx, p))

	err := store.RunAtomic(ctx, func(ctx context.Context) error {
		_, err := store.AdjustStock(ctx, p.ID, -4)
		return err
	})
	require.NoError(t, err)

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Quantity)
}

func TestMemoryRunAtomic_NestedRejected(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.RunAtomic(ctx, func(ctx context.Context) error {
		return store.RunAtomic(ctx, func(ctx context.Context) error { return nil })
	})
	require.Error(t, err)
}

func TestMemoryOrderFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	userA := uuid.New().String()
	userB := uuid.New().String()

	mkOrder := func(userID string, status domain.OrderStatus, createdAt time.Time) {
		require.NoError(t, store.CreateOrder(ctx, domain.Order{
			ID:        uuid.New().String(),
			UserID:    userID,
			Status:    status,
			CreatedAt: createdAt,
		}))
	}
	base := time.Now().UTC()
	mkOrder(userA, domain.OrderStatusPending, base)
	mkOrder(userA, domain.OrderStatusCancelled, base.Add(time.Second))
	mkOrder(userB, domain.OrderStatusPending, base.Add(2*time.Second))

	all, err := store.ListOrders(ctx, port.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// newest first
	assert.Equal(t, userB, all[0].UserID)

	byUser, err := store.ListOrders(ctx, port.OrderFilter{UserID: userA})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byStatus, err := store.ListOrders(ctx, port.OrderFilter{Status: domain.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)

	both, err := store.ListOrders(ctx, port.OrderFilter{UserID: userB, Status: domain.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Empty(t, both)
}

func TestMemoryOrderItemsIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	o := domain.Order{
		ID:     uuid.New().String(),
		UserID: uuid.New().String(),
		Items:  []domain.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")}},
		Status: domain.OrderStatusPending,
	}
	require.NoError(t, store.CreateOrder(ctx, o))

	got, err := store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	got.Items[0].Quantity = 99

	again, err := store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity, "callers must not share the stored slice")
}
