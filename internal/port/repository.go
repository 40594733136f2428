package port

import (
	"context"

	"github.com/leonardofgirotto/storefront/internal/core/domain"
)

// Atomic executes work against the stores as one atomic unit: every read
// and write inside fn commits together or not at all. Any error returned by
// fn aborts the unit and is propagated unchanged; no partial write is
// observable afterwards. Retry policy belongs to the caller.
type Atomic interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, u domain.User) error

	// GetUser returns (nil, nil) when no user matches.
	GetUser(ctx context.Context, id string) (*domain.User, error)

	// GetUserByEmail returns (nil, nil) when no user matches.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	ListUsers(ctx context.Context, onlyActive bool) ([]domain.User, error)

	// UpdateUser overwrites the mutable fields of an existing user and
	// returns the updated record, or (nil, nil) when absent.
	UpdateUser(ctx context.Context, u domain.User) (*domain.User, error)

	// DeactivateUser soft-deletes a user by flipping Active off.
	// Returns (nil, nil) when absent.
	DeactivateUser(ctx context.Context, id string) (*domain.User, error)
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, p domain.Product) error

	// GetProduct returns (nil, nil) when no product matches.
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	ListProducts(ctx context.Context, nameContains string) ([]domain.Product, error)

	// DeleteProduct removes a product and returns the deleted record, or
	// (nil, nil) when absent.
	DeleteProduct(ctx context.Context, id string) (*domain.Product, error)

	// AdjustStock adds delta (negative to claim, positive to release) to a
	// product's available quantity. The guard quantity+delta >= 0 is applied
	// in the same atomic step as the write, so two competing claims for the
	// last units cannot both succeed. Returns false when the guard rejects
	// the adjustment. Must run inside an Atomic unit.
	AdjustStock(ctx context.Context, id string, delta int) (bool, error)
}

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	UserID string
	Status domain.OrderStatus
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, o domain.Order) error

	// GetOrder returns (nil, nil) when no order matches.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error)

	// UpdateOrderStatus overwrites the status of an existing order and
	// returns the updated record, or (nil, nil) when absent.
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
}

// Store is the full persistence surface backing the services. A single
// implementation provides the repositories plus the atomic coordinator so
// repository calls made inside RunAtomic share its transaction.
type Store interface {
	Atomic
	UserRepository
	ProductRepository
	OrderRepository
}
