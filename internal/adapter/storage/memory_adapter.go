package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leonardofgirotto/storefront/internal/core/domain"
	"github.com/leonardofgirotto/storefront/internal/port"
)

// MemoryStore implements port.Store on in-process maps. Atomic units are
// serialized under one mutex and rolled back by restoring a snapshot taken
// at RunAtomic entry, which gives the same all-or-nothing and isolation
// guarantees as the MySQL backend. Intended for tests and local runs
// without a database.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]domain.User
	products map[string]domain.Product
	orders   map[string]domain.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
	}
}

type memTxKey struct{}

// lock acquires the store mutex unless the context already runs inside an
// atomic unit, which holds it for the whole unit.
func (m *MemoryStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryStore) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return errors.New("nested atomic unit")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	users, products, orders := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, m)); err != nil {
		m.users, m.products, m.orders = users, products, orders
		return err
	}
	return nil
}

func (m *MemoryStore) snapshot() (map[string]domain.User, map[string]domain.Product, map[string]domain.Order) {
	users := make(map[string]domain.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	products := make(map[string]domain.Product, len(m.products))
	for k, v := range m.products {
		products[k] = v
	}
	orders := make(map[string]domain.Order, len(m.orders))
	for k, v := range m.orders {
		orders[k] = copyOrder(v)
	}
	return users, products, orders
}

func copyOrder(o domain.Order) domain.Order {
	items := make([]domain.LineItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

// Users

func (m *MemoryStore) CreateUser(ctx context.Context, u domain.User) error {
	defer m.lock(ctx)()
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	defer m.lock(ctx)()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer m.lock(ctx)()
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListUsers(ctx context.Context, onlyActive bool) ([]domain.User, error) {
	defer m.lock(ctx)()
	var users []domain.User
	for _, u := range m.users {
		if onlyActive && !u.Active {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	defer m.lock(ctx)()
	existing, ok := m.users[u.ID]
	if !ok {
		return nil, nil
	}
	existing.Name = u.Name
	existing.Email = u.Email
	existing.Phone = u.Phone
	existing.Address = u.Address
	existing.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = existing
	return &existing, nil
}

func (m *MemoryStore) DeactivateUser(ctx context.Context, id string) (*domain.User, error) {
	defer m.lock(ctx)()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	u.Active = false
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return &u, nil
}

// Products

func (m *MemoryStore) CreateProduct(ctx context.Context, p domain.Product) error {
	defer m.lock(ctx)()
	m.products[p.ID] = p
	return nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	defer m.lock(ctx)()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) ListProducts(ctx context.Context, nameContains string) ([]domain.Product, error) {
	defer m.lock(ctx)()
	var products []domain.Product
	for _, p := range m.products {
		if nameContains != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(nameContains)) {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].CreatedAt.Before(products[j].CreatedAt) })
	return products, nil
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id string) (*domain.Product, error) {
	defer m.lock(ctx)()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	delete(m.products, id)
	return &p, nil
}

func (m *MemoryStore) AdjustStock(ctx context.Context, id string, delta int) (bool, error) {
	defer m.lock(ctx)()
	p, ok := m.products[id]
	if !ok {
		return false, nil
	}
	if p.Quantity+delta < 0 {
		return false, nil
	}
	p.Quantity += delta
	p.UpdatedAt = time.Now().UTC()
	m.products[id] = p
	return true, nil
}

// Orders

func (m *MemoryStore) CreateOrder(ctx context.Context, o domain.Order) error {
	defer m.lock(ctx)()
	m.orders[o.ID] = copyOrder(o)
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	defer m.lock(ctx)()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	o = copyOrder(o)
	return &o, nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, f port.OrderFilter) ([]domain.Order, error) {
	defer m.lock(ctx)()
	var orders []domain.Order
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		orders = append(orders, copyOrder(o))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (m *MemoryStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	defer m.lock(ctx)()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	m.orders[id] = o
	o = copyOrder(o)
	return &o, nil
}
