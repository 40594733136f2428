package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leonardofgirotto/storefront/internal/core/domain"
	"github.com/leonardofgirotto/storefront/internal/port"
)

// MySQLStore implements port.Store on a MySQL database. The open
// transaction travels in the context, so repository calls made inside
// RunAtomic automatically share it.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

type txKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *MySQLStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// RunAtomic runs fn inside a single InnoDB transaction. The conditional
// stock UPDATE takes a row lock, so competing decrements for the same
// product serialize without an application-level retry loop.
func (s *MySQLStore) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return errors.New("nested atomic unit")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Users

func (s *MySQLStore) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO users (id, name, email, password, phone, active,
			street, number, complement, city, state, postal_code,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Password, u.Phone, u.Active,
		u.Address.Street, u.Address.Number, u.Address.Complement,
		u.Address.City, u.Address.State, u.Address.PostalCode,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, name, email, password, phone, active,
	street, number, complement, city, state, postal_code, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Phone, &u.Active,
		&u.Address.Street, &u.Address.Number, &u.Address.Complement,
		&u.Address.City, &u.Address.State, &u.Address.PostalCode,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MySQLStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (s *MySQLStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return u, nil
}

func (s *MySQLStore) ListUsers(ctx context.Context, onlyActive bool) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if onlyActive {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY created_at`

	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *MySQLStore) UpdateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil || existing == nil {
		return nil, err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		UPDATE users SET name = ?, email = ?, phone = ?,
			street = ?, number = ?, complement = ?, city = ?, state = ?, postal_code = ?,
			updated_at = ?
		WHERE id = ?`,
		u.Name, u.Email, u.Phone,
		u.Address.Street, u.Address.Number, u.Address.Complement,
		u.Address.City, u.Address.State, u.Address.PostalCode,
		time.Now().UTC(), u.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetUser(ctx, u.ID)
}

func (s *MySQLStore) DeactivateUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	_, err = s.q(ctx).ExecContext(ctx,
		`UPDATE users SET active = FALSE, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("deactivate user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// Products

func (s *MySQLStore) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO products (id, name, price, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Price, p.Quantity, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, name, price, quantity, created_at, updated_at
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Quantity, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (s *MySQLStore) ListProducts(ctx context.Context, nameContains string) ([]domain.Product, error) {
	query := `SELECT id, name, price, quantity, created_at, updated_at FROM products`
	var args []any
	if nameContains != "" {
		query += ` WHERE name LIKE ?`
		args = append(args, "%"+nameContains+"%")
	}
	query += ` ORDER BY created_at`

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Quantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *MySQLStore) DeleteProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}
	return p, nil
}

// AdjustStock applies the conditional quantity change. The guard is part of
// the UPDATE itself, so the check and the write are one atomic step; zero
// rows affected means the guard rejected the adjustment.
func (s *MySQLStore) AdjustStock(ctx context.Context, id string, delta int) (bool, error) {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + ?, updated_at = ?
		WHERE id = ? AND quantity + ? >= 0`,
		delta, time.Now().UTC(), id, delta,
	)
	if err != nil {
		return false, fmt.Errorf("adjust stock: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// Orders

func (s *MySQLStore) CreateOrder(ctx context.Context, o domain.Order) error {
	q := s.q(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, total_value,
			street, number, complement, city, state, postal_code,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Status, o.TotalValue,
		o.DeliveryAddress.Street, o.DeliveryAddress.Number, o.DeliveryAddress.Complement,
		o.DeliveryAddress.City, o.DeliveryAddress.State, o.DeliveryAddress.PostalCode,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range o.Items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, item_index, product_id, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)`,
			o.ID, i, item.ProductID, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, user_id, status, total_value,
			street, number, complement, city, state, postal_code,
			created_at, updated_at
		FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.TotalValue,
		&o.DeliveryAddress.Street, &o.DeliveryAddress.Number, &o.DeliveryAddress.Complement,
		&o.DeliveryAddress.City, &o.DeliveryAddress.State, &o.DeliveryAddress.PostalCode,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	items, err := s.readOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *MySQLStore) readOrderItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM order_items WHERE order_id = ? ORDER BY item_index`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		var li domain.LineItem
		if err := rows.Scan(&li.ProductID, &li.Quantity, &li.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (s *MySQLStore) ListOrders(ctx context.Context, f port.OrderFilter) ([]domain.Order, error) {
	query := `SELECT id, user_id, status, total_value,
		street, number, complement, city, state, postal_code,
		created_at, updated_at
	FROM orders WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalValue,
			&o.DeliveryAddress.Street, &o.DeliveryAddress.Number, &o.DeliveryAddress.Complement,
			&o.DeliveryAddress.City, &o.DeliveryAddress.State, &o.DeliveryAddress.PostalCode,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := s.readOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (s *MySQLStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil || o == nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.q(ctx).ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, id)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	o.Status = status
	o.UpdatedAt = now
	return o, nil
}
