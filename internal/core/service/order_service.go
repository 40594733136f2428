package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/leonardofgirotto/storefront/internal/core/domain"
	"github.com/leonardofgirotto/storefront/internal/port"
)

// OrderService orchestrates the order lifecycle against the shared product
// inventory. Creation and cancellation run as single atomic units through
// the store's coordinator: stock adjustments and the order write commit
// together or not at all. No retry is attempted here; an aborted unit
// surfaces as a plain error to the caller.
type OrderService struct {
	db     port.Store
	cache  port.CacheRepository
	events port.EventPublisher
	log    *zap.Logger
}

// NewOrderService wires the order lifecycle. cache and events are optional;
// nil disables the fast-path stock gate, idempotency checks and event
// publishing respectively.
func NewOrderService(db port.Store, cache port.CacheRepository, events port.EventPublisher, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{db: db, cache: cache, events: events, log: log}
}

type LineItemRequest struct {
	ProductID string
	Quantity  int
}

type CreateOrderInput struct {
	UserID string
	Items  []LineItemRequest

	// DeliveryAddress overrides the user's address snapshot when set.
	DeliveryAddress *domain.Address

	// IdempotencyKey dedupes retried submissions when non-empty.
	IdempotencyKey string
}

func (in CreateOrderInput) validate() error {
	var msgs []string
	if in.UserID == "" {
		msgs = append(msgs, "user ID is required")
	}
	if len(in.Items) == 0 {
		msgs = append(msgs, "order must have at least one item")
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			msgs = append(msgs, "product ID is required")
		}
		if it.Quantity < 1 {
			msgs = append(msgs, "minimum quantity is 1")
		}
	}
	if len(msgs) > 0 {
		return &domain.ValidationError{Messages: msgs}
	}
	return nil
}

// Create places an order: inside one atomic unit it resolves the user,
// conditionally decrements stock per line item, snapshots unit prices and
// persists the order as pending. Either the order exists with every
// decrement applied, or nothing changed.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if err := in.validate(); err != nil {
		s.logFailure("create order", err)
		return nil, err
	}

	if in.IdempotencyKey != "" && s.cache != nil {
		ok, err := s.cache.SetIdempotency(ctx, "order:"+in.IdempotencyKey)
		if err != nil {
			s.logFailure("create order", err)
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	reserved, err := s.gateReserve(ctx, in.Items)
	if err != nil {
		s.logFailure("create order", err)
		return nil, err
	}

	order, err := s.createAtomic(ctx, in)
	if err != nil {
		s.gateRelease(ctx, reserved)
		s.logFailure("create order", err)
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.TotalValue.String()))
	s.publish(ctx, port.EventOrderCreated, *order)
	return order, nil
}

func (s *OrderService) createAtomic(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	var order *domain.Order
	err := s.db.RunAtomic(ctx, func(ctx context.Context) error {
		// The user is resolved inside the unit so a concurrent deletion
		// cannot slip between check and use.
		user, err := s.db.GetUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return &domain.ReferenceNotFoundError{Kind: "user", ID: in.UserID}
		}

		items := make([]domain.LineItem, 0, len(in.Items))
		for _, it := range in.Items {
			p, err := s.db.GetProduct(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if p == nil {
				return &domain.ReferenceNotFoundError{Kind: "product", ID: it.ProductID}
			}

			// The guard rides on the conditional write itself, so two
			// orders racing for the last units cannot both pass.
			ok, err := s.db.AdjustStock(ctx, it.ProductID, -it.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &domain.InsufficientStockError{ProductID: it.ProductID}
			}

			items = append(items, domain.LineItem{
				ProductID: p.ID,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
			})
		}

		address := user.Address
		if in.DeliveryAddress != nil {
			address = *in.DeliveryAddress
		}

		now := time.Now().UTC()
		o := domain.Order{
			ID:              uuid.New().String(),
			UserID:          user.ID,
			Items:           items,
			TotalValue:      domain.ComputeTotal(items),
			Status:          domain.OrderStatusPending,
			DeliveryAddress: address,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.db.CreateOrder(ctx, o); err != nil {
			return err
		}
		order = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// gateReserve fast-fails doomed requests against the mirrored stock before
// opening a transaction. The mirror is advisory; the database guard inside
// the atomic unit stays authoritative.
func (s *OrderService) gateReserve(ctx context.Context, items []LineItemRequest) ([]LineItemRequest, error) {
	if s.cache == nil {
		return nil, nil
	}

	reserved := make([]LineItemRequest, 0, len(items))
	for _, it := range items {
		ok, err := s.cache.DecrementStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			s.gateRelease(ctx, reserved)
			return nil, fmt.Errorf("stock gate failed: %w", err)
		}
		if !ok {
			s.gateRelease(ctx, reserved)
			// A rejected gate usually means the product sold out, but a
			// dropped product leaves a dead mirror entry behind.
			if p, perr := s.db.GetProduct(ctx, it.ProductID); perr == nil && p == nil {
				return nil, &domain.ReferenceNotFoundError{Kind: "product", ID: it.ProductID}
			}
			return nil, &domain.InsufficientStockError{ProductID: it.ProductID}
		}
		reserved = append(reserved, it)
	}
	return reserved, nil
}

func (s *OrderService) gateRelease(ctx context.Context, reserved []LineItemRequest) {
	if s.cache == nil {
		return
	}
	for _, it := range reserved {
		if err := s.cache.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			s.log.Error("stock gate rollback failed",
				zap.String("product_id", it.ProductID), zap.Error(err))
		}
	}
}

// UserSummary is the user projection joined onto listed orders. Password
// and other secret fields are never projected.
type UserSummary struct {
	ID    string
	Name  string
	Email string
}

// ProductSummary is the product projection joined onto listed orders.
type ProductSummary struct {
	ID    string
	Name  string
	Price decimal.Decimal
}

type OrderLineView struct {
	domain.LineItem

	// Product is nil when the referenced product no longer exists.
	Product *ProductSummary
}

type OrderView struct {
	Order domain.Order

	// User is nil when the referenced user no longer exists.
	User  *UserSummary
	Items []OrderLineView
}

// List returns orders matching the filter with referenced users and
// products projected for display. Read-only; no atomicity beyond the
// store's read consistency.
func (s *OrderService) List(ctx context.Context, f port.OrderFilter) ([]OrderView, error) {
	orders, err := s.db.ListOrders(ctx, f)
	if err != nil {
		s.logFailure("list orders", err)
		return nil, err
	}

	users := make(map[string]*UserSummary)
	products := make(map[string]*ProductSummary)

	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		view := OrderView{Order: o}

		if _, seen := users[o.UserID]; !seen {
			u, err := s.db.GetUser(ctx, o.UserID)
			if err != nil {
				s.logFailure("list orders", err)
				return nil, err
			}
			if u != nil {
				users[o.UserID] = &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
			} else {
				users[o.UserID] = nil
			}
		}
		view.User = users[o.UserID]

		for _, li := range o.Items {
			if _, seen := products[li.ProductID]; !seen {
				p, err := s.db.GetProduct(ctx, li.ProductID)
				if err != nil {
					s.logFailure("list orders", err)
					return nil, err
				}
				if p != nil {
					products[li.ProductID] = &ProductSummary{ID: p.ID, Name: p.Name, Price: p.Price}
				} else {
					products[li.ProductID] = nil
				}
			}
			view.Items = append(view.Items, OrderLineView{LineItem: li, Product: products[li.ProductID]})
		}

		views = append(views, view)
	}
	return views, nil
}

// GetByID returns (nil, nil) both for a malformed id and for a well-formed
// id with no match; the distinction matters only for logging. A malformed
// id never reaches the store.
func (s *OrderService) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		s.log.Debug("invalid order id", zap.String("id", id))
		return nil, nil
	}
	o, err := s.db.GetOrder(ctx, id)
	if err != nil {
		s.logFailure("get order", err)
		return nil, err
	}
	if o == nil {
		s.log.Debug("order not found", zap.String("id", id))
	}
	return o, nil
}

// UpdateStatus overwrites an order's status after validating the value
// against the enum. Cancellation is deliberately routed through Cancel so
// inventory is always restored exactly once, whichever path callers take.
func (s *OrderService) UpdateStatus(ctx context.Context, id, newStatus string) (*domain.Order, error) {
	status, err := domain.ParseOrderStatus(newStatus)
	if err != nil {
		s.logFailure("update order status", err)
		return nil, err
	}

	if status == domain.OrderStatusCancelled {
		return s.Cancel(ctx, id)
	}

	if _, err := uuid.Parse(id); err != nil {
		s.log.Debug("invalid order id", zap.String("id", id))
		return nil, nil
	}

	o, err := s.db.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		s.logFailure("update order status", err)
		return nil, err
	}
	if o == nil {
		s.log.Debug("order not found for status update", zap.String("id", id))
		return nil, nil
	}

	s.log.Info("order status updated",
		zap.String("order_id", id), zap.String("status", newStatus))
	return o, nil
}

// Cancel flips an order to cancelled and releases its inventory claim in
// the same atomic unit. Cancelling an already-cancelled order is a no-op
// returning the order unchanged; a delivered order cannot be cancelled.
func (s *OrderService) Cancel(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		s.log.Debug("invalid order id", zap.String("id", id))
		return nil, nil
	}

	var (
		out      *domain.Order
		restored []domain.LineItem
	)
	err := s.db.RunAtomic(ctx, func(ctx context.Context) error {
		o, err := s.db.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if o == nil {
			return nil
		}
		if o.Status == domain.OrderStatusCancelled {
			out = o
			return nil
		}
		if !o.Status.CanTransitionTo(domain.OrderStatusCancelled) {
			return &domain.InvalidTransitionError{From: o.Status, To: domain.OrderStatusCancelled}
		}

		// Restoration and the status flip commit together or not at all.
		for _, li := range o.Items {
			if _, err := s.db.AdjustStock(ctx, li.ProductID, li.Quantity); err != nil {
				return err
			}
		}

		upd, err := s.db.UpdateOrderStatus(ctx, id, domain.OrderStatusCancelled)
		if err != nil {
			return err
		}
		out = upd
		restored = o.Items
		return nil
	})
	if err != nil {
		s.logFailure("cancel order", err)
		return nil, err
	}
	if out == nil {
		s.log.Debug("order not found for cancellation", zap.String("id", id))
		return nil, nil
	}

	if restored != nil {
		if s.cache != nil {
			for _, li := range restored {
				if err := s.cache.IncrementStock(ctx, li.ProductID, li.Quantity); err != nil {
					s.log.Error("stock mirror restore failed",
						zap.String("product_id", li.ProductID), zap.Error(err))
				}
			}
		}
		s.log.Info("order cancelled", zap.String("order_id", id))
		s.publish(ctx, port.EventOrderCancelled, *out)
	}
	return out, nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, o domain.Order) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, eventType, o); err != nil {
		s.log.Warn("event publish failed",
			zap.String("event", eventType), zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *OrderService) logFailure(op string, err error) {
	logFailure(s.log, op, err)
}

// logFailure keeps caller-input problems out of the durable error log:
// business rejections go to Warn, everything else is a persistence failure
// and goes to Error.
func logFailure(log *zap.Logger, op string, err error) {
	if domain.IsBusinessError(err) {
		log.Warn(op+" rejected", zap.Error(err))
		return
	}
	log.Error(op+" failed", zap.Error(err))
}
