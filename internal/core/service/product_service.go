package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/leonardofgirotto/storefront/internal/core/domain"
	"github.com/leonardofgirotto/storefront/internal/port"
)

// ProductService manages the catalog. Stock quantities are owned by the
// order lifecycle once a product exists; this service only sets the
// initial quantity.
type ProductService struct {
	db    port.Store
	cache port.CacheRepository
	log   *zap.Logger
}

func NewProductService(db port.Store, cache port.CacheRepository, log *zap.Logger) *ProductService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductService{db: db, cache: cache, log: log}
}

type CreateProductInput struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
}

func (s *ProductService) Create(ctx context.Context, in CreateProductInput) (*domain.Product, error) {
	now := time.Now().UTC()
	p := domain.Product{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Price:     in.Price,
		Quantity:  in.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.Validate(); err != nil {
		s.logFailure("create product", err)
		return nil, err
	}

	if err := s.db.CreateProduct(ctx, p); err != nil {
		s.logFailure("create product", err)
		return nil, err
	}

	// Seed the stock mirror so the fast-path gate sees the new product.
	if s.cache != nil {
		if err := s.cache.SetStock(ctx, p.ID, p.Quantity); err != nil {
			s.log.Warn("stock mirror seed failed", zap.String("product_id", p.ID), zap.Error(err))
		}
	}

	s.log.Info("product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	return &p, nil
}

func (s *ProductService) List(ctx context.Context, nameContains string) ([]domain.Product, error) {
	products, err := s.db.ListProducts(ctx, nameContains)
	if err != nil {
		s.logFailure("list products", err)
		return nil, err
	}
	return products, nil
}

// GetByID returns (nil, nil) for malformed ids and missing products alike.
func (s *ProductService) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		s.log.Debug("invalid product id", zap.String("id", id))
		return nil, nil
	}
	p, err := s.db.GetProduct(ctx, id)
	if err != nil {
		s.logFailure("get product", err)
		return nil, err
	}
	if p == nil {
		s.log.Debug("product not found", zap.String("id", id))
	}
	return p, nil
}

// Delete removes a product and returns the deleted record, or (nil, nil)
// when nothing matched.
func (s *ProductService) Delete(ctx context.Context, id string) (*domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		s.log.Debug("invalid product id", zap.String("id", id))
		return nil, nil
	}
	p, err := s.db.DeleteProduct(ctx, id)
	if err != nil {
		s.logFailure("delete product", err)
		return nil, err
	}
	if p == nil {
		s.log.Debug("product not found for deletion", zap.String("id", id))
		return nil, nil
	}

	s.log.Info("product deleted", zap.String("product_id", id), zap.String("name", p.Name))
	return p, nil
}

func (s *ProductService) logFailure(op string, err error) {
	logFailure(s.log, op, err)
}
