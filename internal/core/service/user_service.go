package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leonardofgirotto/storefront/internal/core/domain"
	"github.com/leonardofgirotto/storefront/internal/port"
)

// UserService manages accounts. Removal is a soft delete: accounts are
// deactivated, never erased, so orders keep a resolvable reference.
type UserService struct {
	db  port.Store
	log *zap.Logger
}

func NewUserService(db port.Store, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{db: db, log: log}
}

type RegisterUserInput struct {
	Name     string
	Email    string
	Password string
	Address  domain.Address
	Phone    string
}

func (s *UserService) Register(ctx context.Context, in RegisterUserInput) (*domain.User, error) {
	now := time.Now().UTC()
	u := domain.User{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Password:  in.Password,
		Address:   in.Address,
		Phone:     strings.TrimSpace(in.Phone),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.Validate(); err != nil {
		s.logFailure("register user", err)
		return nil, err
	}

	err := s.db.RunAtomic(ctx, func(ctx context.Context) error {
		existing, err := s.db.GetUserByEmail(ctx, u.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.ValidationError{Messages: []string{"email already registered"}}
		}
		return s.db.CreateUser(ctx, u)
	})
	if err != nil {
		s.logFailure("register user", err)
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", u.ID), zap.String("email", u.Email))
	return sanitize(&u), nil
}

// List returns users without their password field.
func (s *UserService) List(ctx context.Context, onlyActive bool) ([]domain.User, error) {
	users, err := s.db.ListUsers(ctx, onlyActive)
	if err != nil {
		s.logFailure("list users", err)
		return nil, err
	}
	for i := range users {
		users[i].Password = ""
	}
	return users, nil
}

// GetByID returns (nil, nil) for malformed ids and missing users alike.
func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		s.log.Debug("invalid user id", zap.String("id", id))
		return nil, nil
	}
	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		s.logFailure("get user", err)
		return nil, err
	}
	if u == nil {
		s.log.Debug("user not found", zap.String("id", id))
		return nil, nil
	}
	return sanitize(u), nil
}

type UpdateUserInput struct {
	Name    string
	Email   string
	Phone   string
	Address domain.Address
}

func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		s.log.Debug("invalid user id", zap.String("id", id))
		return nil, nil
	}

	u := domain.User{
		ID:      id,
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:   strings.TrimSpace(in.Phone),
		Address: in.Address,
		// Password untouched by profile updates; satisfies validation only.
		Password: "unchanged",
	}
	if err := u.Validate(); err != nil {
		s.logFailure("update user", err)
		return nil, err
	}

	updated, err := s.db.UpdateUser(ctx, u)
	if err != nil {
		s.logFailure("update user", err)
		return nil, err
	}
	if updated == nil {
		s.log.Debug("user not found for update", zap.String("id", id))
		return nil, nil
	}

	s.log.Info("user updated", zap.String("user_id", id))
	return sanitize(updated), nil
}

// Deactivate soft-deletes a user.
func (s *UserService) Deactivate(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		s.log.Debug("invalid user id", zap.String("id", id))
		return nil, nil
	}
	u, err := s.db.DeactivateUser(ctx, id)
	if err != nil {
		s.logFailure("deactivate user", err)
		return nil, err
	}
	if u == nil {
		s.log.Debug("user not found for deactivation", zap.String("id", id))
		return nil, nil
	}

	s.log.Info("user deactivated", zap.String("user_id", id))
	return sanitize(u), nil
}

func sanitize(u *domain.User) *domain.User {
	out := *u
	out.Password = ""
	return &out
}

func (s *UserService) logFailure(op string, err error) {
	logFailure(s.log, op, err)
}
