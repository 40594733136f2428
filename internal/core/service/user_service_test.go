package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardofgirotto/storefront/internal/adapter/storage"
	"github.com/leonardofgirotto/storefront/internal/core/domain"
)

func TestRegisterUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewUserService(store, nil)

	u, err := svc.Register(ctx, RegisterUserInput{
		Name:     "  Joao Santos  ",
		Email:    " JOAO@Example.COM ",
		Password: "secret123",
		Address:  domain.Address{Street: "Rua B", Number: "7", City: "Recife", State: "PE", PostalCode: "50000-000"},
	})
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, "Joao Santos", u.Name)
	assert.Equal(t, "joao@example.com", u.Email)
	assert.Empty(t, u.Password, "responses must never carry the password")
	assert.True(t, u.Active)

	// the stored record keeps the password
	stored, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret123", stored.Password)
}

func TestRegisterUser_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewUserService(store, nil)

	in := RegisterUserInput{
		Name:     "Ana",
		Email:    "ana@example.com",
		Password: "secret123",
	}
	_, err := svc.Register(ctx, in)
	require.NoError(t, err)

	_, err = svc.Register(ctx, in)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Messages, "email already registered")
}

func TestRegisterUser_Invalid(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewUserService(store, nil)

	_, err := svc.Register(ctx, RegisterUserInput{Name: "", Email: "bad", Password: "123"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Messages, 3)
}

func TestListUsers_PasswordsBlanked(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewUserService(store, nil)

	_, err := svc.Register(ctx, RegisterUserInput{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	users, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Empty(t, users[0].Password)
}

func TestUserGetByID_Soft(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewUserService(store, nil)

	u, err := svc.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = svc.GetByID(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUpdateUser_KeepsPassword(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewUserService(store, nil)

	created, err := svc.Register(ctx, RegisterUserInput{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, UpdateUserInput{
		Name:  "Ana Souza",
		Email: "ana.souza@example.com",
		Phone: "11 99999-0000",
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Ana Souza", updated.Name)
	assert.Equal(t, "ana.souza@example.com", updated.Email)

	stored, err := store.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret123", stored.Password, "profile updates must not touch the password")
}

func TestDeactivateUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewUserService(store, nil)

	created, err := svc.Register(ctx, RegisterUserInput{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	deactivated, err := svc.Deactivate(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, deactivated)
	assert.False(t, deactivated.Active)

	// the record survives as inactive; listing active users omits it
	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
