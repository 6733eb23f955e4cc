package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
)

func newTestAccount(email string) *domain.Account {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Account{
		ID:           uuid.New(),
		Nombre:       "Ana",
		Email:        email,
		Rol:          domain.RoleProfesor,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(openTestDB(t))
	acct := newTestAccount("Ana@Example.com")

	if err := store.CreateUser(ctx, acct); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	byEmail, err := store.GetUserByEmail(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if byEmail.ID != acct.ID {
		t.Errorf("ID = %v, want %v", byEmail.ID, acct.ID)
	}
	if byEmail.Rol != domain.RoleProfesor {
		t.Errorf("Rol = %q, want profesor", byEmail.Rol)
	}

	byID, err := store.GetUserByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if byID.Email != "ana@example.com" {
		t.Errorf("Email = %q, want lower-cased address", byID.Email)
	}
}

func TestUserStore_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(openTestDB(t))

	if err := store.CreateUser(ctx, newTestAccount("dup@example.com")); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	err := store.CreateUser(ctx, newTestAccount("dup@example.com"))
	if !errors.Is(err, domain.ErrUserAlreadyExists) {
		t.Errorf("CreateUser() duplicate error = %v, want ErrUserAlreadyExists", err)
	}
}

func TestUserStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(openTestDB(t))

	if _, err := store.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("GetUserByEmail() error = %v, want ErrUserNotFound", err)
	}
	if _, err := store.GetUserByID(ctx, uuid.New()); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrUserNotFound", err)
	}
}
