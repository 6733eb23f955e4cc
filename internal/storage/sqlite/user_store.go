package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
)

// UserStore persists auth accounts in SQLite.
type UserStore struct {
	db *DB
}

// NewUserStore creates a SQLite-backed user store.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUser inserts a new account.
func (s *UserStore) CreateUser(ctx context.Context, acct *domain.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, nombre, email, rol, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		acct.ID.String(), acct.Nombre, strings.ToLower(acct.Email), string(acct.Rol),
		acct.PasswordHash, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves an account by email (case-insensitive).
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, nombre, email, rol, password_hash, created_at, updated_at
		FROM users WHERE email = ?`, strings.ToLower(email))
	return scanAccount(row)
}

// GetUserByID retrieves an account by ID.
func (s *UserStore) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, nombre, email, rol, password_hash, created_at, updated_at
		FROM users WHERE id = ?`, id.String())
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var acct domain.Account
	var id, rol string

	err := row.Scan(&id, &acct.Nombre, &acct.Email, &rol, &acct.PasswordHash, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	acct.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	acct.Rol = domain.Role(rol)
	return &acct, nil
}
