package auth

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
)

//go:embed schema.sql
var postgresSchema string

const pgUniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ConnectPostgres opens a pool and makes sure the users table exists
func ConnectPostgres(ctx context.Context, url string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureSchema creates the users table if needed
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply users schema: %w", err)
	}
	return nil
}

// Close releases the pool
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// CreateUser inserts a new user
func (r *PostgresRepository) CreateUser(ctx context.Context, acct *domain.Account) error {
	query := `
		INSERT INTO users (id, nombre, email, rol, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		acct.ID, acct.Nombre, strings.ToLower(acct.Email), string(acct.Rol),
		acct.PasswordHash, acct.CreatedAt, acct.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return domain.ErrUserAlreadyExists
	}
	return err
}

// GetUserByEmail retrieves a user by email
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT id, nombre, email, rol, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	return scanAccount(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

// GetUserByID retrieves a user by ID
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, nombre, email, rol, password_hash, created_at, updated_at
		FROM users WHERE id = $1
	`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	acct := &domain.Account{}
	var rol string
	err := row.Scan(
		&acct.ID, &acct.Nombre, &acct.Email, &rol, &acct.PasswordHash, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	acct.Rol = domain.Role(rol)
	return acct, nil
}
