package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/token"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrRefreshExpired     = errors.New("refresh window elapsed, log in again")
)

const minPasswordLength = 8

// Repository defines the interface for auth data access
type Repository interface {
	CreateUser(ctx context.Context, acct *domain.Account) error
	GetUserByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

// Service handles registration, login and token renewal
type Service struct {
	repo       Repository
	issuer     *token.Issuer
	bcryptCost int
	logger     *slog.Logger
}

// NewService creates a new auth service
func NewService(repo Repository, issuer *token.Issuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		issuer:     issuer,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger,
	}
}

// SetBcryptCost overrides the password hashing cost
func (s *Service) SetBcryptCost(cost int) {
	s.bcryptCost = cost
}

// RegisterRequest contains registration data
type RegisterRequest struct {
	Nombre   string
	Email    string
	Password string
	Rol      string
}

// Grant is an issued token with the user it belongs to.
type Grant struct {
	Token     string      `json:"token"`
	User      domain.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Register creates a new account
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	rol, err := domain.ParseRole(req.Rol)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrInvalidPassword
	}

	existing, err := s.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, ErrEmailExists
	case err != nil && !errors.Is(err, domain.ErrUserNotFound):
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	acct := &domain.Account{
		ID:           uuid.New(),
		Nombre:       strings.TrimSpace(req.Nombre),
		Email:        email,
		Rol:          rol,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, acct); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", "user", acct.ID, "rol", acct.Rol)
	u := acct.Public()
	return &u, nil
}

// Login verifies credentials and issues a token starting a new refresh chain
func (s *Service) Login(ctx context.Context, email, password string) (*Grant, error) {
	acct, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Error("login lookup failed", "error", err)
		}
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.grant(acct.Public(), 0)
}

// Refresh re-issues a still-valid token with a fresh expiry
func (s *Service) Refresh(ctx context.Context, raw string) (*Grant, error) {
	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}

	acct, err := s.account(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	signed, err := s.issuer.Refresh(claims, acct.Public())
	if err != nil {
		if errors.Is(err, token.ErrRefreshExpired) {
			return nil, ErrRefreshExpired
		}
		return nil, err
	}
	return s.newGrant(signed, acct.Public())
}

// Me returns the current profile of the token's user
func (s *Service) Me(ctx context.Context, raw string) (*domain.User, error) {
	claims, err := s.Authenticate(raw)
	if err != nil {
		return nil, err
	}
	acct, err := s.account(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	u := acct.Public()
	return &u, nil
}

// Authenticate verifies a bearer token without touching the repository
func (s *Service) Authenticate(raw string) (*token.Claims, error) {
	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) account(ctx context.Context, subject string) (*domain.Account, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	acct, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return acct, nil
}

func (s *Service) grant(u domain.User, origIssuedAt int64) (*Grant, error) {
	signed, err := s.issuer.Sign(u, origIssuedAt)
	if err != nil {
		return nil, err
	}
	return s.newGrant(signed, u)
}

func (s *Service) newGrant(signed string, u domain.User) (*Grant, error) {
	exp, err := token.Expiry(signed)
	if err != nil {
		return nil, err
	}
	return &Grant{Token: signed, User: u, ExpiresAt: exp}, nil
}
