package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the platform role a user acts under.
type Role string

const (
	RoleEstudiante Role = "estudiante"
	RoleProfesor   Role = "profesor"
	RoleAdmin      Role = "admin"
)

// ParseRole normalizes a role string. An empty value defaults to estudiante.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleEstudiante:
		return RoleEstudiante, nil
	case RoleProfesor:
		return RoleProfesor, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrInvalidRole
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleEstudiante || r == RoleProfesor || r == RoleAdmin
}

// User is the public user record shared with clients. Field names follow the
// JSON contract of the frontend: {id, nombre, email, rol}.
type User struct {
	ID     string `json:"id"`
	Nombre string `json:"nombre"`
	Email  string `json:"email"`
	Rol    Role   `json:"rol"`
}

// Merge returns u with the non-empty fields of other applied on top.
func (u User) Merge(other *User) User {
	if other == nil {
		return u
	}
	if other.ID != "" {
		u.ID = other.ID
	}
	if other.Nombre != "" {
		u.Nombre = other.Nombre
	}
	if other.Email != "" {
		u.Email = other.Email
	}
	if other.Rol != "" {
		u.Rol = other.Rol
	}
	return u
}

// Account is a registered user as stored by the auth service.
type Account struct {
	ID           uuid.UUID
	Nombre       string
	Email        string
	Rol          Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public strips credentials from the account.
func (a *Account) Public() User {
	return User{
		ID:     a.ID.String(),
		Nombre: a.Nombre,
		Email:  a.Email,
		Rol:    a.Rol,
	}
}
