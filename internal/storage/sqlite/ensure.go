package sqlite

import (
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/auth"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/session"
)

// Ensure SQLite stores implement the storage interfaces.
var (
	_ session.Storage = (*ClientStore)(nil)
	_ auth.Repository = (*UserStore)(nil)
)
