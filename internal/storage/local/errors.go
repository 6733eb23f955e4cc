package local

import "errors"

var (
	// ErrInvalidKey is returned for keys that cannot be used as file names
	ErrInvalidKey = errors.New("invalid key")
)
