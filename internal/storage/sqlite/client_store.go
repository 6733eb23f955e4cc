package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ClientStore is a key-value store in the client_storage table. It offers the
// same contract as the JSON file store for clients that keep a database.
type ClientStore struct {
	db *DB
}

// NewClientStore creates a SQLite-backed client store.
func NewClientStore(db *DB) *ClientStore {
	return &ClientStore{db: db}
}

func (s *ClientStore) GetItem(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM client_storage WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get item %s: %w", key, err)
	}
	return value, true, nil
}

func (s *ClientStore) SetItem(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO client_storage (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set item %s: %w", key, err)
	}
	return nil
}

func (s *ClientStore) RemoveItem(key string) error {
	if _, err := s.db.Exec("DELETE FROM client_storage WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove item %s: %w", key, err)
	}
	return nil
}

func (s *ClientStore) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM client_storage ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
