// Package store persists the login session. Only the logged-in identity is
// stored; its absence means logged out.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Mode specifies the database access mode.
type Mode int

const (
	// ModeReadWrite is the default, used by anything that may log in or out.
	ModeReadWrite Mode = iota
	// ModeReadOnly opens the session for inspection only.
	ModeReadOnly
)

const identityKey = "identity"

// Store is the sqlite-backed session store.
type Store struct {
	db *sql.DB
}

// Open opens (and in read-write mode initializes) the session database.
func Open(path string, mode Mode) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open session database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to session database: %w", err)
	}

	// query_only applies per connection, so read-only mode keeps a single one.
	if mode == ModeReadOnly {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(2)
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	if mode == ModeReadOnly {
		pragmas = append(pragmas, "PRAGMA query_only = ON;")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			log.Printf("[STORE] warning: failed to set pragma: %v", err)
		}
	}

	if mode == ModeReadWrite {
		if err := createTables(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create session table: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// SaveIdentity records the logged-in identity.
func (s *Store) SaveIdentity(pubkey string) error {
	_, err := s.db.Exec(`
		INSERT INTO session (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		identityKey, pubkey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("could not save identity: %w", err)
	}
	return nil
}

// Identity returns the stored identity, or "" when logged out.
func (s *Store) Identity() (string, error) {
	var pubkey string
	err := s.db.QueryRow(`SELECT value FROM session WHERE key = ?;`, identityKey).Scan(&pubkey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("could not read identity: %w", err)
	}
	return pubkey, nil
}

// ClearIdentity removes the stored identity (logout).
func (s *Store) ClearIdentity() error {
	if _, err := s.db.Exec(`DELETE FROM session WHERE key = ?;`, identityKey); err != nil {
		return fmt.Errorf("could not clear identity: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS session (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`)
	return err
}
