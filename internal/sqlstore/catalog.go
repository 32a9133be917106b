package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nodalkv/nodal/internal/kverrors"
)

// Catalog is the user_scripts table (§3.1): named, reusable script
// source, grounded on original_source/src/internal/scripts.rs's
// persisted-script-by-name model so that /exec can resolve a key to
// code without the caller re-transmitting the source every time.
type Catalog struct {
	db *sql.DB
}

func (b *Boundary) ensureCatalog() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS user_scripts (
			name       TEXT PRIMARY KEY,
			code       TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("%w: create user_scripts table: %v", kverrors.ErrIO, err)
	}
	return nil
}

// Get returns the source stored under name. Returns kverrors.ErrNotFound
// if no script is catalogued under that name.
func (c *Catalog) Get(name string) (string, error) {
	var code string
	err := c.db.QueryRow(`SELECT code FROM user_scripts WHERE name = ?`, name).Scan(&code)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: script %q", kverrors.ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("%w: lookup script %q: %v", kverrors.ErrIO, name, err)
	}
	return code, nil
}

// Put inserts or overwrites the script stored under name.
func (c *Catalog) Put(name, code string) error {
	_, err := c.db.Exec(`
		INSERT INTO user_scripts (name, code, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET code = excluded.code, updated_at = excluded.updated_at
	`, name, code, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: store script %q: %v", kverrors.ErrIO, name, err)
	}
	return nil
}
