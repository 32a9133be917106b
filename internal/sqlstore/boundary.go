// Package sqlstore is the SQL boundary (C9): a thin wrapper around an
// embedded mattn/go-sqlite3 database exposed to the script runtime's
// sqlQuery/sqlExec ops and to the script catalog, grounded on
// tools/entities/add_entity.go's `sql.Open("sqlite3", dbPath)` /
// `db.Exec(...)` usage — the teacher only ever touches sqlite from
// one-shot CLI utilities; this package is the first place in the tree
// that keeps a live *sql.DB open for the life of the process.
package sqlstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nodalkv/nodal/internal/kverrors"
)

// Boundary is the concrete SQL boundary, backed by a single sqlite
// database file that holds both whatever tables user scripts create via
// sqlExec and this package's own user_scripts catalog table.
type Boundary struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// ensures the script catalog table exists.
func Open(path string) (*Boundary, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sql boundary: %v", kverrors.ErrIO, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping sql boundary: %v", kverrors.ErrIO, err)
	}

	b := &Boundary{db: db}
	if err := b.ensureCatalog(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Boundary) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("%w: close sql boundary: %v", kverrors.ErrIO, err)
	}
	return nil
}

// Query runs a parameterized SELECT and returns every row as a
// column-name-keyed map, the shape the script host's sqlQuery op hands
// straight to goja to be rendered as a JS array of objects.
func (b *Boundary) Query(query string, args ...any) ([]map[string]any, error) {
	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", kverrors.ErrIO, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: columns: %v", kverrors.ErrIO, err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", kverrors.ErrIO, err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration: %v", kverrors.ErrIO, err)
	}
	return out, nil
}

// Exec runs a parameterized mutating statement and returns the number
// of affected rows.
func (b *Boundary) Exec(query string, args ...any) (int64, error) {
	res, err := b.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: exec: %v", kverrors.ErrIO, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", kverrors.ErrIO, err)
	}
	return n, nil
}

// ScriptCatalog returns the catalog view over this same database.
func (b *Boundary) ScriptCatalog() *Catalog {
	return &Catalog{db: b.db}
}
