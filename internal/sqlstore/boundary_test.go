package sqlstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodalkv/nodal/internal/kverrors"
)

func openTestBoundary(t *testing.T) *Boundary {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.sql")
	b, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBoundaryQueryExec(t *testing.T) {
	b := openTestBoundary(t)

	_, err := b.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	affected, err := b.Exec(`INSERT INTO widgets (name) VALUES (?)`, "gizmo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	rows, err := b.Query(`SELECT id, name FROM widgets WHERE name = ?`, "gizmo")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "gizmo", rows[0]["name"])
}

func TestCatalogPutGetOverwrite(t *testing.T) {
	b := openTestBoundary(t)
	catalog := b.ScriptCatalog()

	require.NoError(t, catalog.Put("greet", `"hello"`))
	code, err := catalog.Get("greet")
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, code)

	require.NoError(t, catalog.Put("greet", `"howdy"`))
	code, err = catalog.Get("greet")
	require.NoError(t, err)
	assert.Equal(t, `"howdy"`, code)
}

func TestCatalogGetMissingReturnsNotFound(t *testing.T) {
	b := openTestBoundary(t)
	_, err := b.ScriptCatalog().Get("nope")
	assert.True(t, errors.Is(err, kverrors.ErrNotFound))
}
