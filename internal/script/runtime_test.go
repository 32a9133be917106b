package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodalkv/nodal/internal/kv"
	"github.com/nodalkv/nodal/internal/writequeue"
)

// fakeSQL satisfies SQLBoundary without touching sqlite, so these tests
// exercise the host's dispatch logic in isolation from internal/sqlstore.
type fakeSQL struct {
	scripts map[string]string
}

func newFakeSQL() *fakeSQL { return &fakeSQL{scripts: make(map[string]string)} }

func (f *fakeSQL) Query(query string, args ...any) ([]map[string]any, error) {
	return []map[string]any{{"query": query}}, nil
}

func (f *fakeSQL) Exec(query string, args ...any) (int64, error) { return 1, nil }

func (f *fakeSQL) ScriptCatalog() ScriptCatalog { return f }

func (f *fakeSQL) Get(name string) (string, error) {
	code, ok := f.scripts[name]
	if !ok {
		return "", assert.AnError
	}
	return code, nil
}

func (f *fakeSQL) Put(name, code string) error {
	f.scripts[name] = code
	return nil
}

func newTestHost(t *testing.T) (*Host, *fakeSQL) {
	t.Helper()
	store, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	q := writequeue.New(store, 16)
	require.NoError(t, q.Start())
	t.Cleanup(func() { q.Stop() })

	sql := newFakeSQL()
	h := New(store, q, sql)
	require.NoError(t, h.Start())
	t.Cleanup(h.Shutdown)
	return h, sql
}

func TestExecNowReturnsExpressionResult(t *testing.T) {
	h, _ := newTestHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := h.ExecNow(ctx, "1 + 2")
	require.NoError(t, err)
	assert.Equal(t, "3", result)
}

func TestExecNowReadYourWrites(t *testing.T) {
	h, _ := newTestHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := h.ExecNow(ctx, `host.kvSetString("k", "v"); "done"`)
	require.NoError(t, err)

	result, err := h.ExecNow(ctx, `host.kvGetValue("k")`)
	require.NoError(t, err)
	assert.Equal(t, "v", result)
}

func TestExecNowSurfacesScriptErrors(t *testing.T) {
	h, _ := newTestHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := h.ExecNow(ctx, "this is not valid javascript (((")
	assert.Error(t, err)
}

func TestExecNowSurvivesScriptException(t *testing.T) {
	h, _ := newTestHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := h.ExecNow(ctx, `null.nonexistentProp`)
	assert.Error(t, err)

	// The worker must still answer the next event after a failing one.
	result, err := h.ExecNow(ctx, "40 + 2")
	require.NoError(t, err)
	assert.Equal(t, "42", result)
}

func TestExecByNameResolvesScriptCatalog(t *testing.T) {
	h, sql := newTestHost(t)
	sql.scripts["greet"] = `host.kvSetString("greeted", "yes")`

	require.NoError(t, h.ExecByName("greet"))

	// Exec is asynchronous; poll briefly for the write to land.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 50; i++ {
		result, err := h.ExecNow(ctx, `host.kvGetValue("greeted")`)
		if err == nil && result == "yes" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("exec-by-name script never applied its write")
}

func TestExecByNameUnknownScript(t *testing.T) {
	h, _ := newTestHost(t)
	err := h.ExecByName("does-not-exist")
	assert.Error(t, err)
}

func TestHostRestartClearsGlobalState(t *testing.T) {
	h, _ := newTestHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := h.ExecNow(ctx, `globalThis.counter = 41; "set"`)
	require.NoError(t, err)

	h.Restart()

	result, err := h.ExecNow(ctx, `typeof globalThis.counter === "undefined" ? "cleared" : "leaked"`)
	require.NoError(t, err)
	assert.Equal(t, "cleared", result)
}
