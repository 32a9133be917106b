package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/nodalkv/nodal/internal/kv"
	"github.com/nodalkv/nodal/internal/script"
	"github.com/nodalkv/nodal/internal/sqlstore"
	"github.com/nodalkv/nodal/internal/writequeue"
)

const testToken = "test-token"

// testSQLAdapter narrows *sqlstore.Boundary to script.SQLBoundary, the
// same narrowing main.go does to wire the two packages together without
// either importing the other.
type testSQLAdapter struct{ b *sqlstore.Boundary }

func (a testSQLAdapter) Query(query string, args ...any) ([]map[string]any, error) {
	return a.b.Query(query, args...)
}

func (a testSQLAdapter) Exec(query string, args ...any) (int64, error) {
	return a.b.Exec(query, args...)
}

func (a testSQLAdapter) ScriptCatalog() script.ScriptCatalog {
	return a.b.ScriptCatalog()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue := writequeue.New(store, 16)
	require.NoError(t, queue.Start())
	t.Cleanup(func() { queue.Stop() })

	sql, err := sqlstore.Open(t.TempDir() + "/store.sql")
	require.NoError(t, err)
	t.Cleanup(func() { sql.Close() })

	host := script.New(store, queue, testSQLAdapter{sql})
	require.NoError(t, host.Start())
	t.Cleanup(host.Shutdown)

	digest := blake2b.Sum256([]byte(testToken))
	return NewServer(store, queue, host, digest)
}

func postJSON(t *testing.T, h http.Handler, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := postJSON(t, h, "/set", map[string]any{"token": testToken, "key": "k", "kind": "string", "data": "v"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h, "/get", map[string]any{"token": testToken, "key": "k"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "v", resp["data"])
	assert.Equal(t, "string", resp["kind"])
}

func TestGetMissingKeyReturns404(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Handler(), "/get", map[string]any{"token": testToken, "key": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestWithoutTokenIsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Handler(), "/get", map[string]any{"key": "k"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestWithWrongTokenIsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Handler(), "/get", map[string]any{"token": "wrong", "key": "k"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetRejectsUnknownKind(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Handler(), "/set", map[string]any{"token": testToken, "key": "k", "kind": "frobnicate", "data": "v"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndListType(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	postJSON(t, h, "/set", map[string]any{"token": testToken, "key": "n", "kind": "number", "data": "1"})
	postJSON(t, h, "/set", map[string]any{"token": testToken, "key": "s", "kind": "string", "data": "x"})

	rec := postJSON(t, h, "/list", map[string]any{"token": testToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = postJSON(t, h, "/listType", map[string]any{"token": testToken, "kind": "number"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
	assert.Equal(t, "n", list[0]["key"])
}

func TestDeleteThenGetNotFound(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	postJSON(t, h, "/set", map[string]any{"token": testToken, "key": "k", "kind": "string", "data": "v"})
	rec := postJSON(t, h, "/delete", map[string]any{"token": testToken, "key": "k"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h, "/get", map[string]any{"token": testToken, "key": "k"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecNowEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Handler(), "/execNow", map[string]any{"token": testToken, "code": "21 * 2"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp["result"])
}

func TestHealthEndpointIsUngated(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
