// Package httpapi is the HTTP transport (C8): a gorilla/mux router,
// bearer-token auth middleware, and the seven JSON endpoints wired to
// the KV core, write queue, and script host.
package httpapi

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/nodalkv/nodal/internal/respool"
)

// writeJSON encodes payload through a pooled encoder+buffer pair,
// adapted from api/response_helpers.go's RespondJSON — same
// pool-checkout-then-write shape, goccy/go-json instead of
// encoding/json since every other JSON touchpoint in this store
// (kv.canonicalizeJSON, the status snapshot writer) already goes
// through it.
func writeJSON(w http.ResponseWriter, code int, payload any) {
	enc := respool.Get()
	defer respool.Put(enc)

	if err := enc.Encode(payload); err != nil {
		fallback, _ := json.Marshal(payload)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		w.Write(fallback)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(enc.Buffer.Bytes())
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
