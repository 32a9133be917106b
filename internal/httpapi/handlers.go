package httpapi

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/nodalkv/nodal/internal/kv"
	"github.com/nodalkv/nodal/internal/kverrors"
	"github.com/nodalkv/nodal/internal/script"
	"github.com/nodalkv/nodal/internal/writequeue"
)

type handlers struct {
	store     *kv.Store
	queue     *writequeue.Queue
	host      *script.Host
	startedAt time.Time
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, kverrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, kverrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, kverrors.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// get implements POST /get: {token,key} -> data rendered per kind.
func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	obj, err := h.store.Get(r.Context(), req.Key)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"key":  obj.Desc.Key,
		"kind": obj.Desc.Kind.String(),
		"data": renderData(obj),
	})
}

// renderData presents stored bytes the way a JSON caller expects to
// read them back: numbers and booleans decoded to their native JSON
// type, everything else as raw text.
func renderData(obj kv.Object) any {
	switch obj.Desc.Kind {
	case kv.KindNumber:
		return kv.DecodeNumber(obj.Data)
	case kv.KindBoolean:
		return kv.DecodeBoolean(obj.Data)
	default:
		return string(obj.Data)
	}
}

// set implements POST /set: {token,key,kind,data} -> ok; full
// validation. The write is submitted to the single-writer queue rather
// than the store directly.
func (h *handlers) set(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key  string `json:"key"`
		Kind string `json:"kind"`
		Data string `json:"data"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	kind, ok := kv.ParseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "unrecognized kind")
		return
	}

	if err := h.queue.Set(r.Context(), req.Key, kind, []byte(req.Data)); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// delete implements POST /delete: {token,key} -> ok or NotFound.
func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.queue.Delete(r.Context(), req.Key); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// list implements POST /list: {token} -> list of {key,kind,size}, by
// data offset.
func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	elements, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, renderList(elements))
}

// listType implements POST /listType: {token,kind} -> same, filtered.
func (h *handlers) listType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	kind, ok := kv.ParseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "unrecognized kind")
		return
	}

	elements, err := h.store.ListByKind(r.Context(), kind)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, renderList(elements))
}

func renderList(elements []kv.ListElement) []map[string]any {
	out := make([]map[string]any, len(elements))
	for i, e := range elements {
		out[i] = map[string]any{
			"key":  e.Key,
			"kind": e.Kind.String(),
			"size": e.DataSize,
		}
	}
	return out
}

// exec implements POST /exec: {token,key} -> enqueue script-code Event
// keyed by the script catalog; no sync result.
func (h *handlers) exec(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.host.ExecByName(req.Key); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// execNow implements POST /execNow: {token,code} -> enqueue; await
// reply <=5s; reply or empty.
func (h *handlers) execNow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 6*time.Second)
	defer cancel()

	result, err := h.host.ExecNow(ctx, req.Code)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

// health is an ungated liveness/readiness endpoint, adapted from
// api/health_handler.go's Health handler: that handler counts entities
// and users and stats three separate database files; this store has
// one data log, one descriptor log, and one sqlite file, so the checks
// collapse to the KV store's own Stats() plus goroutine/memory figures.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	status := "healthy"
	checks := map[string]string{"store": "healthy"}
	if err != nil {
		status = "unhealthy"
		checks["store"] = "unhealthy: " + err.Error()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status": status,
		"uptime": time.Since(h.startedAt).String(),
		"checks": checks,
		"store":  stats,
		"queue":  h.queue.Stats(),
		"memory": map[string]uint64{
			"alloc_bytes": mem.Alloc,
			"sys_bytes":   mem.Sys,
		},
		"goroutines": runtime.NumGoroutine(),
	})
}
