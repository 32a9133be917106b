package script

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/dop251/goja"

	"github.com/nodalkv/nodal/internal/kv"
)

// bind registers every host-callable operation under a global `host`
// object. Each binding is a thin, synchronous wrapper: goja.Runtime
// calls are only ever made from the worker goroutine, so these
// functions may call directly into the KV store, the write queue, and
// the SQL boundary without any additional locking of their own.
func (h *Host) bind(vm *goja.Runtime) {
	host := vm.NewObject()

	must := func(name string, fn func(goja.FunctionCall) goja.Value) {
		if err := host.Set(name, fn); err != nil {
			panic(err)
		}
	}

	must("kvGetValue", h.opKVGetValue(vm))
	must("kvGetKind", h.opKVGetKind(vm))
	must("kvSetString", h.opKVSet(vm, kv.KindString))
	must("kvSetNumber", h.opKVSet(vm, kv.KindNumber))
	must("kvSetBoolean", h.opKVSet(vm, kv.KindBoolean))
	must("kvSetJson", h.opKVSet(vm, kv.KindJson))
	must("kvSetBlob", h.opKVSet(vm, kv.KindBlob))
	must("kvSetObject", h.opKVSet(vm, kv.KindObject))

	must("sqlQuery", h.opSQLQuery(vm))
	must("sqlExec", h.opSQLExec(vm))

	must("httpGet", h.opHTTP(vm, http.MethodGet))
	must("httpPost", h.opHTTP(vm, http.MethodPost))
	must("httpPut", h.opHTTP(vm, http.MethodPut))
	must("httpDelete", h.opHTTP(vm, http.MethodDelete))

	must("eventReturn", h.opEventReturn(vm))

	if err := vm.Set("host", host); err != nil {
		panic(err)
	}
}

func argString(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}

// opKVGetValue implements host.kvGetValue(key): returns the stored
// value rendered per its kind, or undefined if absent.
func (h *Host) opKVGetValue(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		key := argString(call, 0)
		obj, err := h.store.Get(context.Background(), key)
		if err != nil {
			return goja.Undefined()
		}
		return renderValue(vm, obj)
	}
}

// opKVGetKind implements host.kvGetKind(key): returns the kind's string
// name, or undefined if absent — distinguishing "no such key" from
// "kind=string, empty value".
func (h *Host) opKVGetKind(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		key := argString(call, 0)
		obj, err := h.store.Get(context.Background(), key)
		if err != nil {
			return goja.Undefined()
		}
		return vm.ToValue(obj.Desc.Kind.String())
	}
}

// opKVSet builds host.kvSet<Kind>(key, value): the write goes through
// the write queue, not straight to the store, so a script's mutation is
// still serialized against concurrent HTTP-originated writes the same
// way every other writer is.
func (h *Host) opKVSet(vm *goja.Runtime, kind kv.Kind) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		key := argString(call, 0)
		value := argString(call, 1)
		if err := h.queue.Set(context.Background(), key, kind, []byte(value)); err != nil {
			return vm.ToValue(err.Error())
		}
		return goja.Undefined()
	}
}

// opSQLQuery implements host.sqlQuery(query, ...args).
func (h *Host) opSQLQuery(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		query := call.Arguments[0].String()
		args := jsArgsToAny(call.Arguments[1:])
		rows, err := h.sql.Query(query, args...)
		if err != nil {
			return vm.ToValue(err.Error())
		}
		return vm.ToValue(rows)
	}
}

// opSQLExec implements host.sqlExec(query, ...args).
func (h *Host) opSQLExec(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		query := call.Arguments[0].String()
		args := jsArgsToAny(call.Arguments[1:])
		affected, err := h.sql.Exec(query, args...)
		if err != nil {
			return vm.ToValue(err.Error())
		}
		return vm.ToValue(affected)
	}
}

// opHTTP builds host.http<Method>(url, body): a blocking HTTP round
// trip made from the worker goroutine itself — scripts are cooperative
// and single-threaded by design (§4.6), so a slow outbound call stalls
// the whole worker until it returns, same as any other op.
func (h *Host) opHTTP(vm *goja.Runtime, method string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		url := argString(call, 0)
		var body io.Reader
		if method == http.MethodPost || method == http.MethodPut {
			body = strings.NewReader(argString(call, 1))
		}
		req, err := http.NewRequest(method, url, body)
		if err != nil {
			return vm.ToValue(err.Error())
		}
		resp, err := h.http.Do(req)
		if err != nil {
			return vm.ToValue(err.Error())
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return vm.ToValue(err.Error())
		}
		return vm.ToValue(string(b))
	}
}

// opEventReturn implements host.eventReturn(id, value): delivers value
// to the registry waiter for id, if any is still listening.
func (h *Host) opEventReturn(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			return goja.Undefined()
		}
		id := uint64(call.Arguments[0].ToInteger())
		h.registry.deliver(id, call.Arguments[1].String())
		return goja.Undefined()
	}
}

// renderValue converts a stored Object to a goja.Value appropriate for
// its kind — numbers and booleans decode back out of their canonical
// byte encoding, everything else is returned as a string.
func renderValue(vm *goja.Runtime, obj kv.Object) goja.Value {
	switch obj.Desc.Kind {
	case kv.KindNumber:
		return vm.ToValue(kv.DecodeNumber(obj.Data))
	case kv.KindBoolean:
		return vm.ToValue(kv.DecodeBoolean(obj.Data))
	default:
		return vm.ToValue(string(obj.Data))
	}
}

func jsArgsToAny(vals []goja.Value) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v.Export()
	}
	return out
}
