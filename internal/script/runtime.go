// Package script hosts a single cooperative JavaScript worker (C6): one
// goroutine owns one goja.Runtime for its entire lifetime, since goja
// values are not safe to share across goroutines. All interaction with
// the runtime — running code, reading/writing the KV core, touching the
// SQL boundary — happens on that one goroutine via an event queue and a
// reply registry, mirroring storage/binary/single_writer_queue.go's
// single-consumer discipline (§4.5) for the symmetrical reason: there is
// exactly one thing allowed to mutate shared state at a time.
package script

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/nodalkv/nodal/internal/kv"
	"github.com/nodalkv/nodal/internal/kverrors"
	"github.com/nodalkv/nodal/internal/logger"
	"github.com/nodalkv/nodal/internal/writequeue"
)

// execTimeout bounds how long ExecNow waits for a reply before
// abandoning the wait. The running script itself is never interrupted —
// only the caller stops listening (§4.6).
const execTimeout = 5 * time.Second

// SQLBoundary is the subset of the C9 SQL boundary the script host
// needs. Defined here, consumer-side, so sqlstore has no dependency on
// this package.
type SQLBoundary interface {
	Query(query string, args ...any) ([]map[string]any, error)
	Exec(query string, args ...any) (rowsAffected int64, err error)
	ScriptCatalog() ScriptCatalog
}

// ScriptCatalog resolves a stored script's name to its source and back.
type ScriptCatalog interface {
	Get(name string) (string, error)
	Put(name, code string) error
}

// controlType is a supervisor signal delivered alongside the event
// channel: Stop/Resume/Restart/Shutdown (§4.6).
type controlType int

const (
	ctrlStop controlType = iota
	ctrlResume
	ctrlRestart
	ctrlShutdown
)

// Host owns the script runtime worker and everything it is allowed to
// touch: the KV write queue, the KV store for reads, the SQL boundary,
// and an outbound HTTP client for host.httpGet/Post/Put/Delete.
type Host struct {
	store *kv.Store
	queue *writequeue.Queue
	sql   SQLBoundary
	http  *http.Client

	events   chan *Event
	control  chan controlType
	registry *registry

	nextID  uint64
	paused  int32
	running int32
	done    chan struct{}
}

// New builds a Host bound to store/queue/sql. Start must be called
// before any event is dispatched.
func New(store *kv.Store, queue *writequeue.Queue, sql SQLBoundary) *Host {
	return &Host{
		store:    store,
		queue:    queue,
		sql:      sql,
		http:     &http.Client{Timeout: 10 * time.Second},
		events:   make(chan *Event, 256),
		control:  make(chan controlType, 4),
		registry: newRegistry(),
		done:     make(chan struct{}),
	}
}

// Start launches the single worker goroutine.
func (h *Host) Start() error {
	if !atomic.CompareAndSwapInt32(&h.running, 0, 1) {
		return fmt.Errorf("script host already running")
	}
	go h.run()
	logger.Info("script: runtime worker started")
	return nil
}

// Stop pauses event consumption until Resume is called.
func (h *Host) Stop() { h.control <- ctrlStop }

// Resume undoes a prior Stop.
func (h *Host) Resume() { h.control <- ctrlResume }

// Restart recycles the isolate: a fresh goja.Runtime is constructed and
// host bindings re-registered, discarding any state the previous script
// run left in the global scope.
func (h *Host) Restart() { h.control <- ctrlRestart }

// Shutdown drains in-flight events and stops the worker goroutine,
// blocking until it exits.
func (h *Host) Shutdown() {
	if !atomic.CompareAndSwapInt32(&h.running, 1, 0) {
		return
	}
	h.control <- ctrlShutdown
	<-h.done
	logger.Info("script: runtime worker stopped")
}

// Exec enqueues code for asynchronous execution and returns immediately
// without waiting for a result — the distilled spec's "enqueue
// script-code Event; no sync result" path behind POST /exec.
func (h *Host) Exec(code string) {
	id := atomic.AddUint64(&h.nextID, 1)
	h.events <- &Event{ID: id, Type: EventCode, Code: code}
}

// ExecByName resolves name through the script catalog and enqueues it,
// the /exec flow when the caller submits a stored script's key rather
// than inline source (§3.1).
func (h *Host) ExecByName(name string) error {
	code, err := h.sql.ScriptCatalog().Get(name)
	if err != nil {
		return fmt.Errorf("%w: resolve script %q: %v", kverrors.ErrScript, name, err)
	}
	h.Exec(code)
	return nil
}

// ExecNow runs code synchronously from the caller's point of view:
// it enqueues the event, registers a one-shot waiter, and waits up to
// execTimeout for a reply. On timeout the wait is abandoned — the
// running script is NOT interrupted and keeps executing to completion
// in the background; its eventual reply lands on a registry entry
// nobody is listening to any more and is dropped.
func (h *Host) ExecNow(ctx context.Context, code string) (string, error) {
	id := atomic.AddUint64(&h.nextID, 1)
	waiter := h.registry.wait(id)

	select {
	case h.events <- &Event{ID: id, Type: EventCode, Code: code}:
	case <-ctx.Done():
		h.registry.forget(id)
		return "", ctx.Err()
	}

	select {
	case v := <-waiter:
		switch r := v.(type) {
		case errorReply:
			return "", r.err
		case string:
			return r, nil
		default:
			return fmt.Sprintf("%v", r), nil
		}
	case <-time.After(execTimeout):
		h.registry.forget(id)
		return "", nil
	case <-ctx.Done():
		h.registry.forget(id)
		return "", ctx.Err()
	}
}

func (h *Host) run() {
	defer close(h.done)
	logger.Debug("script: worker loop starting")

	vm := goja.New()
	h.bind(vm)

	paused := false
	for {
		if paused {
			select {
			case c := <-h.control:
				if !h.handleControl(c, &paused, &vm) {
					return
				}
			}
			continue
		}

		select {
		case ev := <-h.events:
			h.handleEvent(vm, ev)
		case c := <-h.control:
			if !h.handleControl(c, &paused, &vm) {
				return
			}
		}
	}
}

// handleControl applies a supervisor signal and reports whether the
// worker should keep running (false means Shutdown was received).
func (h *Host) handleControl(c controlType, paused *bool, vm **goja.Runtime) bool {
	switch c {
	case ctrlStop:
		logger.Info("script: worker paused")
		*paused = true
	case ctrlResume:
		logger.Info("script: worker resumed")
		*paused = false
	case ctrlRestart:
		logger.Info("script: recycling isolate")
		*vm = goja.New()
		h.bind(*vm)
	case ctrlShutdown:
		logger.Info("script: worker draining for shutdown")
		h.drain()
		return false
	}
	return true
}

// drain answers every still-queued event with an error reply so no
// caller of ExecNow blocks forever past Shutdown.
func (h *Host) drain() {
	for {
		select {
		case ev := <-h.events:
			h.registry.deliver(ev.ID, newErrorReply("script host shutting down"))
		default:
			return
		}
	}
}

func (h *Host) handleEvent(vm *goja.Runtime, ev *Event) {
	result, err := h.runScript(vm, ev.Code)
	if err != nil {
		logger.Error("script: event %d failed: %v", ev.ID, err)
		h.registry.deliver(ev.ID, newErrorReply("%v", err))
		return
	}
	h.registry.deliver(ev.ID, result)
}

// runScript evaluates code on the worker's own goroutine and recovers
// from a goja panic (a malformed program can panic the VM rather than
// return a JS exception) so one bad script never takes the worker down —
// the supervisor logs and continues to the next queued event instead
// (§4.6), the isolate is only recreated on an explicit Restart signal.
func (h *Host) runScript(vm *goja.Runtime, code string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: script panic: %v", kverrors.ErrScript, r)
		}
	}()

	v, err := vm.RunString(code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", kverrors.ErrScript, err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}
