// Package status writes a periodic, atomically-replaced JSON snapshot
// of store/queue health to disk for external monitors to poll without
// going through the HTTP API, using github.com/natefinch/atomic the
// same way internal/ticket/cache.go's Save writes its binary cache:
// temp-file-then-rename so a reader never observes a half-written file.
package status

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/natefinch/atomic"

	"github.com/nodalkv/nodal/internal/kv"
	"github.com/nodalkv/nodal/internal/kverrors"
	"github.com/nodalkv/nodal/internal/logger"
	"github.com/nodalkv/nodal/internal/writequeue"
)

// Snapshot is the on-disk shape written to the status file.
type Snapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Store     kv.Stats         `json:"store"`
	Queue     writequeue.Stats `json:"queue"`
}

// Write renders a single snapshot and atomically replaces path's
// contents with it.
func Write(path string, store *kv.Store, queue *writequeue.Queue) error {
	storeStats, err := store.Stats()
	if err != nil {
		return fmt.Errorf("%w: gather store stats: %v", kverrors.ErrIO, err)
	}

	snap := Snapshot{
		Timestamp: time.Now(),
		Store:     storeStats,
		Queue:     queue.Stats(),
	}

	buf, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal status snapshot: %v", kverrors.ErrIO, err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("%w: write status snapshot: %v", kverrors.ErrIO, err)
	}
	return nil
}

// Run periodically writes a snapshot until stop is closed, logging (but
// not aborting on) write failures — a missed snapshot is not fatal to
// the server, just to that one monitoring cycle.
func Run(path string, store *kv.Store, queue *writequeue.Queue, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := Write(path, store, queue); err != nil {
				logger.Warn("status: snapshot write failed: %v", err)
			}
		case <-stop:
			return
		}
	}
}
