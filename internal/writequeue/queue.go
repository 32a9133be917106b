// Package writequeue serializes every mutating KV operation through a
// single consumer goroutine, grounded on storage/binary/single_writer_queue.go's
// one-writer-at-a-time discipline: concurrent appends to the same data
// and descriptor logs would otherwise risk torn writes and a descriptor
// patched out of step with its data record.
package writequeue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nodalkv/nodal/internal/kv"
	"github.com/nodalkv/nodal/internal/logger"
)

// OpType identifies the mutation a queued Operation performs.
type OpType int

const (
	OpSet OpType = iota
	OpDelete
)

func (t OpType) String() string {
	switch t {
	case OpSet:
		return "SET"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Operation is a single queued mutation, carrying its own completion
// channel so the submitter can block for the result without the queue
// needing to know anything about its caller.
type Operation struct {
	ID   string
	Type OpType
	Key  string
	Kind kv.Kind
	Data []byte
	Done chan error
	ctx  context.Context
}

// Queue is the single-writer serialization point in front of a
// *kv.Store. All Set/Delete calls on the store must go through a Queue
// rather than calling the store directly, so that the single consumer
// goroutine is the only goroutine ever appending to the logs.
type Queue struct {
	store *kv.Store

	ch        chan *Operation
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   int32
	depth     int64
	processed int64
	errors    int64

	timeout time.Duration
}

// New builds a Queue of the given channel capacity, bound to store.
func New(store *kv.Store, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Queue{
		store:   store,
		ch:      make(chan *Operation, capacity),
		stopCh:  make(chan struct{}),
		timeout: 30 * time.Second,
	}
}

// Start launches the consumer goroutine. Calling Start twice returns an
// error.
func (q *Queue) Start() error {
	if !atomic.CompareAndSwapInt32(&q.running, 0, 1) {
		return fmt.Errorf("write queue already running")
	}
	q.wg.Add(1)
	go q.run()
	logger.Info("writequeue: started (capacity %d)", cap(q.ch))
	return nil
}

// Stop signals the consumer to drain and exit, waiting up to the
// queue's configured timeout.
func (q *Queue) Stop() error {
	if !atomic.CompareAndSwapInt32(&q.running, 1, 0) {
		return fmt.Errorf("write queue not running")
	}
	close(q.stopCh)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("writequeue: stopped gracefully")
		return nil
	case <-time.After(q.timeout):
		logger.Warn("writequeue: stop timeout, forcing shutdown")
		return fmt.Errorf("write queue shutdown timeout")
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	logger.Debug("writequeue: consumer goroutine started")

	for {
		select {
		case op := <-q.ch:
			if op == nil {
				continue
			}
			atomic.AddInt64(&q.depth, -1)
			err := q.execute(op)
			select {
			case op.Done <- err:
			case <-time.After(100 * time.Millisecond):
				logger.Warn("writequeue: failed to deliver result for %s %q, client gone", op.Type, op.Key)
			}
			atomic.AddInt64(&q.processed, 1)
			if err != nil {
				atomic.AddInt64(&q.errors, 1)
			}

		case <-q.stopCh:
			remaining := len(q.ch)
			if remaining > 0 {
				logger.Info("writequeue: draining %d queued operations before shutdown", remaining)
				for i := 0; i < remaining; i++ {
					op := <-q.ch
					if op != nil {
						atomic.AddInt64(&q.depth, -1)
						op.Done <- q.execute(op)
					}
				}
			}
			return
		}
	}
}

func (q *Queue) execute(op *Operation) error {
	start := time.Now()
	logger.Trace("writequeue: processing %s %q [%s]", op.Type, op.Key, op.ID)

	ctx, cancel := context.WithTimeout(op.ctx, q.timeout)
	defer cancel()

	var err error
	switch op.Type {
	case OpSet:
		err = q.store.Set(ctx, op.Key, op.Kind, op.Data)
	case OpDelete:
		err = q.store.Delete(ctx, op.Key)
	default:
		err = fmt.Errorf("writequeue: unknown operation type %v", op.Type)
	}

	duration := time.Since(start)
	if err != nil {
		logger.Error("writequeue: %s %q failed after %v: %v", op.Type, op.Key, duration, err)
	} else {
		logger.Trace("writequeue: %s %q completed in %v", op.Type, op.Key, duration)
	}
	return err
}

// enqueue submits op and blocks for the consumer's result, honoring the
// caller's context deadline around BOTH the enqueue attempt and the
// wait for completion.
func (q *Queue) enqueue(ctx context.Context, op *Operation) error {
	if atomic.LoadInt32(&q.running) == 0 {
		return fmt.Errorf("write queue not running")
	}
	op.ID = uuid.NewString()
	op.Done = make(chan error, 1)
	op.ctx = ctx

	select {
	case q.ch <- op:
		atomic.AddInt64(&q.depth, 1)
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		return fmt.Errorf("write queue full (%d operations)", atomic.LoadInt64(&q.depth))
	}

	select {
	case err := <-op.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(q.timeout):
		return fmt.Errorf("%s %q timed out waiting for write queue", op.Type, op.Key)
	}
}

// Set queues a Set mutation and blocks until it completes.
func (q *Queue) Set(ctx context.Context, key string, kind kv.Kind, data []byte) error {
	return q.enqueue(ctx, &Operation{Type: OpSet, Key: key, Kind: kind, Data: data})
}

// Delete queues a Delete mutation and blocks until it completes.
func (q *Queue) Delete(ctx context.Context, key string) error {
	return q.enqueue(ctx, &Operation{Type: OpDelete, Key: key})
}

// Stats reports queue depth and throughput counters for the status
// snapshot and admin endpoints.
type Stats struct {
	Depth     int64
	Processed int64
	Errors    int64
	Capacity  int
	Running   bool
}

func (q *Queue) Stats() Stats {
	return Stats{
		Depth:     atomic.LoadInt64(&q.depth),
		Processed: atomic.LoadInt64(&q.processed),
		Errors:    atomic.LoadInt64(&q.errors),
		Capacity:  cap(q.ch),
		Running:   atomic.LoadInt32(&q.running) == 1,
	}
}
