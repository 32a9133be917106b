package kv

import "context"

// runBlocking runs fn on its own goroutine and waits for either its
// result or ctx's cancellation, whichever comes first — the same
// goroutine-plus-result-channel shape entity_repository.go uses to farm
// blocking file I/O out from a request-serving goroutine. Store's public
// methods are not on the hot single-writer path (that serialization
// happens one level up, in the write queue); this only exists so a
// caller's context deadline is honored around a log read/write instead
// of blocking past it.
func runBlocking[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		val, err := fn()
		ch <- result{val, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.val, r.err
	}
}
