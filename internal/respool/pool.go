// Package respool pools the buffer+encoder pair used to write every
// HTTP JSON response, adapted from storage/pools/pools.go: that file
// pools half a dozen general-purpose buffer/slice/builder shapes for
// the entity API, of which this store only ever needs the JSON
// response path, so the other shapes (string/byte slice pools, large
// buffer pool, decoder pool) are dropped rather than carried unused.
package respool

import (
	"bytes"
	"sync"

	"github.com/goccy/go-json"
)

// Encoder bundles a buffer with an encoder that writes into it, so a
// single pool checkout yields both halves of a response write.
type Encoder struct {
	Buffer  *bytes.Buffer
	encoder *json.Encoder
}

func (e *Encoder) Encode(v any) error {
	return e.encoder.Encode(v)
}

var encoderPool = sync.Pool{
	New: func() any {
		buf := bytes.NewBuffer(make([]byte, 0, 4096))
		return &Encoder{Buffer: buf, encoder: json.NewEncoder(buf)}
	},
}

// Get checks out a buffer+encoder pair, reset and ready to use.
func Get() *Encoder {
	e := encoderPool.Get().(*Encoder)
	e.Buffer.Reset()
	return e
}

// Put returns e to the pool. Oversized buffers are dropped rather than
// retained, the same cutoff storage/pools/pools.go uses for its own
// buffer pool.
func Put(e *Encoder) {
	if e.Buffer.Cap() > 1024*1024 {
		return
	}
	encoderPool.Put(e)
}
