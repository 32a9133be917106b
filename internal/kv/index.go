package kv

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/nodalkv/nodal/internal/kverrors"
	"github.com/nodalkv/nodal/internal/logger"
)

// indexEntry is what the index holds per live key: the authoritative
// descriptor plus materialized bytes, kept together so a reader can
// never observe a torn Object (mismatched desc/data pair).
type indexEntry struct {
	desc Descriptor
	data []byte
}

// Index is the in-memory key→object mapping (C3). Reads and writes
// coordinate through a single RWMutex — grounded on the teacher's
// EntityRepository index lock, trimmed from its sharded-lock pool since
// this store has no per-shard contention to amortize.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*indexEntry
	// tombstones remembers the desc_offset of the most recent tombstone
	// record for a key no longer live, so that a later set on the same
	// key can patch that record back to live in place instead of
	// appending a fresh descriptor — design note §9 policy (a): flip
	// the tombstone patch back to live on resurrection, rather than
	// leaving a superseded tombstone on disk and appending a new record.
	tombstones map[string]uint64
	// tombstonesSeen counts keys dropped by LoadDescriptors because
	// their last record was a tombstone; surfaced through Stats.
	tombstonesSeen int
}

func NewIndex() *Index {
	return &Index{
		entries:    make(map[string]*indexEntry),
		tombstones: make(map[string]uint64),
	}
}

// LoadDescriptors sequentially scans the descriptor log, grouping
// records by key in order of appearance. Overwrites patch the record in
// place, so reading sequentially from byte 0 already yields each key's
// latest logical state by the time the scan reaches EOF; the loop below
// only needs to remember the LAST decoded record per key; a final
// pass drops any key whose last record is a tombstone. Returns the
// count of live keys loaded.
func (idx *Index) LoadDescriptors(log *DescLog) (int, error) {
	latest := make(map[string]Descriptor)

	err := log.ReadAll(func(offset int64, buf []byte) error {
		desc, err := DecodeDescriptor(buf)
		if err != nil {
			logger.Warn("index: skipping corrupt descriptor record at offset %d: %v", offset, err)
			return nil
		}
		latest[desc.Key] = desc
		return nil
	})
	if err != nil {
		return 0, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	count := 0
	for key, desc := range latest {
		if desc.IsDeleted {
			idx.tombstonesSeen++
			idx.tombstones[key] = desc.DescOffset
			continue
		}
		idx.entries[key] = &indexEntry{desc: desc}
		count++
	}
	return count, nil
}

// LoadData materializes every live entry's bytes by reading its data
// record from the data log. Called once, after LoadDescriptors, during
// C7 recovery.
func (idx *Index) LoadData(log *DataLog) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for key, e := range idx.entries {
		data, err := log.ReadData(int64(e.desc.DataOffset), uint32(e.desc.DataSize))
		if err != nil {
			return fmt.Errorf("index: materialize %q: %w", key, err)
		}
		e.data = data
	}
	return nil
}

// Get returns a snapshot copy of the object for key, or false if absent
// or tombstoned.
func (idx *Index) Get(key string) (Object, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[key]
	if !ok {
		return Object{}, false
	}
	data := make([]byte, len(e.data))
	copy(data, e.data)
	return Object{Desc: e.desc, Data: data}, true
}

// Set inserts or overwrites key's entry. Any panic during mutation
// (e.g. an invariant violation surfaced as a slice/map corruption) is
// recovered and reported as kverrors.ErrPoisonedLock rather than taking
// down the process — Go mutexes do not "poison" themselves the way the
// distilled spec's source runtime does, so this guard is the idiomatic
// stand-in, grounded on recovery.go's pattern of treating any
// unexpected failure during index mutation as recoverable-and-reportable.
func (idx *Index) Set(obj Object) (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("index: panic during Set: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("%w: %v", kverrors.ErrPoisonedLock, r)
		}
	}()

	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	idx.entries[obj.Desc.Key] = &indexEntry{desc: obj.Desc, data: data}
	delete(idx.tombstones, obj.Desc.Key)
	return nil
}

// Delete removes key from the index and returns the entry as it stood
// immediately before removal, with IsDeleted set on the returned copy
// so the caller can patch the on-disk descriptor. Returns
// kverrors.ErrNotFound if the key is absent.
func (idx *Index) Delete(key string) (Descriptor, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e, ok := idx.entries[key]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", kverrors.ErrNotFound, key)
	}
	desc := e.desc
	desc.IsDeleted = true
	delete(idx.entries, key)
	idx.tombstones[key] = desc.DescOffset
	return desc, nil
}

// TombstoneOffset returns the desc_offset of key's most recent tombstone
// record, if one is known, so a resurrecting Set can patch it in place.
func (idx *Index) TombstoneOffset(key string) (uint64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	off, ok := idx.tombstones[key]
	return off, ok
}

// List returns every live object's summary, ascending by DataOffset.
func (idx *Index) List() []ListElement {
	return idx.listWhere(func(Descriptor) bool { return true })
}

// ListByKind filters List to a single kind.
func (idx *Index) ListByKind(k Kind) []ListElement {
	return idx.listWhere(func(d Descriptor) bool { return d.Kind == k })
}

func (idx *Index) listWhere(pred func(Descriptor) bool) []ListElement {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]ListElement, 0, len(idx.entries))
	for _, e := range idx.entries {
		if !pred(e.desc) {
			continue
		}
		out = append(out, ListElement{
			Key:        e.desc.Key,
			Kind:       e.desc.Kind,
			DataSize:   e.desc.DataSize,
			DataOffset: e.desc.DataOffset,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataOffset < out[j].DataOffset })
	return out
}

// Lookup returns the current descriptor for key without materializing
// data, used by the KV core to decide between patching an existing
// descriptor and appending a new one.
func (idx *Index) Lookup(key string) (Descriptor, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[key]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Len returns the number of live keys.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// TombstonesSeen returns the number of keys dropped during recovery
// because their last descriptor record was a tombstone.
func (idx *Index) TombstonesSeen() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tombstonesSeen
}
