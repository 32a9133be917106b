package kv

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nodalkv/nodal/internal/kverrors"
	"github.com/nodalkv/nodal/internal/logger"
)

// DataLogFilename and DescLogFilename are the on-disk file names under
// the configured data directory, per the distilled spec's persisted
// layout (§6).
const (
	DataLogFilename = "main.Data.bindb"
	DescLogFilename = "main.Desc.bindb"
)

// Store is the public KV core (C4): the type-aware set/get/delete/list
// contract over the data log, descriptor log, and in-memory index.
// Every public operation runs its work on a separate goroutine per
// call (runBlocking, in blocking.go) so that blocking I/O is offloaded
// from the caller.
type Store struct {
	data  *DataLog
	desc  *DescLog
	index *Index
}

// Open runs C7's init sequence: ensure the data directory exists, open
// both logs, and recover the index from the descriptor log followed by
// the data log.
func Open(dataDir string) (*Store, error) {
	dataPath := filepath.Join(dataDir, DataLogFilename)
	descPath := filepath.Join(dataDir, DescLogFilename)

	data, err := OpenDataLog(dataPath)
	if err != nil {
		return nil, err
	}
	desc, err := OpenDescLog(descPath)
	if err != nil {
		data.Close()
		return nil, err
	}

	index := NewIndex()
	loaded, err := index.LoadDescriptors(desc)
	if err != nil {
		data.Close()
		desc.Close()
		return nil, fmt.Errorf("recover descriptors: %w", err)
	}
	if err := index.LoadData(data); err != nil {
		data.Close()
		desc.Close()
		return nil, fmt.Errorf("recover data: %w", err)
	}

	logger.Info("store: recovered %d live objects (%d tombstoned)", loaded, index.TombstonesSeen())

	return &Store{data: data, desc: desc, index: index}, nil
}

// Close flushes and closes both logs.
func (s *Store) Close() error {
	var firstErr error
	if err := s.data.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.desc.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.data.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.desc.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Get returns the object stored under key, reading straight from the
// in-memory index (data is materialized at startup and kept resident
// for every live object).
func (s *Store) Get(ctx context.Context, key string) (Object, error) {
	return runBlocking(ctx, func() (Object, error) {
		obj, ok := s.index.Get(key)
		if !ok {
			return Object{}, fmt.Errorf("%w: %q", kverrors.ErrNotFound, key)
		}
		return obj, nil
	})
}

// Exists reports whether key is live, without materializing or copying
// its data.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return runBlocking(ctx, func() (bool, error) {
		_, ok := s.index.Lookup(key)
		return ok, nil
	})
}

// Set validates and canonicalizes data for kind, then performs the
// write-ordered append: (1) append the data record, (2) either patch
// the key's existing descriptor in place or append a new one, (3)
// update the in-memory index last. This ordering guarantees that if
// recovery finds a descriptor, the data it points to was durably
// appended before the descriptor was written or patched (§4.4).
func (s *Store) Set(ctx context.Context, key string, kind Kind, raw []byte) error {
	data, err := Canonicalize(key, kind, raw)
	if err != nil {
		return err
	}

	_, err = runBlocking(ctx, func() (struct{}, error) {
		return struct{}{}, s.setCanonicalized(key, kind, data)
	})
	return err
}

func (s *Store) setCanonicalized(key string, kind Kind, data []byte) error {
	dataOffset, err := s.data.AppendData(data)
	if err != nil {
		return err
	}
	dataSize := uint64(len(data))

	desc := Descriptor{
		Key:        key,
		Kind:       kind,
		DataOffset: uint64(dataOffset),
		DataSize:   dataSize,
		IsDeleted:  false,
	}

	if existing, live := s.index.Lookup(key); live {
		// Overwrite: patch the existing descriptor in place. No new
		// descriptor record is appended.
		desc.DescOffset = existing.DescOffset
		if err := s.desc.PatchAt(int64(existing.DescOffset), EncodeDescriptor(desc)); err != nil {
			return err
		}
	} else if tombOffset, tombstoned := s.index.TombstoneOffset(key); tombstoned {
		// Resurrection: flip the key's existing tombstone record back
		// to live in place, per design note §9 policy (a), instead of
		// appending a fresh descriptor and leaving the tombstone
		// superseded-but-present on disk.
		desc.DescOffset = tombOffset
		if err := s.desc.PatchAt(int64(tombOffset), EncodeDescriptor(desc)); err != nil {
			return err
		}
	} else {
		// Brand new key: append a new descriptor record. The self-pointer
		// is not yet known, so encode with the placeholder and let
		// AppendDesc patch it in once the record's real offset lands.
		desc.DescOffset = descPlaceholder
		offset, err := s.desc.AppendDesc(EncodeDescriptor(desc))
		if err != nil {
			return err
		}
		desc.DescOffset = uint64(offset)
	}

	return s.index.Set(Object{Desc: desc, Data: data})
}

// Delete soft-deletes key: patches its descriptor to is_deleted=true on
// disk and removes it from the index. Returns kverrors.ErrNotFound if
// key is absent.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := runBlocking(ctx, func() (struct{}, error) {
		return struct{}{}, s.deleteOne(key)
	})
	return err
}

func (s *Store) deleteOne(key string) error {
	desc, err := s.index.Delete(key)
	if err != nil {
		return err
	}
	return s.desc.PatchAt(int64(desc.DescOffset), EncodeDescriptor(desc))
}

// List returns every live object's summary, ascending by DataOffset.
func (s *Store) List(ctx context.Context) ([]ListElement, error) {
	return runBlocking(ctx, func() ([]ListElement, error) {
		return s.index.List(), nil
	})
}

// ListByKind filters List to a single kind.
func (s *Store) ListByKind(ctx context.Context, kind Kind) ([]ListElement, error) {
	return runBlocking(ctx, func() ([]ListElement, error) {
		return s.index.ListByKind(kind), nil
	})
}

// Stats reports operational counters for admin/status endpoints.
func (s *Store) Stats() (Stats, error) {
	dataSize, err := s.data.Size()
	if err != nil {
		return Stats{}, err
	}
	descSize, err := s.desc.Size()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		LiveObjects:    s.index.Len(),
		TombstonesSeen: s.index.TombstonesSeen(),
		DataLogBytes:   dataSize,
		DescLogBytes:   descSize,
	}, nil
}
