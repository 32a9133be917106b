package kv

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nodalkv/nodal/internal/kverrors"
)

// dataMagic is the 4-byte big-endian framing magic written before every
// data record. It is verified on every read, resolving the distilled
// spec's open question (§9): "the data framing magic is written but
// never verified on read" — here it always is, and a mismatch surfaces
// kverrors.ErrCorruptLog instead of silently returning the wrong bytes.
const dataMagic uint32 = 0xDEADBEEF

const dataHeaderSize = 8 // 4 bytes magic + 4 bytes length, both big-endian

// DataLog is the append-only file of framed value payloads
// ("main.Data.bindb"). Every operation holds the file's exclusive
// mutex for the duration of a single append or read — grounded on
// storage/binary/locks.go's one-mutex-per-resource discipline, trimmed
// down from that file's sharded-lock machinery since this store has
// exactly one data log to protect, not a pool of shards.
type DataLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenDataLog opens (creating if absent) the data log in
// append+read/write mode. Opening with O_APPEND means AppendData can
// never be made to overwrite existing bytes by a racing seek elsewhere
// in the process.
func OpenDataLog(path string) (*DataLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open data log: %v", kverrors.ErrIO, err)
	}
	return &DataLog{file: f}, nil
}

// AppendData writes {magic, length, bytes} to the end of the file and
// returns the offset where the framing header starts.
func (d *DataLog) AppendData(payload []byte) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset, err := d.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("%w: seek data log: %v", kverrors.ErrIO, err)
	}

	header := make([]byte, dataHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], dataMagic)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))

	if _, err := d.file.Write(header); err != nil {
		return 0, fmt.Errorf("%w: write data header: %v", kverrors.ErrIO, err)
	}
	if _, err := d.file.Write(payload); err != nil {
		return 0, fmt.Errorf("%w: write data payload: %v", kverrors.ErrIO, err)
	}
	return offset, nil
}

// ReadData seeks to offset, skips the 8-byte framing header, verifies
// its magic, and reads exactly size bytes.
func (d *DataLog) ReadData(offset int64, size uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	header := make([]byte, dataHeaderSize)
	if _, err := d.file.ReadAt(header, offset); err != nil {
		return nil, fmt.Errorf("%w: read data header at %d: %v", kverrors.ErrIO, offset, err)
	}

	magic := binary.BigEndian.Uint32(header[0:4])
	if magic != dataMagic {
		return nil, fmt.Errorf("%w: bad magic %#x at offset %d", kverrors.ErrCorruptLog, magic, offset)
	}
	length := binary.BigEndian.Uint32(header[4:8])
	if length != size {
		return nil, fmt.Errorf("%w: framed length %d does not match expected size %d at offset %d", kverrors.ErrCorruptLog, length, size, offset)
	}

	buf := make([]byte, size)
	if _, err := d.file.ReadAt(buf, offset+dataHeaderSize); err != nil {
		return nil, fmt.Errorf("%w: read data payload at %d: %v", kverrors.ErrIO, offset, err)
	}
	return buf, nil
}

// Flush syncs the data log to stable storage.
func (d *DataLog) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync data log: %v", kverrors.ErrIO, err)
	}
	return nil
}

// Size returns the current length of the data log.
func (d *DataLog) Size() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fi, err := d.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat data log: %v", kverrors.ErrIO, err)
	}
	return fi.Size(), nil
}

func (d *DataLog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("%w: close data log: %v", kverrors.ErrIO, err)
	}
	return nil
}

// DescLog is the fixed-record file of object metadata ("main.Desc.bindb").
// Unlike DataLog it is opened WITHOUT O_APPEND, since PatchAt needs an
// explicit seek-then-write to rewrite an existing record in place —
// descriptor writes use explicit seeks for in-place patching and
// therefore the descriptor file is opened without the append
// constraint, per the distilled spec's lifecycle contract (§4.7).
type DescLog struct {
	mu   sync.Mutex
	file *os.File
}

func OpenDescLog(path string) (*DescLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open descriptor log: %v", kverrors.ErrIO, err)
	}
	return &DescLog{file: f}, nil
}

// AppendDesc writes record verbatim to the end of the file after
// patching its last 8 bytes (the self-pointer placeholder) with the
// offset it is about to occupy, and returns that offset.
func (l *DescLog) AppendDesc(record []byte) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	offset, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("%w: seek descriptor log: %v", kverrors.ErrIO, err)
	}

	binary.LittleEndian.PutUint64(record[offDescOffset:], uint64(offset))

	if _, err := l.file.WriteAt(record, offset); err != nil {
		return 0, fmt.Errorf("%w: write descriptor record: %v", kverrors.ErrIO, err)
	}
	return offset, nil
}

// PatchAt overwrites exactly len(record) bytes at offset — used to
// rewrite a descriptor in place on overwrite or soft delete.
func (l *DescLog) PatchAt(offset int64, record []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.WriteAt(record, offset); err != nil {
		return fmt.Errorf("%w: patch descriptor record at %d: %v", kverrors.ErrIO, offset, err)
	}
	return nil
}

// ReadAll reads every fixed RecordSize-byte slice sequentially from the
// start of the file until EOF, calling fn with each slice's starting
// offset and bytes. fn's returned error aborts the scan.
func (l *DescLog) ReadAll(fn func(offset int64, buf []byte) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek descriptor log: %v", kverrors.ErrIO, err)
	}

	buf := make([]byte, RecordSize)
	offset := int64(0)
	for {
		_, err := io.ReadFull(l.file, buf)
		if err == io.EOF {
			return nil
		}
		if err == io.ErrUnexpectedEOF {
			// Truncated trailing record: the previous writer was
			// interrupted mid-append. Stop scanning; everything
			// before this point is intact.
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read descriptor record at %d: %v", kverrors.ErrIO, offset, err)
		}
		if err := fn(offset, buf); err != nil {
			return err
		}
		offset += RecordSize
	}
}

func (l *DescLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync descriptor log: %v", kverrors.ErrIO, err)
	}
	return nil
}

func (l *DescLog) Size() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fi, err := l.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat descriptor log: %v", kverrors.ErrIO, err)
	}
	return fi.Size(), nil
}

func (l *DescLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("%w: close descriptor log: %v", kverrors.ErrIO, err)
	}
	return nil
}
