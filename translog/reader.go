package translog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Reader sequentially replays records from a log File starting at a
// given offset, typically the tail offset recorded in the main index
// header from the last successful sync.
type Reader struct {
	f   *File
	off int64
}

// NewReader returns a Reader positioned at startOffset (normally
// FileHeaderSize for a full replay, or a previously recorded tail
// offset for an incremental one).
func NewReader(f *File, startOffset int64) *Reader {
	return &Reader{f: f, off: startOffset}
}

// Offset returns the reader's current position, suitable for storing as
// the new log_file_tail_offset once the caller has consumed everything
// it returned.
func (r *Reader) Offset() int64 {
	return r.off
}

// Next returns the next committed record, or io.EOF once the reader
// reaches an uncommitted record or true end of file. Both are treated
// identically by callers: replay stops, the record is not consumed, and
// Offset() still points at it (so the next writer append resumes from
// exactly where replay stopped).
func (r *Reader) Next() (Record, error) {
	sizeBuf := make([]byte, 4)

	if _, err := r.f.file.Seek(r.off, io.SeekStart); err != nil {
		return Record{}, fmt.Errorf("translog: seek: %w", err)
	}

	n, err := io.ReadFull(r.f.file, sizeBuf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, io.EOF
		}

		return Record{}, fmt.Errorf("translog: read size: %w", err)
	}
	if n < 4 {
		return Record{}, io.EOF
	}

	rawSize := binary.LittleEndian.Uint32(sizeBuf)

	if IsUncommitted(rawSize) {
		return Record{}, io.EOF
	}

	size, ok := DecodeSize(rawSize)
	if !ok {
		return Record{}, fmt.Errorf("translog: at offset %d: %w", r.off, ErrRecordCorrupt)
	}

	rest := make([]byte, int(size)+recordTrailerSize)
	if _, err := io.ReadFull(r.f.file, rest); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// Size was committed but the body is truncated: the file was
			// cut off after the size patch but before a later fsync landed
			// (or before rotation finished copying). Treat like uncommitted.
			return Record{}, io.EOF
		}

		return Record{}, fmt.Errorf("translog: read body: %w", err)
	}

	full := append(sizeBuf, rest...)

	rec, err := decodeFrame(full)
	if err != nil {
		return Record{}, fmt.Errorf("translog: at offset %d: %w", r.off, err)
	}

	r.off += int64(len(full))

	return rec, nil
}
