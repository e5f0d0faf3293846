package translog

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer appends records to a log File. It is not safe for concurrent
// use; callers serialize writers with internal/filelock (typically the
// exclusive lock on the log path plus ".lock" that sync.Begin takes).
type Writer struct {
	f   *File
	off int64 // current end-of-file offset, where the next record starts
}

// NewWriter returns a Writer appending to f, starting at f's current
// end of file.
func NewWriter(f *File) (*Writer, error) {
	fi, err := statFile(f)
	if err != nil {
		return nil, err
	}

	return &Writer{f: f, off: fi}, nil
}

func statFile(f *File) (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("translog: stat: %w", err)
	}

	return info.Size(), nil
}

// Append writes one record using the escaped-size two-phase protocol:
// the size field is written as the uncommitted placeholder, the body
// and CRC are written and fsynced, and only then is the real size
// patched in and fsynced again. A crash between these steps leaves the
// record looking uncommitted, which is exactly what a replaying reader
// needs to see under the "zero means uncommitted" rule.
func (w *Writer) Append(typ Type, payload []byte) (offset int64, err error) {
	frame := encodeFrame(typ, payload)

	placeholder := make([]byte, 4)
	binary.LittleEndian.PutUint32(placeholder, sizeUncommitted)

	if _, err := w.f.file.Seek(w.off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("translog: seek: %w", err)
	}

	if _, err := w.f.file.Write(placeholder); err != nil {
		return 0, fmt.Errorf("translog: write placeholder: %w", err)
	}

	if _, err := w.f.file.Write(frame[4:]); err != nil {
		return 0, fmt.Errorf("translog: write body: %w", err)
	}

	if err := w.f.file.Sync(); err != nil {
		return 0, fmt.Errorf("translog: sync body: %w", err)
	}

	if _, err := w.f.file.Seek(w.off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("translog: seek patch: %w", err)
	}

	if _, err := w.f.file.Write(frame[:4]); err != nil {
		return 0, fmt.Errorf("translog: patch size: %w", err)
	}

	if err := w.f.file.Sync(); err != nil {
		return 0, fmt.Errorf("translog: sync patch: %w", err)
	}

	recordOffset := w.off
	w.off += int64(len(frame))

	if _, err := w.f.file.Seek(w.off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("translog: seek end: %w", err)
	}

	return recordOffset, nil
}

// Tail returns the writer's current end-of-file offset, the value
// stored in the main index header's log_file_tail_offset field after a
// successful sync.
func (w *Writer) Tail() int64 {
	return w.off
}
