package translog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	mfs "github.com/dcvt/mindex/fs"
)

// LogMagic identifies a transaction log file.
const LogMagic = "MLOG"

// LogFormatVersion is the on-disk format version.
const LogFormatVersion = 1

// FileHeaderSize is the fixed size of a log file's header.
const FileHeaderSize = 24

const (
	logOffMagic       = 0
	logOffVersion     = 4
	logOffIndexID     = 8
	logOffFileSeq     = 12
	logOffCreateStamp = 16
	logOffHeaderCRC   = 20
)

// FileHeader is the fixed header at the start of every log file.
type FileHeader struct {
	Version     uint32
	IndexID     uint32 // must match the paired main index's IndexID
	FileSeq     uint32 // monotonically increasing across rotations
	CreateStamp uint32 // unix time the file was created
}

// EncodeFileHeader serializes h with its CRC stamped.
func EncodeFileHeader(h FileHeader) []byte {
	buf := make([]byte, FileHeaderSize)

	copy(buf[logOffMagic:], LogMagic)
	binary.LittleEndian.PutUint32(buf[logOffVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[logOffIndexID:], h.IndexID)
	binary.LittleEndian.PutUint32(buf[logOffFileSeq:], h.FileSeq)
	binary.LittleEndian.PutUint32(buf[logOffCreateStamp:], h.CreateStamp)

	crc := crc32Checksum(buf[:logOffHeaderCRC])
	binary.LittleEndian.PutUint32(buf[logOffHeaderCRC:], crc)

	return buf
}

// DecodeFileHeader parses and validates buf's magic and CRC.
func DecodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, ErrShortRecord
	}

	if string(buf[logOffMagic:logOffMagic+4]) != LogMagic {
		return FileHeader{}, ErrBadMagic
	}

	wantCRC := binary.LittleEndian.Uint32(buf[logOffHeaderCRC:])
	if crc32Checksum(buf[:logOffHeaderCRC]) != wantCRC {
		return FileHeader{}, ErrRecordCorrupt
	}

	return FileHeader{
		Version:     binary.LittleEndian.Uint32(buf[logOffVersion:]),
		IndexID:     binary.LittleEndian.Uint32(buf[logOffIndexID:]),
		FileSeq:     binary.LittleEndian.Uint32(buf[logOffFileSeq:]),
		CreateStamp: binary.LittleEndian.Uint32(buf[logOffCreateStamp:]),
	}, nil
}

func crc32Checksum(b []byte) uint32 {
	return crc32.Checksum(b, crcTable)
}

// File is an open transaction-log file: its validated header plus the
// underlying file handle for appends and reads.
type File struct {
	fsys   mfs.FS
	file   mfs.File
	Header FileHeader
}

// Create creates a brand new log file at path with the given header.
func Create(fsys mfs.FS, path string, h FileHeader) (*File, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("translog: create %s: %w", path, err)
	}

	h.Version = LogFormatVersion

	buf := EncodeFileHeader(h)
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("translog: write header: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("translog: sync: %w", err)
	}

	return &File{fsys: fsys, file: f, Header: h}, nil
}

// Open opens an existing log file and validates its header, checking
// that its IndexID matches wantIndexID.
func Open(fsys mfs.FS, path string, wantIndexID uint32) (*File, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("translog: open %s: %w", path, err)
	}

	hdrBuf := make([]byte, FileHeaderSize)
	if _, err := readFull(f, hdrBuf); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("translog: read header: %w", err)
	}

	h, err := DecodeFileHeader(hdrBuf)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if h.IndexID != wantIndexID {
		_ = f.Close()
		return nil, fmt.Errorf("translog: %s: index_id %d, want %d: %w",
			path, h.IndexID, wantIndexID, ErrIndexIDMismatch)
	}

	return &File{fsys: fsys, file: f, Header: h}, nil
}

// Close closes the underlying file handle.
func (f *File) Close() error {
	return f.file.Close()
}

func readFull(f mfs.File, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		k, err := f.Read(buf[n:])
		n += k
		if err != nil {
			return n, err
		}
		if k == 0 {
			break
		}
	}

	return n, nil
}
