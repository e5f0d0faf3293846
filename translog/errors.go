package translog

import "errors"

var (
	// ErrShortRecord is returned by the payload and file-header decoders
	// when fewer bytes are available than the format declares. Reader.Next
	// does not return it: a log that ends mid-record reads as io.EOF.
	ErrShortRecord = errors.New("translog: short record")

	// ErrUncommittedRecord is returned when a record frame's size field is
	// the zero placeholder (the writer was interrupted before completing
	// and fsyncing it) or the corrupt marker. Reader.Next reports such a
	// record as io.EOF, so replay stops there.
	ErrUncommittedRecord = errors.New("translog: uncommitted record")

	// ErrRecordCorrupt is returned when a record's CRC doesn't match its
	// body, which (unlike ErrUncommittedRecord) does indicate corruption
	// and should trigger fsck.
	ErrRecordCorrupt = errors.New("translog: record checksum mismatch")

	// ErrBadMagic is returned when a log file's header magic doesn't match.
	ErrBadMagic = errors.New("translog: bad log file magic")

	// ErrIndexIDMismatch is returned when a log file's index_id doesn't
	// match the main index it's supposed to pair with, meaning the two
	// files belong to different index generations.
	ErrIndexIDMismatch = errors.New("translog: index_id mismatch")
)
