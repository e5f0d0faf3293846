package mailindex

import "errors"

// ErrUIDNotFound is returned by lookups that find no record for the
// requested UID.
var ErrUIDNotFound = errors.New("mailindex: uid not found")

// ErrSeqOutOfRange is returned when a seq argument falls outside
// [1, MessagesCount()].
var ErrSeqOutOfRange = errors.New("mailindex: seq out of range")
