package view

import "errors"

var (
	// ErrSeqOutOfRange is returned by operations addressing a sequence
	// number outside the view's (or transaction's overlay's) current
	// message count.
	ErrSeqOutOfRange = errors.New("view: seq out of range")

	// ErrUnknownKeyword is returned when an operation references a
	// keyword index that was never registered via KeywordsCreate.
	ErrUnknownKeyword = errors.New("view: unknown keyword")

	// ErrAlreadyExpunged is returned by an operation on a seq the same
	// transaction already expunged.
	ErrAlreadyExpunged = errors.New("view: seq already expunged in this transaction")
)
