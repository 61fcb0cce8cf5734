package server

import "errors"

var (
	// ErrTableFull indicates the dispatch table has no free slot.
	ErrTableFull = errors.New("dispatch table full")
)
