package pdu

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported indicates the family doesn't define the operation.
	ErrUnsupported = errors.New("operation not supported by family")
)

// ResultError reports a response carrying ResultFailure.
type ResultError struct {
	Op     Op
	Result Result
}

// Error implements error.
func (e *ResultError) Error() string {
	return fmt.Sprintf("%s %s", e.Op, e.Result)
}
