package env

import "errors"

var (
	// ErrUnknownScheme indicates the link URL scheme isn't supported.
	ErrUnknownScheme = errors.New("unknown link URL scheme")
)
