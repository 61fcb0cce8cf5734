package comm

import "errors"

var (
	// ErrNotReady indicates the framer is not operating.
	ErrNotReady = errors.New("not ready")
	// ErrBusy indicates the previous frame is still being transmitted.
	ErrBusy = errors.New("frame in flight")
	// ErrTooLarge indicates the PDU doesn't fit in a frame.
	ErrTooLarge = errors.New("pdu too large")
)
