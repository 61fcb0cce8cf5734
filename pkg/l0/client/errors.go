package client

import "errors"

var (
	// ErrQueueFull indicates the pending request queue has no space.
	ErrQueueFull = errors.New("request queue full")
	// ErrNotOperating indicates the client is not started.
	ErrNotOperating = errors.New("client not operating")
	// ErrConnectionState indicates the request is not allowed in the
	// current connection state, e.g. READ while disconnected.
	ErrConnectionState = errors.New("request not allowed in connection state")
)
