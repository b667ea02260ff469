package messaging

import "errors"

// ErrClientClosed is returned when publishing or subscribing on a client
// that has been closed or drained.
var ErrClientClosed = errors.New("messaging: client is closed")
