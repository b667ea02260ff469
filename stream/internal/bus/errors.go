package bus

import "errors"

// ErrSlowConsumer ends a CloseOnOverflow subscription whose buffer filled
// up. The connection manager responds by force-closing the connection so a
// stalled client cannot back-pressure publishers.
var ErrSlowConsumer = errors.New("bus: subscriber queue overflow")
