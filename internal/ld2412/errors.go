package ld2412

import (
	"errors"
	"fmt"
)

// ErrAlreadyWaiting is returned by Send while a previous command is still
// awaiting its reply. The caller may retry after the reply or timeout.
var ErrAlreadyWaiting = errors.New("ld2412: a command is already awaiting a reply")

// ErrClosed is returned by Send on an engine that has shut down.
var ErrClosed = errors.New("ld2412: engine closed")

// ErrNoTransmitter is returned by Send on an engine built without a
// Transmit function, so a wiring mistake fails loudly instead of arming
// a command slot that can only time out.
var ErrNoTransmitter = errors.New("ld2412: no transmitter configured")

// DecodeError reports a structurally valid frame whose fixed-offset fields
// are out of the expected range. The frame is discarded; the stream itself
// is fine and scanning continues.
type DecodeError struct {
	Family FrameFamily
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ld2412: cannot decode %s frame: %s", e.Family, e.Reason)
}

func decodeErrf(family FrameFamily, format string, args ...interface{}) error {
	return &DecodeError{Family: family, Reason: fmt.Sprintf(format, args...)}
}
