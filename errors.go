package hxlive

import (
	"errors"

	"github.com/pthm/hxlive/lib/protocol"
)

// Sentinel errors for runtime operations.
var (
	ErrNotReady        = errors.New("hxlive: connection not ready")
	ErrNotLiveRendered = errors.New("hxlive: page is not live rendered")
	ErrClosed          = errors.New("hxlive: closed")
	ErrNoForm          = errors.New("hxlive: element is not a form")
)

// IsNotReady checks if err is a dropped send.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// IsProtocolError checks if err is a malformed inbound frame.
func IsProtocolError(err error) bool {
	return errors.Is(err, protocol.ErrMalformed)
}
