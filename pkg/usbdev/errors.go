package usbdev

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned by Open when no device matches the
	// requested VID:PID.
	ErrDeviceNotFound = errors.New("usbdev: device not found")

	// ErrEndpointMissing is returned by Open when the claimed interface lacks
	// a bulk OUT or bulk IN endpoint.
	ErrEndpointMissing = errors.New("usbdev: endpoint missing")
)

// TransferError wraps a failed bulk or control transfer.
type TransferError struct {
	Op  string // "bulk-out", "bulk-in", "control-in", "control-out"
	Len int    // bytes requested
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("usbdev: %s transfer of %d bytes failed: %v", e.Op, e.Len, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IsTransferError reports whether err wraps a *TransferError.
func IsTransferError(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}
