package listen

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermissionDenied is returned when the user or OS refuses microphone access
var ErrPermissionDenied = errors.New("listen: microphone permission denied")

// DeviceError reports a failure to acquire or run an audio device
type DeviceError struct {
	Op  string // operation that failed, e.g. "open" or "start"
	Err error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("listen: device %s failed", e.Op)
	}
	return fmt.Sprintf("listen: device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// AudioSource opens mono audio streams. Open may block while the platform
// asks the user for microphone permission.
type AudioSource interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open audio input.
//
// Start begins delivering mono samples in [-1, 1] to sink from the driver's
// own goroutine. The slice passed to sink is only valid for the duration of
// the call. Close stops delivery and releases the device; it is idempotent.
type Stream interface {
	SampleRate() int
	Start(sink func(samples []float64)) error
	Close() error
}

// asDeviceError wraps err in a DeviceError unless it already carries one or
// is a permission error.
func asDeviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.Is(err, ErrPermissionDenied) || errors.As(err, &de) {
		return err
	}
	return &DeviceError{Op: op, Err: err}
}
