package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidTransition is returned when an operation is invoked in a state that cannot serve it.
	// It is recoverable: check the state and retry.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrPlaybackFailed wraps load / decode / render failures of the playback device.
	ErrPlaybackFailed = errors.New("playback failed")
	// ErrDeviceUnconfirmed means a device call returned but the device never reported the expected state.
	ErrDeviceUnconfirmed = errors.New("device did not confirm transition")
)

type AcquisitionErrorKind int

const (
	Unknown AcquisitionErrorKind = iota
	PermissionDenied
	NoDevice
	DeviceBusy
	Unsupported
)

func (k AcquisitionErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "PermissionDenied"
	case NoDevice:
		return "NoDevice"
	case DeviceBusy:
		return "DeviceBusy"
	case Unsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

type DeviceAcquisitionError struct {
	Kind AcquisitionErrorKind
	Err  error
}

func NewDeviceAcquisitionError(kind AcquisitionErrorKind, err error) *DeviceAcquisitionError {
	return &DeviceAcquisitionError{Kind: kind, Err: err}
}

func (e *DeviceAcquisitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device acquisition failed: %s", e.Kind)
	}
	return fmt.Sprintf("device acquisition failed: %s: %v", e.Kind, e.Err)
}

func (e *DeviceAcquisitionError) Unwrap() error {
	return e.Err
}

// PlaybackError is a failure of the playback device, it matches ErrPlaybackFailed and unwraps to the cause.
type PlaybackError struct {
	Op  string
	Err error
}

func NewPlaybackError(op string, err error) *PlaybackError {
	return &PlaybackError{Op: op, Err: err}
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPlaybackFailed, e.Op, e.Err)
}

func (e *PlaybackError) Is(target error) bool {
	return target == ErrPlaybackFailed
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
