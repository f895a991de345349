package kb1

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportUnavailable is returned when the host has no usable
	// Bluetooth LE radio.
	ErrTransportUnavailable = errors.New("kb1: bluetooth transport unavailable")

	// ErrBusy is returned by Connect when a connection attempt or an
	// established connection already exists.
	ErrBusy = errors.New("kb1: link supervisor busy")

	// ErrNotConnected is returned by every operation against a link that has
	// dropped, including operations that were in flight when it dropped.
	ErrNotConnected = errors.New("kb1: not connected")

	// ErrNoDevice is returned when discovery finishes without a match.
	ErrNoDevice = errors.New("kb1: no device found")

	// ErrRequiredCharacteristic means the peripheral lacks a characteristic
	// the driver cannot work without.
	ErrRequiredCharacteristic = errors.New("kb1: required characteristic missing")

	// ErrUnsupported means the connected firmware does not expose the
	// characteristic a feature needs.
	ErrUnsupported = errors.New("kb1: unsupported by connected firmware")

	// ErrShortRecord is returned by decoders when the buffer is shorter than
	// the record layout.
	ErrShortRecord = errors.New("kb1: record too short")

	// ErrInvalidSlot is returned for preset slot indices outside 0..PresetSlots-1.
	ErrInvalidSlot = errors.New("kb1: invalid preset slot")
)

// RoleError ties a characteristic resolution failure to its role.
type RoleError struct {
	Role Role
	Err  error
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Err, e.Role)
}

func (e *RoleError) Unwrap() error { return e.Err }

// OpError is returned when a read or write against a characteristic fails in
// the transport.
type OpError struct {
	Op   string
	Role Role
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("kb1: %s %s: %v", e.Op, e.Role, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the operation may succeed. Transport
// failures on a live link are transient; a dropped link is not.
func (e *OpError) Temporary() bool {
	return !errors.Is(e.Err, ErrNotConnected) && !errors.Is(e.Err, ErrUnsupported)
}

// ValidationError reports a record field rejected before any write.
type ValidationError struct {
	Record string
	Field  string
	Value  int64
	Reason string
	Err    error // optional sentinel, such as ErrInvalidSlot
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("kb1: invalid %s.%s = %d: %s", e.Record, e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(record, field string, value int64, format string, args ...interface{}) error {
	return &ValidationError{
		Record: record,
		Field:  field,
		Value:  value,
		Reason: fmt.Sprintf(format, args...),
	}
}
