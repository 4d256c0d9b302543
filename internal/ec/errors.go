package ec

import "errors"

var (
	// ErrInvalidAddress marks an access to a register outside the
	// read/write whitelists. The hardware channel is never touched.
	ErrInvalidAddress = errors.New("register address not permitted")

	// ErrInvalidValue marks a write value outside the permitted range
	// of the target register. The hardware channel is never touched.
	ErrInvalidValue = errors.New("register value out of range")

	// ErrChannelUnavailable is returned when the register channel file
	// cannot be opened or accessed, typically because the backing
	// kernel module is not loaded.
	ErrChannelUnavailable = errors.New("register channel unavailable")

	// ErrVerificationFailed is returned when a write did not take
	// effect according to a subsequent read-back.
	ErrVerificationFailed = errors.New("write verification failed")

	// ErrUnrecoverable is returned once the bounded reset retries are
	// exhausted. Callers must force automatic mode and stop trusting
	// the hardware interface.
	ErrUnrecoverable = errors.New("hardware access cannot be trusted")
)
