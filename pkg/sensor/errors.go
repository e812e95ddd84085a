package sensor

import "errors"

var (
	// ErrBadToken is returned to a device whose hello carries the wrong token.
	ErrBadToken = errors.New("sensor: invalid device token")

	// ErrNotIntroduced is returned when a device streams before its hello is accepted.
	ErrNotIntroduced = errors.New("sensor: hello required before streaming")

	// ErrDeviceNotConnected is returned when sending to an unknown device.
	ErrDeviceNotConnected = errors.New("sensor: device not connected")

	// ErrSendQueueFull is returned when a device is not keeping up with its messages.
	ErrSendQueueFull = errors.New("sensor: device send queue full")

	// ErrUnexpectedReply is returned when the service answers a hello with something else.
	ErrUnexpectedReply = errors.New("sensor: unexpected reply")
)
