package session

import "errors"

// Guard errors explain why a feature could not be enabled. They are
// preconditions, not runtime failures.
var (
	// ErrSensorUnsupported is returned when no tracking sensor is present.
	ErrSensorUnsupported = errors.New("session: face tracking sensor not supported")

	// ErrSensorNotAuthorized is returned when the sensor has not been granted.
	ErrSensorNotAuthorized = errors.New("session: face tracking sensor not authorized")

	// ErrIncompleteOffset is returned when the sensor offset is not fully configured.
	ErrIncompleteOffset = errors.New("session: sensor offset incomplete")

	// ErrIncompleteEndpoint is returned when the transport endpoint is not fully configured.
	ErrIncompleteEndpoint = errors.New("session: transport endpoint incomplete")

	// ErrTransportEnabled is returned when editing the endpoint while the transport is enabled.
	ErrTransportEnabled = errors.New("session: disable transport before changing the endpoint")
)
