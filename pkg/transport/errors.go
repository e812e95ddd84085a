package transport

import "errors"

var (
	// ErrDial is returned when the datagram socket could not be created.
	ErrDial = errors.New("transport: dial failed")

	// ErrWrite is returned when the send call itself failed.
	ErrWrite = errors.New("transport: write failed")

	// ErrShortWrite is returned when fewer bytes than requested were sent.
	ErrShortWrite = errors.New("transport: short write")

	// ErrClose is returned when releasing the socket failed.
	ErrClose = errors.New("transport: close failed")

	// ErrEmptyPayload is returned when Send is called with nothing to send.
	ErrEmptyPayload = errors.New("transport: empty payload")
)
