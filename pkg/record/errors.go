package record

import "errors"

var (
	// ErrIncompleteOffset is returned when a sensor offset component is unset.
	ErrIncompleteOffset = errors.New("record: sensor offset incomplete")

	// ErrMissingBlendShape is returned when a face lacks a required signal.
	ErrMissingBlendShape = errors.New("record: missing blend shape")

	// ErrShortRecord is returned when fewer than Size bytes are available.
	ErrShortRecord = errors.New("record: short record")

	// ErrBadMagic is returned when the record type marker does not match.
	ErrBadMagic = errors.New("record: bad magic")

	// ErrUnsupportedVersion is returned for unknown payload versions.
	ErrUnsupportedVersion = errors.New("record: unsupported version")

	// ErrTrailingBytes is returned when a datagram is not a whole number of records.
	ErrTrailingBytes = errors.New("record: trailing bytes")
)
