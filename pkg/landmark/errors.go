package landmark

import "errors"

var (
	// ErrInvalidConfig is returned before processing starts when the
	// configuration cannot be run or would truncate hash fields.
	ErrInvalidConfig = errors.New("invalid fingerprint configuration")

	// ErrFrameSize is returned when a spectrum source does not match the
	// configured window size.
	ErrFrameSize = errors.New("spectrum frame size mismatch")
)
