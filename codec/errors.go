package codec

import "errors"

var (
	// ErrCodecNotFound is returned when no codec matches a name or tag.
	ErrCodecNotFound = errors.New("codec not found")

	// ErrInvalidFrame is returned when a frame's plane geometry is
	// inconsistent.
	ErrInvalidFrame = errors.New("invalid frame geometry")
)
