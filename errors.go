package pyrowave

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedCapability is returned when the host lacks a
	// required execution capability.
	ErrUnsupportedCapability = errors.New("unsupported capability")

	// ErrConfig is returned for invalid session or call parameters.
	ErrConfig = errors.New("invalid configuration")

	// ErrBitstreamMalformed is returned when packet contents fail
	// structural validation.
	ErrBitstreamMalformed = errors.New("malformed bitstream")

	// ErrRateControlOverflow is returned when the packed frame exceeds
	// its byte budget.
	ErrRateControlOverflow = errors.New("rate control overflow")

	// ErrNotReady is returned when decode is issued before enough of
	// the frame has arrived.
	ErrNotReady = errors.New("frame not ready to decode")
)

func errConfigf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...)
}

func errMalformedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrBitstreamMalformed}, args...)...)
}
