package srcsep

import "github.com/pkg/errors"

var (
	// ErrInconsistentDimensions is returned when sources, their factors or the
	// mixture covariance disagree on channels, bins or frames.
	ErrInconsistentDimensions = errors.New("inconsistent dimensions")
	// ErrInvalidValue is returned for malformed or out-of-range parameter values.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnsupportedMixing is returned for an invalid combination of mixing
	// type, array rank and value type.
	ErrUnsupportedMixing = errors.New("unsupported mixing parameter")
	// ErrUnsupportedTFR is returned for a time-frequency representation that
	// cannot be computed.
	ErrUnsupportedTFR = errors.New("unsupported time-frequency representation")
	// ErrBadWindow is returned when the STFT window length is not a positive
	// multiple of 4.
	ErrBadWindow = errors.New("window length must be a positive multiple of 4")
	// ErrBadCovarianceFile is returned when a covariance file cannot be decoded.
	ErrBadCovarianceFile = errors.New("bad covariance file")
)

func inconsistent(what string, want, got int) error {
	return errors.Wrapf(ErrInconsistentDimensions, "%s: expected %d, got %d", what, want, got)
}
