package mergetree

import "errors"

// Errors raised by the read planner. All of them surface to the caller
// of Read unchanged; the planner performs no local recovery.
var (
	// ErrArgumentOutOfBound reports a sample size of zero or below.
	ErrArgumentOutOfBound = errors.New("sample size out of bound")

	// ErrUnsupportedSamplingColumn reports a sampling column that is not
	// an unsigned 8/16/32/64-bit integer.
	ErrUnsupportedSamplingColumn = errors.New("sampling column must be an unsigned integer type")

	// ErrSamplingColumnNotInKey reports a sampling column absent from
	// the primary key.
	ErrSamplingColumnNotInKey = errors.New("sampling column not in primary key")

	// ErrUnknownColumn reports a projection column missing from the
	// table schema.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrLogicalError reports a violated internal invariant. Indicates
	// a bug; not user-recoverable.
	ErrLogicalError = errors.New("logical error")
)
