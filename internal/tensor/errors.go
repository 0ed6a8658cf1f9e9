// Package tensor provides the dense N-dimensional array storage that
// compiled kernels read from and write to at runtime.
package tensor

import "errors"

var (
	// ErrInvalidDimensions is returned when a requested shape has a
	// non-positive axis length.
	ErrInvalidDimensions = errors.New("tensor: dimensions must be > 0")

	// ErrOutOfRange indicates an index outside an array's shape.
	ErrOutOfRange = errors.New("tensor: index out of range")

	// ErrRankMismatch is returned when an index list's length doesn't match
	// an array's rank.
	ErrRankMismatch = errors.New("tensor: rank mismatch")

	// ErrShapeMismatch is returned when two arrays expected to share a
	// shape (e.g. accumulation target and addend) disagree.
	ErrShapeMismatch = errors.New("tensor: shape mismatch")
)
