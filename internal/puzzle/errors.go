package puzzle

import "errors"

var (
	// ErrPuzzleNotSolved is returned when the solution is read before Solve
	// has completed.
	ErrPuzzleNotSolved = errors.New("puzzle not solved")

	// ErrCorruptState is returned when a serialized puzzle cannot be decoded
	// or violates the puzzle invariants.
	ErrCorruptState = errors.New("corrupt puzzle state")

	// ErrInterrupted is returned when Solve stops because its context was
	// cancelled. The puzzle remains valid and can be solved further.
	ErrInterrupted = errors.New("solving interrupted")

	ErrInvalidDuration = errors.New("desired duration must not be negative")
	ErrModulusTooSmall = errors.New("modulus too small for key")
)
