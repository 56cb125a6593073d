package puzzle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timelock/internal/calibrate"
)

const (
	testMessage      = "Dem secrets."
	testInstructions = "Some instructions..."

	// testPrimeBits keeps the modulus wider than a 256-bit key while making
	// prime generation fast.
	testPrimeBits = 192
)

// newTestPuzzle generates a small puzzle needing exactly iterations squarings.
func newTestPuzzle(t *testing.T, message string, iterations uint64) *Puzzle {
	t.Helper()

	p, err := Generate(context.Background(), message, testInstructions, time.Second,
		WithPrimeBits(testPrimeBits),
		WithRate(calibrate.Fixed(iterations)),
	)
	require.NoError(t, err)
	require.Equal(t, iterations, p.TotalIterations())

	return p
}

// cancelAfter returns a context cancelled by the progress observer once k
// squarings have completed in this call.
func cancelAfter(k uint64) (context.Context, SolveOption) {
	ctx, cancel := context.WithCancel(context.Background())
	var seen uint64
	return ctx, WithProgress(func(completed, total uint64) {
		seen++
		if seen == k {
			cancel()
		}
	})
}
