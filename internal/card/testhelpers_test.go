package card

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"timelock/internal/calibrate"
	"timelock/internal/puzzle"
	"timelock/internal/symmetric"
)

const testDir = "/store"

// fakeClock advances by one minute on every call.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewStore(fsys, testDir, WithClock(clock.Now)), fsys
}

func newTestPuzzle(t *testing.T, message string, iterations uint64) *puzzle.Puzzle {
	t.Helper()
	p, err := puzzle.Generate(context.Background(), message, "Some instructions...", time.Second,
		puzzle.WithPrimeBits(192),
		puzzle.WithRate(calibrate.Fixed(iterations)),
	)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	return p
}

func createTestCard(t *testing.T, s *Store, message string, iterations uint64) (*Card, *puzzle.Puzzle) {
	t.Helper()
	p := newTestPuzzle(t, message, iterations)
	c, err := s.Create(CreateRequest{
		Puzzle:    p,
		Rate:      iterations,
		Duration:  time.Second,
		Cipher:    symmetric.SuiteXChaCha20Poly1305,
		InputType: InputSourceStdin,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return c, p
}
