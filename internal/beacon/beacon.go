// Package beacon escrows a copy of a card's message with the drand
// randomness beacon, so it can be opened once a public round is reached
// without performing the sequential work.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTooEarly is returned when the target round has not been published.
	ErrTooEarly = errors.New("beacon round not yet reached")

	// ErrNoEscrow is returned when a card carries no beacon escrow.
	ErrNoEscrow = errors.New("no beacon escrow")
)

// Authority is an external, verifiable source of truth for time.
type Authority interface {
	// Name identifies the authority in card metadata.
	Name() string

	// RoundAt returns the first round published at or after t.
	RoundAt(ctx context.Context, t time.Time) (uint64, error)

	// TimeLockEncrypt encrypts data to round and returns base64 ciphertext.
	TimeLockEncrypt(ctx context.Context, data []byte, round uint64) (string, error)

	// TimeLockDecrypt opens ciphertext produced by TimeLockEncrypt.
	TimeLockDecrypt(ctx context.Context, ciphertextB64 string) ([]byte, error)

	// Reached reports whether round has been published.
	Reached(ctx context.Context, round uint64) (bool, error)
}

// Escrow is the beacon-locked copy of a message stored with a card.
type Escrow struct {
	Authority  string    `json:"authority" yaml:"authority"`
	Round      uint64    `json:"round" yaml:"round"`
	UnlockAt   time.Time `json:"unlock_at" yaml:"unlock_at"`
	Ciphertext string    `json:"ciphertext" yaml:"-"`
}

// Seal time-locks data to the first round at or after unlockAt.
func Seal(ctx context.Context, a Authority, data []byte, unlockAt time.Time) (*Escrow, error) {
	round, err := a.RoundAt(ctx, unlockAt)
	if err != nil {
		return nil, fmt.Errorf("failed to compute beacon round: %w", err)
	}

	ct, err := a.TimeLockEncrypt(ctx, data, round)
	if err != nil {
		return nil, fmt.Errorf("beacon lock failed: %w", err)
	}

	return &Escrow{
		Authority:  a.Name(),
		Round:      round,
		UnlockAt:   unlockAt.UTC(),
		Ciphertext: ct,
	}, nil
}

// Open returns the escrowed data once its round is published.
func Open(ctx context.Context, a Authority, e *Escrow) ([]byte, error) {
	if e == nil || e.Ciphertext == "" {
		return nil, ErrNoEscrow
	}
	if e.Authority != a.Name() {
		return nil, fmt.Errorf("escrow authority %q does not match %q", e.Authority, a.Name())
	}

	ok, err := a.Reached(ctx, e.Round)
	if err != nil {
		return nil, fmt.Errorf("failed to query beacon: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: round %d, expected around %s", ErrTooEarly, e.Round, e.UnlockAt.Format(time.RFC3339))
	}

	data, err := a.TimeLockDecrypt(ctx, e.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("beacon unlock failed: %w", err)
	}
	return data, nil
}
