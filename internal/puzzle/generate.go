package puzzle

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"go.uber.org/zap"

	"timelock/internal/calibrate"
	"timelock/internal/logging"
	"timelock/internal/modulus"
	"timelock/internal/squaring"
)

var two = big.NewInt(2)

// Generate creates a puzzle hiding message that takes roughly d of
// sequential squaring to solve on hardware comparable to this machine.
// A zero duration yields a puzzle that is solved without any squaring.
func Generate(ctx context.Context, message, instructions string, d time.Duration, opts ...Option) (*Puzzle, error) {
	if d < 0 {
		return nil, ErrInvalidDuration
	}

	o := newOptions(opts)
	log := o.logger

	key, err := o.cipher.GenerateKey()
	if err != nil {
		return nil, err
	}
	defer zero(key)

	encryptedMessage, err := o.cipher.Encrypt(key, message)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message: %w", err)
	}

	log.Debug("generating modulus", zap.Int(logging.KeyBits, 2*o.bits))
	p, q, err := o.source.GeneratePair(o.bits)
	if err != nil {
		return nil, err
	}
	n, phi, err := modulus.Build(p, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", modulus.ErrPrimeGenerationFailed, err)
	}
	if n.BitLen() <= 8*len(key) {
		return nil, fmt.Errorf("%w: %d-bit modulus, %d-byte key", ErrModulusTooSmall, n.BitLen(), len(key))
	}

	a, err := randomBase(o.random, n)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rate, err := o.rates.Rate(n)
	if err != nil {
		return nil, fmt.Errorf("calibration failed: %w", err)
	}
	t := calibrate.Iterations(rate, d)
	log.Debug("calibrated", logging.Rate(rate), logging.Total(t), logging.Duration(d))

	b := squaring.Shortcut(a, t, n, phi)

	encryptedKey := new(big.Int).SetBytes(key)
	encryptedKey.Add(encryptedKey, b)
	encryptedKey.Mod(encryptedKey, n)

	pz := &Puzzle{
		n:                n,
		base:             a,
		remaining:        t,
		total:            t,
		encryptedKey:     encryptedKey,
		encryptedMessage: encryptedMessage,
		keyLength:        len(key),
		instructions:     instructions,
	}
	if err := pz.validate(); err != nil {
		return nil, err
	}

	return pz, nil
}

// randomBase returns a uniform a with 2 <= a < n.
func randomBase(r io.Reader, n *big.Int) (*big.Int, error) {
	if r == nil {
		r = rand.Reader
	}
	span := new(big.Int).Sub(n, two)
	a, err := rand.Int(r, span)
	if err != nil {
		return nil, fmt.Errorf("failed to pick base: %w", err)
	}
	return a.Add(a, two), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
