// Package modulus builds the RSA-style group a time-lock puzzle lives in.
//
// The factors and the totient are only ever seen while a puzzle is being
// generated. Nothing in this package persists them.
package modulus

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// DefaultPrimeBits is the size of each prime, giving a 2048-bit modulus.
const DefaultPrimeBits = 1024

// minPrimeBits keeps rand.Prime away from its trivially small cases.
const minPrimeBits = 16

// maxPairAttempts bounds the retries when both primes come out equal.
const maxPairAttempts = 8

var (
	ErrPrimeGenerationFailed = errors.New("prime generation failed")
	ErrEqualPrimes           = errors.New("modulus factors must differ")
)

var one = big.NewInt(1)

// Source supplies pairs of distinct large primes.
type Source interface {
	GeneratePair(bits int) (p, q *big.Int, err error)
}

// RandSource draws probable primes from a cryptographic random reader.
type RandSource struct {
	// Reader defaults to crypto/rand.Reader when nil.
	Reader io.Reader
}

// NewRandSource returns a Source backed by crypto/rand.
func NewRandSource() *RandSource {
	return &RandSource{Reader: rand.Reader}
}

// GeneratePair returns two distinct primes of exactly bits bits.
func (s *RandSource) GeneratePair(bits int) (*big.Int, *big.Int, error) {
	if bits < minPrimeBits {
		return nil, nil, fmt.Errorf("%w: prime size %d below minimum %d", ErrPrimeGenerationFailed, bits, minPrimeBits)
	}

	reader := s.Reader
	if reader == nil {
		reader = rand.Reader
	}

	p, err := rand.Prime(reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrPrimeGenerationFailed, err)
	}

	for attempt := 0; attempt < maxPairAttempts; attempt++ {
		q, err := rand.Prime(reader, bits)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrPrimeGenerationFailed, err)
		}
		if p.Cmp(q) != 0 {
			return p, q, nil
		}
	}

	return nil, nil, fmt.Errorf("%w: no distinct pair after %d attempts", ErrPrimeGenerationFailed, maxPairAttempts)
}

// Build returns n = p*q and the totient (p-1)(q-1).
// Primality of p and q is the caller's responsibility.
func Build(p, q *big.Int) (n, phi *big.Int, err error) {
	if p.Cmp(q) == 0 {
		return nil, nil, ErrEqualPrimes
	}

	n = new(big.Int).Mul(p, q)

	pm1 := new(big.Int).Sub(p, one)
	qm1 := new(big.Int).Sub(q, one)
	phi = pm1.Mul(pm1, qm1)

	return n, phi, nil
}
