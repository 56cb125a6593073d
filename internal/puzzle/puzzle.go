// Package puzzle implements Rivest-Shamir-Wagner time-lock puzzles.
//
// A puzzle hides a symmetric key behind a^(2^t) mod n. Generate computes
// that value cheaply from the factorization of n; Solve has to perform t
// modular squarings in sequence. Solving can be interrupted between any two
// squarings and resumed later, also after a Dump/Load round trip.
//
// A Puzzle is not safe for concurrent use. Solve mutates it in place.
package puzzle

import (
	"math/big"

	"timelock/internal/symmetric"
)

// Puzzle is the complete, serializable state of a time-lock puzzle.
type Puzzle struct {
	n         *big.Int
	base      *big.Int
	remaining uint64
	total     uint64

	encryptedKey     *big.Int
	encryptedMessage []byte
	keyLength        int

	instructions string
	solution     *string
}

// Instructions returns the plaintext hint. It is readable before solving.
func (p *Puzzle) Instructions() string {
	return p.instructions
}

// Solution returns the recovered message, or ErrPuzzleNotSolved.
func (p *Puzzle) Solution() (string, error) {
	if p.solution == nil {
		return "", ErrPuzzleNotSolved
	}
	return *p.solution, nil
}

// IsSolved reports whether the solution has been recovered.
func (p *Puzzle) IsSolved() bool {
	return p.solution != nil
}

// RemainingIterations returns the squarings still to be performed.
func (p *Puzzle) RemainingIterations() uint64 {
	return p.remaining
}

// TotalIterations returns the squarings the puzzle was created with.
func (p *Puzzle) TotalIterations() uint64 {
	return p.total
}

// CompletedIterations returns total - remaining.
func (p *Puzzle) CompletedIterations() uint64 {
	return p.total - p.remaining
}

// Progress returns the completed fraction in [0, 1].
func (p *Puzzle) Progress() float64 {
	if p.total == 0 {
		return 1
	}
	return float64(p.total-p.remaining) / float64(p.total)
}

// Modulus returns a copy of the public modulus.
func (p *Puzzle) Modulus() *big.Int {
	return new(big.Int).Set(p.n)
}

// BitLen returns the modulus size in bits.
func (p *Puzzle) BitLen() int {
	return p.n.BitLen()
}

// CipherSuite returns the symmetric suite protecting the message.
func (p *Puzzle) CipherSuite() symmetric.Suite {
	s, err := symmetric.SuiteOf(p.encryptedMessage)
	if err != nil {
		return 0
	}
	return s
}

// Equal reports whether two puzzles hold identical state.
func (p *Puzzle) Equal(o *Puzzle) bool {
	if p == nil || o == nil {
		return p == o
	}
	if (p.solution == nil) != (o.solution == nil) {
		return false
	}
	if p.solution != nil && *p.solution != *o.solution {
		return false
	}
	return p.n.Cmp(o.n) == 0 &&
		p.base.Cmp(o.base) == 0 &&
		p.remaining == o.remaining &&
		p.total == o.total &&
		p.encryptedKey.Cmp(o.encryptedKey) == 0 &&
		string(p.encryptedMessage) == string(o.encryptedMessage) &&
		p.keyLength == o.keyLength &&
		p.instructions == o.instructions
}

// Clone returns a deep copy of p.
func (p *Puzzle) Clone() *Puzzle {
	c := &Puzzle{
		n:                new(big.Int).Set(p.n),
		base:             new(big.Int).Set(p.base),
		remaining:        p.remaining,
		total:            p.total,
		encryptedKey:     new(big.Int).Set(p.encryptedKey),
		encryptedMessage: append([]byte(nil), p.encryptedMessage...),
		keyLength:        p.keyLength,
		instructions:     p.instructions,
	}
	if p.solution != nil {
		s := *p.solution
		c.solution = &s
	}
	return c
}
