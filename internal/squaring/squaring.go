// Package squaring implements the two ways of evaluating a^(2^t) mod n.
//
// Shortcut uses the group order and costs O(log t) multiplications; it is
// only available to whoever knows the factorization of n. Chain performs
// the t squarings one after another and is what a solver has to do.
package squaring

import (
	"math/big"
)

var two = big.NewInt(2)

// Shortcut computes a^(2^t) mod n using the totient phi of n.
// Valid by Euler's theorem whenever gcd(a, n) = 1.
func Shortcut(a *big.Int, t uint64, n, phi *big.Int) *big.Int {
	e := new(big.Int).SetUint64(t)
	e.Exp(two, e, phi)
	return e.Exp(a, e, n)
}

// Square sets z = x^2 mod n and returns z.
func Square(z, x, n *big.Int) *big.Int {
	z.Mul(x, x)
	return z.Mod(z, n)
}

// Eval performs t plain squarings of a under n.
func Eval(a *big.Int, t uint64, n *big.Int) *big.Int {
	c := NewChain(n, a, t)
	for c.Step() {
	}
	return c.Value()
}

// Chain is a plain squaring chain that can be advanced one squaring at a
// time. Value and remaining count change together inside Step, so a chain
// observed between steps is always consistent.
type Chain struct {
	n         *big.Int
	x         *big.Int
	scratch   *big.Int
	remaining uint64
	completed uint64
}

// NewChain starts a chain at a with remaining squarings left.
// a and n are copied.
func NewChain(n, a *big.Int, remaining uint64) *Chain {
	return &Chain{
		n:         new(big.Int).Set(n),
		x:         new(big.Int).Set(a),
		scratch:   new(big.Int),
		remaining: remaining,
	}
}

// Step performs one squaring. It returns false, doing nothing, once no
// squarings remain.
func (c *Chain) Step() bool {
	if c.remaining == 0 {
		return false
	}

	Square(c.scratch, c.x, c.n)
	c.x, c.scratch = c.scratch, c.x
	c.remaining--
	c.completed++

	return true
}

// Remaining returns the number of squarings left.
func (c *Chain) Remaining() uint64 {
	return c.remaining
}

// Completed returns the number of squarings performed by this chain.
func (c *Chain) Completed() uint64 {
	return c.completed
}

// Done reports whether the chain has run out.
func (c *Chain) Done() bool {
	return c.remaining == 0
}

// Value returns a copy of the current chain value.
func (c *Chain) Value() *big.Int {
	return new(big.Int).Set(c.x)
}
