package squaring

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timelock/internal/modulus"
)

func TestShortcutMatchesPlainChain(t *testing.T) {
	p, q, err := modulus.NewRandSource().GeneratePair(128)
	require.NoError(t, err)
	n, phi, err := modulus.Build(p, q)
	require.NoError(t, err)

	a, err := rand.Int(rand.Reader, new(big.Int).Sub(n, big.NewInt(2)))
	require.NoError(t, err)
	a.Add(a, big.NewInt(2))

	for _, iterations := range []uint64{0, 1, 2, 17, 1000} {
		fast := Shortcut(a, iterations, n, phi)
		slow := Eval(a, iterations, n)
		assert.Equal(t, 0, fast.Cmp(slow), "t=%d", iterations)
	}
}

func TestShortcut_SmallNumbers(t *testing.T) {
	n, phi, err := modulus.Build(big.NewInt(61), big.NewInt(53))
	require.NoError(t, err)

	// 5^(2^3) mod 3233 = 390625 mod 3233
	got := Shortcut(big.NewInt(5), 3, n, phi)
	assert.Equal(t, int64(390625%3233), got.Int64())
}

func TestChain_Step(t *testing.T) {
	n := big.NewInt(3233)
	c := NewChain(n, big.NewInt(5), 3)

	assert.Equal(t, uint64(3), c.Remaining())
	assert.False(t, c.Done())

	require.True(t, c.Step())
	assert.Equal(t, int64(25), c.Value().Int64())
	assert.Equal(t, uint64(2), c.Remaining())
	assert.Equal(t, uint64(1), c.Completed())

	require.True(t, c.Step())
	require.True(t, c.Step())
	assert.True(t, c.Done())
	assert.False(t, c.Step())
	assert.Equal(t, uint64(3), c.Completed())
	assert.Equal(t, int64(390625%3233), c.Value().Int64())
}

func TestChain_CopiesInputs(t *testing.T) {
	a := big.NewInt(5)
	n := big.NewInt(3233)
	c := NewChain(n, a, 2)

	c.Step()
	v := c.Value()
	v.SetInt64(1)

	assert.Equal(t, int64(5), a.Int64())
	assert.Equal(t, int64(3233), n.Int64())
	assert.Equal(t, int64(25), c.Value().Int64())
}

func TestChain_ResumeEqualsContinuous(t *testing.T) {
	n := big.NewInt(1000003 * 999983)
	a := big.NewInt(123456)

	first := NewChain(n, a, 100)
	for i := 0; i < 40; i++ {
		first.Step()
	}
	resumed := NewChain(n, first.Value(), first.Remaining())
	for resumed.Step() {
	}

	assert.Equal(t, 0, resumed.Value().Cmp(Eval(a, 100, n)))
}
