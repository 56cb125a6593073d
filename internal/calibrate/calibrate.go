// Package calibrate converts wall-clock durations into squaring counts by
// measuring how fast this machine squares modulo a given modulus.
//
// The measurement is local and approximate. A puzzle calibrated here takes
// roughly the requested time on comparable hardware; faster or slower
// machines finish proportionally sooner or later.
package calibrate

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"time"

	"timelock/internal/squaring"
)

const (
	// DefaultTrials is the number of squarings timed per measurement.
	DefaultTrials = 100_000

	// DefaultMaxAttempts bounds how often Rate doubles the trial count.
	DefaultMaxAttempts = 8
)

var ErrCalibrationTooFast = errors.New("calibration finished too quickly to measure; increase the trial count")

// RateSource reports squarings per second under a modulus.
type RateSource interface {
	Rate(n *big.Int) (uint64, error)
}

// MeasureRate squares an arbitrary base trials times under n and returns
// floor(trials / elapsed seconds).
func MeasureRate(n *big.Int, trials uint64) (uint64, error) {
	return measure(n, trials, time.Now)
}

func measure(n *big.Int, trials uint64, now func() time.Time) (uint64, error) {
	if n.Sign() <= 0 {
		return 0, fmt.Errorf("calibration modulus must be positive")
	}

	x := new(big.Int).Rsh(n, 1)
	if x.Sign() == 0 {
		x.SetInt64(1)
	}

	start := now()
	squaring.Eval(x, trials, n)
	elapsed := now().Sub(start)

	if elapsed <= 0 {
		return 0, ErrCalibrationTooFast
	}

	hi, lo := bits.Mul64(trials, uint64(time.Second))
	if hi >= uint64(elapsed) {
		return 0, ErrCalibrationTooFast
	}
	rate, _ := bits.Div64(hi, lo, uint64(elapsed))

	return rate, nil
}

// Calibrator measures rates, retrying with more trials when a run is too
// short to time.
type Calibrator struct {
	Trials      uint64
	MaxAttempts int

	// Now defaults to time.Now.
	Now func() time.Time
}

// New returns a Calibrator timing trials squarings per attempt.
func New(trials uint64) *Calibrator {
	if trials == 0 {
		trials = DefaultTrials
	}
	return &Calibrator{
		Trials:      trials,
		MaxAttempts: DefaultMaxAttempts,
		Now:         time.Now,
	}
}

// Rate implements RateSource.
func (c *Calibrator) Rate(n *big.Int) (uint64, error) {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	trials := c.Trials
	if trials == 0 {
		trials = DefaultTrials
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		var rate uint64
		rate, err = measure(n, trials, now)
		if err == nil {
			return rate, nil
		}
		if !errors.Is(err, ErrCalibrationTooFast) {
			return 0, err
		}
		if trials > ^uint64(0)/2 {
			break
		}
		trials *= 2
	}

	return 0, err
}

// Fixed is a RateSource returning a constant rate.
type Fixed uint64

// Rate implements RateSource.
func (f Fixed) Rate(*big.Int) (uint64, error) {
	return uint64(f), nil
}

// Iterations returns floor(rate * d / 1s). Non-positive durations yield 0;
// results beyond uint64 saturate.
func Iterations(rate uint64, d time.Duration) uint64 {
	if d <= 0 || rate == 0 {
		return 0
	}

	hi, lo := bits.Mul64(rate, uint64(d))
	if hi >= uint64(time.Second) {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, uint64(time.Second))
	return q
}

// Duration estimates how long iterations squarings take at rate.
func Duration(rate, iterations uint64) time.Duration {
	if rate == 0 {
		return 0
	}
	hi, lo := bits.Mul64(iterations, uint64(time.Second))
	if hi >= rate {
		return time.Duration(1<<63 - 1)
	}
	q, _ := bits.Div64(hi, lo, rate)
	if q > 1<<63-1 {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(q)
}
