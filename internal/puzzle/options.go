package puzzle

import (
	"crypto/rand"
	"io"

	"timelock/internal/calibrate"
	"timelock/internal/logging"
	"timelock/internal/modulus"
	"timelock/internal/symmetric"
)

// Option configures Generate.
type Option func(*options)

type options struct {
	source modulus.Source
	bits   int
	rates  calibrate.RateSource
	cipher symmetric.Cipher
	random io.Reader
	logger *logging.Logger
}

func newOptions(opts []Option) *options {
	o := &options{
		bits:   modulus.DefaultPrimeBits,
		random: rand.Reader,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.source == nil {
		o.source = &modulus.RandSource{Reader: o.random}
	}
	if o.rates == nil {
		o.rates = calibrate.New(calibrate.DefaultTrials)
	}
	if o.cipher == nil {
		o.cipher = &symmetric.Scheme{Suite: symmetric.SuiteXChaCha20Poly1305, Rand: o.random}
	}
	return o
}

// WithPrimeSource sets where the modulus factors come from.
func WithPrimeSource(s modulus.Source) Option {
	return func(o *options) { o.source = s }
}

// WithPrimeBits sets the size of each prime factor.
func WithPrimeBits(bits int) Option {
	return func(o *options) { o.bits = bits }
}

// WithRate sets how squarings per second are determined. The default
// calibrates against the freshly generated modulus.
func WithRate(r calibrate.RateSource) Option {
	return func(o *options) { o.rates = r }
}

// WithCipher sets the symmetric scheme protecting the message.
func WithCipher(c symmetric.Cipher) Option {
	return func(o *options) { o.cipher = c }
}

// WithRandom sets the randomness used for the base, and for primes, keys
// and nonces unless those are configured separately.
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ProgressFunc observes solving progress after each squaring.
type ProgressFunc func(completed, total uint64)

// SolveOption configures Solve.
type SolveOption func(*solveOptions)

type solveOptions struct {
	progress        ProgressFunc
	checkpointEvery uint64
	checkpoint      func(*Puzzle) error
	cipher          symmetric.Cipher
	logger          *logging.Logger
}

func newSolveOptions(opts []SolveOption) *solveOptions {
	o := &solveOptions{logger: logging.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.cipher == nil {
		o.cipher = symmetric.New()
	}
	return o
}

// WithProgress registers a progress observer.
func WithProgress(fn ProgressFunc) SolveOption {
	return func(o *solveOptions) { o.progress = fn }
}

// WithCheckpoint calls fn with the consistent puzzle after every `every`
// squarings. Returning an error from fn stops solving.
func WithCheckpoint(every uint64, fn func(*Puzzle) error) SolveOption {
	return func(o *solveOptions) {
		o.checkpointEvery = every
		o.checkpoint = fn
	}
}

// WithDecrypter sets the scheme used to open the message.
func WithDecrypter(c symmetric.Cipher) SolveOption {
	return func(o *solveOptions) { o.cipher = c }
}

// WithSolveLogger sets the logger used while solving.
func WithSolveLogger(l *logging.Logger) SolveOption {
	return func(o *solveOptions) { o.logger = l }
}
