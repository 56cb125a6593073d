package cli

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timelock/internal/beacon"
	"timelock/internal/calibrate"
	"timelock/internal/card"
	"timelock/internal/config"
	"timelock/internal/logging"
	"timelock/internal/puzzle"
	"timelock/internal/symmetric"
)

type wrapFlags struct {
	duration string
	wrapper  string
	rate     uint64
	cipher   string
	out      string
}

// wrapResult is printed after a successful wrap.
type wrapResult struct {
	ID              string `json:"id,omitempty" yaml:"id,omitempty"`
	Path            string `json:"path,omitempty" yaml:"path,omitempty"`
	Duration        string `json:"duration" yaml:"duration"`
	Rate            uint64 `json:"rate" yaml:"rate"`
	TotalIterations uint64 `json:"total_iterations" yaml:"total_iterations"`
	ModulusBits     int    `json:"modulus_bits" yaml:"modulus_bits"`
	Cipher          string `json:"cipher" yaml:"cipher"`
	BeaconRound     uint64 `json:"beacon_round,omitempty" yaml:"beacon_round,omitempty"`
}

func (a *app) wrapCommand() *cobra.Command {
	var f wrapFlags

	cmd := &cobra.Command{
		Use:   "wrap [file]",
		Short: "Wrap a message in a new time-lock puzzle",
		Long: `Wrap reads a message from file, or from stdin when no file is given,
and stores it in a new card. The card can only be unwrapped by
performing sequential squarings for roughly the requested duration.

Durations accept Go syntax plus whole days, e.g. 90m, 7h or 2d12h.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return a.runWrap(cmd, path, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.duration, "duration", "d", "", "how long unwrapping should take (default from config, 7h)")
	flags.StringVarP(&f.wrapper, "wrapper", "w", "", "file with instructions shown to whoever unwraps the card")
	flags.Uint64Var(&f.rate, "rate", 0, "squarings per second to assume instead of calibrating")
	flags.Int("bits", 0, "size of each prime factor of the modulus")
	flags.StringVar(&f.cipher, "cipher", symmetric.SuiteXChaCha20Poly1305.String(), "message cipher (xchacha20-poly1305, aes-256-gcm)")
	flags.Bool("beacon", false, "also escrow the message with the drand beacon")
	flags.StringVarP(&f.out, "out", "o", "", "write a standalone puzzle file instead of a card")

	a.bind(cmd, "bits", config.KeyPrimeBits)
	a.bind(cmd, "beacon", config.KeyBeaconEnabled)

	return cmd
}

func (a *app) runWrap(cmd *cobra.Command, path string, f wrapFlags) error {
	ctx := cmd.Context()
	cfg := a.cfg

	d := cfg.DefaultDuration
	if f.duration != "" {
		var err error
		if d, err = config.ParseDuration(f.duration); err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
	}
	if d < 0 {
		return puzzle.ErrInvalidDuration
	}

	suite, err := symmetric.ParseSuite(f.cipher)
	if err != nil {
		return err
	}
	scheme, err := symmetric.NewWithSuite(suite)
	if err != nil {
		return err
	}

	if f.out != "" && cfg.Beacon.Enabled {
		return errors.New("beacon escrow requires a card; drop --out or --beacon")
	}

	var instructions string
	if f.wrapper != "" {
		data, err := card.ReadFile(a.opts.Fs, f.wrapper)
		if err != nil {
			return fmt.Errorf("wrapper text: %w", err)
		}
		instructions = string(data)
	}

	message, source, err := card.ReadInput(a.opts.Fs, path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	var rates calibrate.RateSource = calibrate.New(cfg.CalibrationTrials)
	if f.rate > 0 {
		rates = calibrate.Fixed(f.rate)
	}
	rec := &recordingRate{src: rates}

	log := a.log.Named("wrap")
	log.Info("generating puzzle",
		logging.Duration(d),
		zap.Int(logging.KeyBits, 2*cfg.PrimeBits),
		zap.Stringer("cipher", suite),
	)

	p, err := puzzle.Generate(ctx, string(message), instructions, d,
		puzzle.WithPrimeBits(cfg.PrimeBits),
		puzzle.WithRate(rec),
		puzzle.WithCipher(scheme),
		puzzle.WithLogger(log),
	)
	if err != nil {
		return err
	}
	a.metrics.SetCalibrationRate(rec.rate)
	a.metrics.RecordGenerated()

	result := wrapResult{
		Duration:        d.String(),
		Rate:            rec.rate,
		TotalIterations: p.TotalIterations(),
		ModulusBits:     p.BitLen(),
		Cipher:          suite.String(),
	}

	if f.out != "" {
		if err := card.WritePuzzleFile(a.opts.Fs, f.out, p); err != nil {
			return fmt.Errorf("cannot write puzzle file: %w", err)
		}
		log.Info("puzzle written", logging.Path(f.out), logging.Total(p.TotalIterations()))
		result.Path = f.out
		return a.printer.Print(result, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, f.out)
			return err
		})
	}

	var escrow *beacon.Escrow
	if cfg.Beacon.Enabled {
		unlockAt := a.opts.Now().Add(d)
		escrow, err = beacon.Seal(ctx, a.opts.Beacon(cfg.Beacon), message, unlockAt)
		if err != nil {
			return err
		}
		log.Info("beacon escrow sealed", zap.Uint64("round", escrow.Round), zap.Time("unlock_at", escrow.UnlockAt))
		result.BeaconRound = escrow.Round
	}

	c, err := a.store.Create(card.CreateRequest{
		Puzzle:       p,
		Rate:         rec.rate,
		Duration:     d,
		Cipher:       suite,
		InputType:    source,
		OriginalPath: path,
		Beacon:       escrow,
	})
	if err != nil {
		return err
	}
	log.Info("card wrapped", logging.PuzzleID(c.ID), logging.Total(c.TotalIterations), logging.Rate(c.Rate))

	result.ID = c.ID
	return a.printer.Print(result, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, c.ID)
		return err
	})
}

// recordingRate remembers the rate reported by src.
type recordingRate struct {
	src  calibrate.RateSource
	rate uint64
}

func (r *recordingRate) Rate(n *big.Int) (uint64, error) {
	rate, err := r.src.Rate(n)
	if err != nil {
		return 0, err
	}
	r.rate = rate
	return rate, nil
}
