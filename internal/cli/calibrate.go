package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timelock/internal/calibrate"
	"timelock/internal/config"
	"timelock/internal/logging"
	"timelock/internal/modulus"
)

type calibrateResult struct {
	ModulusBits int    `json:"modulus_bits" yaml:"modulus_bits"`
	Trials      uint64 `json:"trials" yaml:"trials"`
	Rate        uint64 `json:"rate" yaml:"rate"`
	Duration    string `json:"duration" yaml:"duration"`
	Iterations  uint64 `json:"iterations" yaml:"iterations"`
}

func (a *app) calibrateCommand() *cobra.Command {
	var duration string

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure this machine's squaring rate",
		Long: `Calibrate generates a fresh modulus and measures how many sequential
squarings per second this machine performs under it, then shows how
many squarings a puzzle of the given duration would require.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := a.cfg.DefaultDuration
			if duration != "" {
				var err error
				if d, err = config.ParseDuration(duration); err != nil {
					return fmt.Errorf("invalid duration: %w", err)
				}
			}

			p, q, err := modulus.NewRandSource().GeneratePair(a.cfg.PrimeBits)
			if err != nil {
				return err
			}
			n, _, err := modulus.Build(p, q)
			if err != nil {
				return err
			}

			a.log.Debug("calibrating", zap.Int(logging.KeyBits, n.BitLen()), zap.Uint64("trials", a.cfg.CalibrationTrials))
			rate, err := calibrate.New(a.cfg.CalibrationTrials).Rate(n)
			if err != nil {
				return err
			}
			a.metrics.SetCalibrationRate(rate)

			res := calibrateResult{
				ModulusBits: n.BitLen(),
				Trials:      a.cfg.CalibrationTrials,
				Rate:        rate,
				Duration:    d.String(),
				Iterations:  calibrate.Iterations(rate, d),
			}
			return a.printer.Print(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%d squarings/s under a %d-bit modulus\n%d squarings for %s\n",
					res.Rate, res.ModulusBits, res.Iterations, res.Duration)
				return err
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&duration, "duration", "d", "", "duration to convert into squarings")
	flags.Int("bits", 0, "size of each prime factor of the modulus")
	flags.Uint64("trials", 0, "squarings timed per measurement")

	a.bind(cmd, "bits", config.KeyPrimeBits)
	a.bind(cmd, "trials", config.KeyCalibrationTrials)

	return cmd
}
