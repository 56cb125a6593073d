package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"timelock/internal/beacon"
	"timelock/internal/calibrate"
)

// inspectResult describes a puzzle without revealing its message.
type inspectResult struct {
	ID                 string         `json:"id,omitempty" yaml:"id,omitempty"`
	Path               string         `json:"path,omitempty" yaml:"path,omitempty"`
	State              string         `json:"state,omitempty" yaml:"state,omitempty"`
	ModulusBits        int            `json:"modulus_bits" yaml:"modulus_bits"`
	Cipher             string         `json:"cipher" yaml:"cipher"`
	TotalIterations    uint64         `json:"total_iterations" yaml:"total_iterations"`
	Remaining          uint64         `json:"remaining_iterations" yaml:"remaining_iterations"`
	Progress           float64        `json:"progress" yaml:"progress"`
	Solved             bool           `json:"solved" yaml:"solved"`
	Rate               uint64         `json:"rate,omitempty" yaml:"rate,omitempty"`
	EstimatedRemaining string         `json:"estimated_remaining" yaml:"estimated_remaining"`
	Instructions       string         `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Beacon             *beacon.Escrow `json:"beacon,omitempty" yaml:"beacon,omitempty"`
}

func (a *app) inspectCommand() *cobra.Command {
	var measure bool

	cmd := &cobra.Command{
		Use:   "inspect <card-id|puzzle-file>",
		Short: "Show puzzle parameters and progress",
		Long: `Inspect shows the parameters of a card or puzzle file and an estimate
of the remaining unwrapping time. It never reveals the message.

The estimate uses the rate recorded when the card was wrapped. With
--measure the rate is measured on this machine instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.openTarget(args[0])
			if err != nil {
				return err
			}
			p := t.puzzle

			res := inspectResult{
				Path:            t.path,
				ModulusBits:     p.BitLen(),
				Cipher:          p.CipherSuite().String(),
				TotalIterations: p.TotalIterations(),
				Remaining:       p.RemainingIterations(),
				Progress:        p.Progress(),
				Solved:          p.IsSolved(),
				Instructions:    p.Instructions(),
			}
			if c := t.card; c != nil {
				res.ID = c.ID
				res.State = c.State
				res.Rate = c.Rate
				res.Beacon = c.Beacon
			}
			if measure {
				rate, err := calibrate.New(a.cfg.CalibrationTrials).Rate(p.Modulus())
				if err != nil {
					return err
				}
				a.metrics.SetCalibrationRate(rate)
				res.Rate = rate
			}
			res.EstimatedRemaining = estimate(res.Rate, res.Remaining)

			return a.printer.Print(res, func(w io.Writer) error {
				return writeInspect(w, res)
			})
		},
	}

	cmd.Flags().BoolVar(&measure, "measure", false, "measure the squaring rate on this machine")
	return cmd
}

func writeInspect(w io.Writer, r inspectResult) error {
	var b strings.Builder
	if r.ID != "" {
		fmt.Fprintf(&b, "id: %s\nstate: %s\n", r.ID, r.State)
	} else {
		fmt.Fprintf(&b, "path: %s\n", r.Path)
	}
	fmt.Fprintf(&b, "modulus_bits: %d\ncipher: %s\n", r.ModulusBits, r.Cipher)
	fmt.Fprintf(&b, "progress: %.1f%% (%d/%d)\n", 100*r.Progress, r.TotalIterations-r.Remaining, r.TotalIterations)
	fmt.Fprintf(&b, "solved: %t\n", r.Solved)
	if r.Rate > 0 {
		fmt.Fprintf(&b, "rate: %d squarings/s\n", r.Rate)
	}
	fmt.Fprintf(&b, "estimated_remaining: %s\n", r.EstimatedRemaining)
	if r.Beacon != nil {
		fmt.Fprintf(&b, "beacon: %s round %d (%s)\n", r.Beacon.Authority, r.Beacon.Round, r.Beacon.UnlockAt.Format(time.RFC3339))
	}
	if r.Instructions != "" {
		fmt.Fprintf(&b, "instructions: %s\n", r.Instructions)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// estimate formats the expected solve time at rate.
func estimate(rate, iterations uint64) string {
	if iterations == 0 {
		return "0s"
	}
	if rate == 0 {
		return "unknown"
	}
	return calibrate.Duration(rate, iterations).Round(time.Second).String()
}
