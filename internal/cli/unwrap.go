package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"timelock/internal/beacon"
	"timelock/internal/card"
	"timelock/internal/logging"
	"timelock/internal/metrics"
	"timelock/internal/puzzle"
)

const (
	// checkpointStride is how many squarings pass between checkpoint
	// opportunities. Actual writes are throttled by checkpoint_interval.
	checkpointStride = 4096

	progressInterval = 5 * time.Second
)

const interruptedNotice = "Your card wasn't completely unwrapped, but you can continue at any time!"

type unwrapFlags struct {
	out    string
	silent bool
	beacon bool
}

// unwrapResult is printed after a successful unwrap in structured output.
type unwrapResult struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	UnwrappedBy string `json:"unwrapped_by" yaml:"unwrapped_by"`
	Output      string `json:"output,omitempty" yaml:"output,omitempty"`
	Message     string `json:"message,omitempty" yaml:"message,omitempty"`
}

func (a *app) unwrapCommand() *cobra.Command {
	var f unwrapFlags

	cmd := &cobra.Command{
		Use:   "unwrap <card-id|puzzle-file>",
		Short: "Solve a puzzle and reveal its message",
		Long: `Unwrap performs the remaining squarings of a card or puzzle file and
prints the hidden message. Progress is saved periodically and on
interrupt, so unwrapping can be stopped with Ctrl-C and continued later.

With --beacon the message is opened from the card's drand escrow
instead, once the beacon round has been published.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUnwrap(cmd, args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.out, "out", "o", "", "write the message to this file instead of stdout")
	flags.BoolVarP(&f.silent, "silent", "s", false, "do not print instructions or progress")
	flags.BoolVar(&f.beacon, "beacon", false, "open the card's beacon escrow instead of solving")

	return cmd
}

func (a *app) runUnwrap(cmd *cobra.Command, arg string, f unwrapFlags) error {
	t, err := a.openTarget(arg)
	if err != nil {
		return err
	}
	log := a.log.Named("unwrap").With(logging.PuzzleID(t.name()))

	if t.card != nil && t.card.State == card.StateUnwrapped {
		message, err := a.store.ReadMessage(t.card)
		if err != nil {
			return err
		}
		return a.deliver(cmd, t, message, t.card.UnwrappedBy, f)
	}

	if f.beacon {
		return a.unwrapWithBeacon(cmd, t, f)
	}

	p := t.puzzle
	if !f.silent && p.Instructions() != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), p.Instructions())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	err = a.solve(ctx, t, log, f.silent)
	switch {
	case errors.Is(err, puzzle.ErrInterrupted):
		a.metrics.RecordInterruption(metrics.ReasonCancelled)
		if err := a.save(t); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}
		log.Info("unwrapping interrupted", logging.Remaining(p.RemainingIterations()))
		if !f.silent {
			fmt.Fprintln(cmd.ErrOrStderr(), interruptedNotice)
		}
		return nil
	case err != nil:
		if saveErr := a.save(t); saveErr != nil {
			log.Error("failed to save progress", logging.Err(saveErr))
		}
		return err
	}
	a.metrics.ObserveSolveDuration(time.Since(start))

	message, err := p.Solution()
	if err != nil {
		return err
	}
	if err := a.save(t); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	if t.card != nil {
		if err := a.store.Materialize(t.card, []byte(message), card.UnwrappedByPuzzle); err != nil {
			return err
		}
	}
	log.Info("unwrapped", logging.Total(p.TotalIterations()))

	return a.deliver(cmd, t, []byte(message), card.UnwrappedByPuzzle, f)
}

// solve runs the puzzle of t, persisting progress at most once per
// checkpoint interval and logging progress unless silent.
func (a *app) solve(ctx context.Context, t *target, log *logging.Logger, silent bool) error {
	p := t.puzzle
	last := p.CompletedIterations()

	progress := &rate.Sometimes{Interval: progressInterval}
	checkpoint := &rate.Sometimes{Interval: a.cfg.CheckpointInterval}

	report := func(completed, total uint64) {
		a.metrics.AddSquarings(completed - last)
		a.metrics.SetRemaining(total - completed)
		last = completed
	}

	err := p.Solve(ctx,
		puzzle.WithSolveLogger(log),
		puzzle.WithProgress(func(completed, total uint64) {
			progress.Do(func() {
				report(completed, total)
				if !silent {
					log.Info("unwrapping",
						logging.Remaining(total-completed),
						logging.Total(total),
						zap.String("progress", fmt.Sprintf("%.1f%%", 100*float64(completed)/float64(total))),
					)
				}
			})
		}),
		puzzle.WithCheckpoint(checkpointStride, func(*puzzle.Puzzle) error {
			var err error
			checkpoint.Do(func() {
				err = a.save(t)
			})
			if err != nil {
				a.metrics.RecordInterruption(metrics.ReasonCheckpoint)
			}
			return err
		}),
	)
	report(p.CompletedIterations(), p.TotalIterations())
	return err
}

func (a *app) unwrapWithBeacon(cmd *cobra.Command, t *target, f unwrapFlags) error {
	if t.card == nil {
		return errors.New("beacon unwrapping requires a card")
	}

	auth := a.opts.Beacon(a.cfg.Beacon)
	message, err := beacon.Open(cmd.Context(), auth, t.card.Beacon)
	if err != nil {
		return err
	}
	if err := a.store.Materialize(t.card, message, card.UnwrappedByBeacon); err != nil {
		return err
	}
	a.log.Info("unwrapped from beacon", logging.PuzzleID(t.card.ID), zap.Uint64("round", t.card.Beacon.Round))

	return a.deliver(cmd, t, message, card.UnwrappedByBeacon, f)
}

// deliver writes the recovered message to the requested destination.
func (a *app) deliver(cmd *cobra.Command, t *target, message []byte, by string, f unwrapFlags) error {
	result := unwrapResult{UnwrappedBy: by}
	if t.card != nil {
		result.ID = t.card.ID
	} else {
		result.Path = t.path
	}

	if f.out != "" {
		if err := afero.WriteFile(a.opts.Fs, f.out, message, 0o600); err != nil {
			return fmt.Errorf("cannot write message: %w", err)
		}
		result.Output = f.out
		return a.printer.Print(result, func(w io.Writer) error {
			if !f.silent {
				fmt.Fprintf(cmd.ErrOrStderr(), "message written to %s\n", f.out)
			}
			return nil
		})
	}

	result.Message = string(message)
	return a.printer.Print(result, func(w io.Writer) error {
		_, err := w.Write(message)
		return err
	})
}
