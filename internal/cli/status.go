package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"timelock/internal/card"
)

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List cards and their progress",
		Long: `Status lists every card in the store with its unwrapping progress.
Interrupted unwraps are recovered and each card is validated; invalid
cards are reported and make the command fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.store.Status()
			if err != nil {
				return err
			}

			summaries := make([]card.Summary, 0, len(res.Cards))
			for _, c := range res.Cards {
				summaries = append(summaries, card.Summarize(c))
			}
			err = a.printer.Print(summaries, func(w io.Writer) error {
				_, err := io.WriteString(w, card.FormatStatus(res.Cards))
				return err
			})
			if err != nil {
				return err
			}

			for _, e := range res.ValidationErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "invalid card: %v\n", e)
			}
			if res.ValidationFailed {
				return fmt.Errorf("%d card(s) failed validation", len(res.ValidationErrors))
			}
			return nil
		},
	}
}
