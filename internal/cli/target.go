package cli

import (
	"github.com/google/uuid"

	"timelock/internal/card"
	"timelock/internal/puzzle"
)

// target is a puzzle being worked on: either a card in the store or a
// standalone puzzle file.
type target struct {
	card   *card.Card
	path   string
	puzzle *puzzle.Puzzle
}

// name identifies the target in logs and output.
func (t *target) name() string {
	if t.card != nil {
		return t.card.ID
	}
	return t.path
}

// openTarget loads arg as a card ID, falling back to a puzzle file path.
func (a *app) openTarget(arg string) (*target, error) {
	if _, err := uuid.Parse(arg); err == nil {
		c, p, err := a.store.Load(arg)
		if err != nil {
			return nil, err
		}
		return &target{card: c, puzzle: p}, nil
	}

	p, err := card.ReadPuzzleFile(a.opts.Fs, arg)
	if err != nil {
		return nil, err
	}
	return &target{path: arg, puzzle: p}, nil
}

// save persists the puzzle of t in place.
func (a *app) save(t *target) error {
	if t.card != nil {
		return a.store.SaveProgress(t.card, t.puzzle)
	}
	return card.WritePuzzleFile(a.opts.Fs, t.path, t.puzzle)
}
