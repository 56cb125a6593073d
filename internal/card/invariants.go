package card

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// State invariants:
//
// If state == StateWrapped:
//     message MUST NOT exist
//     message.pending MAY exist (removed by recovery)
//
// If state == StateUnwrapped:
//     message MUST exist (or message.pending if recovery is incomplete)
//
// In every state puzzle.bin MUST exist and remaining <= total.

// ValidateCard verifies that a card's metadata is consistent with its
// directory. It never repairs and never writes.
func ValidateCard(fsys afero.Fs, c *Card, cardDir string) error {
	messageExists, err := afero.Exists(fsys, filepath.Join(cardDir, messageFileName))
	if err != nil {
		return fmt.Errorf("card %s: cannot verify message file: %w", c.ID, err)
	}
	pendingExists, _ := afero.Exists(fsys, filepath.Join(cardDir, messageFileName+pendingSuffix))

	if _, err := fsys.Stat(filepath.Join(cardDir, puzzleFileName)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("card %s: puzzle file missing (corrupted)", c.ID)
		}
		return fmt.Errorf("card %s: cannot verify puzzle file: %w", c.ID, err)
	}

	if c.RemainingIterations > c.TotalIterations {
		return fmt.Errorf("card %s: remaining %d exceeds total %d (corrupted)", c.ID, c.RemainingIterations, c.TotalIterations)
	}

	switch c.State {
	case StateWrapped:
		if messageExists {
			return fmt.Errorf("card %s: state is wrapped but message file exists (corrupted)", c.ID)
		}
		return nil

	case StateUnwrapped:
		if !messageExists && !pendingExists {
			return fmt.Errorf("card %s: state is unwrapped but message file missing (corrupted)", c.ID)
		}
		return nil

	default:
		return fmt.Errorf("card %s: unknown state %q", c.ID, c.State)
	}
}
