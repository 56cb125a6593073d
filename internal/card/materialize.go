package card

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"timelock/internal/logging"
)

// recoverPending handles incomplete materialization transactions.
// If message.pending exists:
//   - state unwrapped: complete the commit (rename pending to message)
//   - state wrapped: abort (remove pending)
func (s *Store) recoverPending(c *Card, cardDir string) error {
	pendingPath := filepath.Join(cardDir, messageFileName+pendingSuffix)
	messagePath := filepath.Join(cardDir, messageFileName)

	if ok, _ := afero.Exists(s.fs, pendingPath); !ok {
		return nil
	}

	switch c.State {
	case StateUnwrapped:
		if err := s.fs.Rename(pendingPath, messagePath); err != nil {
			if ok, _ := afero.Exists(s.fs, messagePath); ok {
				s.fs.Remove(pendingPath)
				return nil
			}
			return fmt.Errorf("failed to recover pending message: %w", err)
		}
		s.log.Info("completed interrupted unwrap", logging.PuzzleID(c.ID))
		return nil

	case StateWrapped:
		s.fs.Remove(pendingPath)
		s.log.Info("discarded uncommitted message", logging.PuzzleID(c.ID))
		return nil

	default:
		// Leave the pending file for manual inspection.
		return nil
	}
}

// Materialize records message as the card's recovered plaintext.
// Materializing an unwrapped card is a no-op.
//
// Two-phase commit for crash safety:
//  1. write message.pending and sync it
//  2. store state=unwrapped in meta.json (the commit point), then rename
//     message.pending to message
//
// A crash before step 2 leaves a pending file on a wrapped card, which
// recovery removes. A crash after it leaves one on an unwrapped card,
// which recovery renames.
func (s *Store) Materialize(c *Card, message []byte, by string) error {
	cardDir := s.cardDir(c.ID)
	if err := s.recoverPending(c, cardDir); err != nil {
		return fmt.Errorf("failed to recover pending transaction: %w", err)
	}

	if c.State == StateUnwrapped {
		return nil
	}

	messagePath := filepath.Join(cardDir, messageFileName)
	pendingPath := messagePath + pendingSuffix

	if err := writeSynced(s.fs, pendingPath, message); err != nil {
		s.fs.Remove(pendingPath)
		return fmt.Errorf("failed to write message: %w", err)
	}

	prev := *c
	c.State = StateUnwrapped
	c.UnwrappedBy = by
	c.UpdatedAt = s.now().UTC()
	if by == UnwrappedByPuzzle {
		c.RemainingIterations = 0
	}
	if err := s.saveMetadata(cardDir, c); err != nil {
		s.fs.Remove(pendingPath)
		*c = prev
		return err
	}

	if err := s.fs.Rename(pendingPath, messagePath); err != nil {
		// Recovered on next load.
		return fmt.Errorf("failed to finalize message: %w", err)
	}

	if err := ValidateCard(s.fs, c, cardDir); err != nil {
		return fmt.Errorf("internal error: post-materialization validation failed: %w", err)
	}

	s.log.Debug("card unwrapped", logging.PuzzleID(c.ID), zap.String("by", by))
	return nil
}

// ReadMessage returns the recovered message of an unwrapped card.
func (s *Store) ReadMessage(c *Card) ([]byte, error) {
	if c.State != StateUnwrapped {
		return nil, ErrNotUnwrapped
	}
	data, err := afero.ReadFile(s.fs, filepath.Join(s.cardDir(c.ID), messageFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return data, nil
}

func writeSynced(fsys afero.Fs, path string, data []byte) error {
	f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
