package card

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"timelock/internal/beacon"
	"timelock/internal/logging"
	"timelock/internal/puzzle"
	"timelock/internal/symmetric"
)

// CreateRequest describes how a puzzle was wrapped.
type CreateRequest struct {
	Puzzle       *puzzle.Puzzle
	Rate         uint64
	Duration     time.Duration
	Cipher       symmetric.Suite
	InputType    InputSource
	OriginalPath string
	Beacon       *beacon.Escrow
}

// Create stores a new card and returns its metadata.
func (s *Store) Create(req CreateRequest) (*Card, error) {
	if req.Puzzle == nil {
		return nil, errors.New("puzzle is required")
	}

	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create store directory: %w", err)
	}

	id := uuid.New().String()
	cardDir := s.cardDir(id)
	if err := s.fs.Mkdir(cardDir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create card directory: %w", err)
	}

	now := s.now().UTC()
	p := req.Puzzle
	c := &Card{
		ID:                  id,
		State:               StateWrapped,
		CreatedAt:           now,
		UpdatedAt:           now,
		DesiredDuration:     req.Duration,
		Rate:                req.Rate,
		TotalIterations:     p.TotalIterations(),
		RemainingIterations: p.RemainingIterations(),
		ModulusBits:         p.BitLen(),
		Cipher:              req.Cipher.String(),
		HasInstructions:     p.Instructions() != "",
		InputType:           req.InputType.String(),
		OriginalPath:        req.OriginalPath,
		Beacon:              req.Beacon,
	}

	// The puzzle goes first so a visible meta.json always has its puzzle.
	if err := s.savePuzzle(cardDir, p); err != nil {
		s.fs.RemoveAll(cardDir)
		return nil, err
	}
	if err := s.saveMetadata(cardDir, c); err != nil {
		s.fs.RemoveAll(cardDir)
		return nil, err
	}

	s.log.Debug("card created", logging.PuzzleID(id), logging.Total(c.TotalIterations))
	return c, nil
}

// Load returns the card with id and its puzzle, completing or aborting
// any interrupted materialization first.
func (s *Store) Load(id string) (*Card, *puzzle.Puzzle, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	cardDir := s.cardDir(id)
	c, err := s.loadMetadata(cardDir)
	if err != nil {
		return nil, nil, err
	}
	if err := s.recoverPending(c, cardDir); err != nil {
		return nil, nil, fmt.Errorf("failed to recover pending transaction: %w", err)
	}

	data, err := afero.ReadFile(s.fs, filepath.Join(cardDir, puzzleFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read puzzle: %w", err)
	}
	p, err := puzzle.Load(data)
	if err != nil {
		return nil, nil, fmt.Errorf("card %s: %w", id, err)
	}

	return c, p, nil
}

// SaveProgress persists p and refreshes the card's iteration counters.
// Both files are replaced atomically, puzzle first.
func (s *Store) SaveProgress(c *Card, p *puzzle.Puzzle) error {
	cardDir := s.cardDir(c.ID)
	if err := s.savePuzzle(cardDir, p); err != nil {
		return err
	}

	c.RemainingIterations = p.RemainingIterations()
	c.UpdatedAt = s.now().UTC()
	if err := s.saveMetadata(cardDir, c); err != nil {
		return err
	}

	s.log.Debug("progress saved", logging.PuzzleID(c.ID), logging.Remaining(c.RemainingIterations))
	return nil
}

// ReadInput reads input from either a file path or stdin, enforcing
// MaxInputSize. Supplying both, or neither, is an error.
func ReadInput(fsys afero.Fs, path string, stdin io.Reader) ([]byte, InputSource, error) {
	piped := stdinHasData(stdin)

	if path != "" && piped {
		return nil, 0, errors.New("cannot read from both file and stdin")
	}
	if path == "" && !piped {
		return nil, 0, errors.New("no input provided (use file path or pipe to stdin)")
	}

	if path != "" {
		data, err := ReadFile(fsys, path)
		return data, InputSourceFile, err
	}

	data, err := io.ReadAll(io.LimitReader(stdin, MaxInputSize+1))
	if err != nil {
		return nil, 0, fmt.Errorf("cannot read stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, 0, ErrEmptyInput
	}
	if len(data) > MaxInputSize {
		return nil, 0, fmt.Errorf("%w of %d bytes", ErrInputTooBig, MaxInputSize)
	}
	return data, InputSourceStdin, nil
}

// ReadFile reads a non-empty file no larger than MaxInputSize.
func ReadFile(fsys afero.Fs, path string) ([]byte, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat file: %w", err)
	}
	if info.Size() > MaxInputSize {
		return nil, fmt.Errorf("%w of %d bytes", ErrInputTooBig, MaxInputSize)
	}
	if info.Size() == 0 {
		return nil, ErrEmptyInput
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read file: %w", err)
	}
	return data, nil
}

// stdinHasData reports whether r is a pipe or redirect rather than a
// terminal. Readers other than files count as piped.
func stdinHasData(r io.Reader) bool {
	if r == nil {
		return false
	}
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == 0
}
