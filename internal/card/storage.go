package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"timelock/internal/logging"
	"timelock/internal/puzzle"
)

// DefaultBaseDir returns the OS-appropriate base directory for cards.
func DefaultBaseDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot get home directory: %w", err)
		}
		baseDir = filepath.Join(home, "Library", "Application Support", "timelock")

	case "windows":
		appData := os.Getenv("AppData")
		if appData == "" {
			return "", errors.New("AppData environment variable not set")
		}
		baseDir = filepath.Join(appData, "timelock")

	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			baseDir = filepath.Join(xdg, "timelock")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot get home directory: %w", err)
			}
			baseDir = filepath.Join(home, ".local", "share", "timelock")
		}
	}

	return baseDir, nil
}

// Store keeps cards under a base directory of an afero filesystem.
type Store struct {
	fs  afero.Fs
	dir string
	now func() time.Time
	log *logging.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l *logging.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// NewStore returns a store rooted at dir on fsys.
func NewStore(fsys afero.Fs, dir string, opts ...StoreOption) *Store {
	s := &Store{
		fs:  fsys,
		dir: dir,
		now: time.Now,
		log: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenStore returns a store on the OS filesystem. An empty dir selects
// DefaultBaseDir.
func OpenStore(dir string, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultBaseDir(); err != nil {
			return nil, err
		}
	}
	return NewStore(afero.NewOsFs(), dir, opts...), nil
}

// Dir returns the store's base directory.
func (s *Store) Dir() string {
	return s.dir
}

// Fs returns the store's filesystem.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

func (s *Store) cardDir(id string) string {
	return filepath.Join(s.dir, id)
}

// Exists reports whether a card with id is present.
func (s *Store) Exists(id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		return false
	}
	ok, err := afero.Exists(s.fs, filepath.Join(s.cardDir(id), metaFileName))
	return err == nil && ok
}

// loadMetadata loads and parses the metadata file for a card.
func (s *Store) loadMetadata(cardDir string) (*Card, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(cardDir, metaFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var c Card
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &c, nil
}

// saveMetadata saves the metadata file for a card atomically.
func (s *Store) saveMetadata(cardDir string, c *Card) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeFileAtomic(s.fs, filepath.Join(cardDir, metaFileName), data); err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return nil
}

func (s *Store) savePuzzle(cardDir string, p *puzzle.Puzzle) error {
	data, err := puzzle.Dump(p)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.fs, filepath.Join(cardDir, puzzleFileName), data); err != nil {
		return fmt.Errorf("failed to write puzzle: %w", err)
	}
	return nil
}

// writeFileAtomic replaces path via a synced temporary file and rename.
func writeFileAtomic(fsys afero.Fs, path string, data []byte) error {
	tmp := path + tmpSuffix
	if err := writeSynced(fsys, tmp, data); err != nil {
		fsys.Remove(tmp)
		return err
	}
	if err := fsys.Rename(tmp, path); err != nil {
		fsys.Remove(tmp)
		return err
	}
	return nil
}

// WritePuzzleFile writes p to path outside of any store.
func WritePuzzleFile(fsys afero.Fs, path string, p *puzzle.Puzzle) error {
	data, err := puzzle.Dump(p)
	if err != nil {
		return err
	}
	return writeFileAtomic(fsys, path, data)
}

// ReadPuzzleFile loads a puzzle written by WritePuzzleFile.
func ReadPuzzleFile(fsys afero.Fs, path string) (*puzzle.Puzzle, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("cannot read puzzle file: %w", err)
	}
	return puzzle.Load(data)
}
