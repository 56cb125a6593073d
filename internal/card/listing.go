package card

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// List returns all cards, oldest first. It is read-only: pending
// transactions are left for Load or Status to recover.
func (s *Store) List() ([]*Card, error) {
	ok, err := afero.DirExists(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot stat store directory: %w", err)
	}
	if !ok {
		return []*Card{}, nil
	}

	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read store directory: %w", err)
	}

	cards := []*Card{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}

		c, err := s.loadMetadata(s.cardDir(entry.Name()))
		if err != nil {
			s.log.Warn("skipping unreadable card", zap.String("dir", entry.Name()), zap.Error(err))
			continue
		}
		cards = append(cards, c)
	}

	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].CreatedAt.Before(cards[j].CreatedAt)
	})

	return cards, nil
}
