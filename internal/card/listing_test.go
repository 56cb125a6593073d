package card

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestList_EmptyStore(t *testing.T) {
	s, _ := newTestStore(t)

	cards, err := s.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cards) != 0 {
		t.Errorf("expected no cards, got %d", len(cards))
	}
}

func TestList_OldestFirst(t *testing.T) {
	s, _ := newTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		c, _ := createTestCard(t, s, "x", 2)
		ids = append(ids, c.ID)
	}

	cards, err := s.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(cards))
	}
	for i, c := range cards {
		if c.ID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], c.ID)
		}
	}
}

func TestList_SkipsForeignEntries(t *testing.T) {
	s, fsys := newTestStore(t)
	c, _ := createTestCard(t, s, "x", 2)

	if err := fsys.MkdirAll(filepath.Join(testDir, "not-a-card"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, filepath.Join(testDir, "stray.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(testDir, "0d6bd5e4-7b58-4a8e-8f0c-3b1b7e7e2c55")
	if err := fsys.MkdirAll(broken, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, filepath.Join(broken, metaFileName), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	cards, err := s.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cards) != 1 || cards[0].ID != c.ID {
		t.Errorf("expected only %s, got %+v", c.ID, cards)
	}
}

func TestList_ReadOnly(t *testing.T) {
	s, fsys := newTestStore(t)
	c, _ := createTestCard(t, s, "x", 2)
	pending := filepath.Join(testDir, c.ID, messageFileName+pendingSuffix)
	if err := afero.WriteFile(fsys, pending, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := s.List(); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if ok, _ := afero.Exists(fsys, pending); !ok {
		t.Error("list must not recover pending transactions")
	}
}
