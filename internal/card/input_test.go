package card

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestReadInput(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/in/msg.txt", []byte("from file"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "/in/empty.txt", nil, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("file", func(t *testing.T) {
		data, src, err := ReadInput(fsys, "/in/msg.txt", nil)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(data) != "from file" || src != InputSourceFile {
			t.Errorf("unexpected %q from %s", data, src)
		}
	})

	t.Run("stdin", func(t *testing.T) {
		data, src, err := ReadInput(fsys, "", strings.NewReader("from stdin"))
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(data) != "from stdin" || src != InputSourceStdin {
			t.Errorf("unexpected %q from %s", data, src)
		}
	})

	t.Run("both", func(t *testing.T) {
		if _, _, err := ReadInput(fsys, "/in/msg.txt", strings.NewReader("x")); err == nil {
			t.Error("expected error for file and stdin")
		}
	})

	t.Run("neither", func(t *testing.T) {
		if _, _, err := ReadInput(fsys, "", nil); err == nil {
			t.Error("expected error without input")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		if _, _, err := ReadInput(fsys, "/in/empty.txt", nil); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("expected ErrEmptyInput, got %v", err)
		}
	})

	t.Run("empty stdin", func(t *testing.T) {
		if _, _, err := ReadInput(fsys, "", strings.NewReader("")); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("expected ErrEmptyInput, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, _, err := ReadInput(fsys, "/in/absent.txt", nil); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("oversized stdin", func(t *testing.T) {
		big := bytes.NewReader(make([]byte, MaxInputSize+1))
		if _, _, err := ReadInput(fsys, "", big); !errors.Is(err, ErrInputTooBig) {
			t.Errorf("expected ErrInputTooBig, got %v", err)
		}
	})

	t.Run("oversized file", func(t *testing.T) {
		if err := afero.WriteFile(fsys, "/in/big.bin", make([]byte, MaxInputSize+1), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadFile(fsys, "/in/big.bin"); !errors.Is(err, ErrInputTooBig) {
			t.Errorf("expected ErrInputTooBig, got %v", err)
		}
	})
}
